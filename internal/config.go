package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/pool"
	"github.com/starford/laguz/internal/source"
	"github.com/starford/laguz/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Source kinds.
const (
	SourceGitHub = "github"
	SourceLocal  = "local"
)

var extensionRe = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Source SourceConfig      `yaml:"source"`
	Cache  CacheConfig       `yaml:"cache"`
	Parse  ParseConfig       `yaml:"parse"`
	Watch  WatchConfig       `yaml:"watch"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Parse.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig selects where vault files come from.
type SourceConfig struct {
	Kind      string       `yaml:"kind"`
	Extension string       `yaml:"extension"`
	GitHub    GitHubConfig `yaml:"github"`
	Local     LocalConfig  `yaml:"local"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	if c.Extension == "" {
		c.Extension = source.DefaultExtension
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Kind, validation.Required, validation.In(SourceGitHub, SourceLocal)),
		validation.Field(&c.Extension, validation.Match(extensionRe)),
	); err != nil {
		return err
	}
	if c.Kind == SourceGitHub {
		return c.GitHub.Validate()
	}
	return nil
}

// GitHubConfig identifies the remote repository. Token is optional; without
// it requests are anonymous and subject to the lower rate limit.
type GitHubConfig struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
	RawURL string `yaml:"raw_url"`
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
	)
}

// LocalConfig holds the vault directory. An empty path serves the demo vault.
type LocalConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig holds the SQLite cache location. An empty path disables
// caching.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = cache.DriverCGo
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(cache.DriverCGo, cache.DriverPureGo)),
	)
}

// ParseConfig tunes the parse pool.
type ParseConfig struct {
	Workers    int  `yaml:"workers"`
	Sequential bool `yaml:"sequential"`
}

// Validate validates the parse configuration.
func (c *ParseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0), validation.Max(pool.MaxWorkers)),
	)
}

// WatchConfig controls reloading a local vault on file changes.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.Debounce == 0 {
		c.Debounce = watch.DefaultDebounce
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Millisecond)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceConfig{
			Kind:      SourceLocal,
			Extension: source.DefaultExtension,
		},
		Cache: CacheConfig{
			Driver: cache.DriverCGo,
			Path:   "./laguz.db",
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
