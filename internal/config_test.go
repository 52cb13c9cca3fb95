package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/laguz/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestSourceConfig_GitHubRequiresRepo(t *testing.T) {
	cfg := SourceConfig{Kind: SourceGitHub, GitHub: GitHubConfig{Owner: "acme"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("github source without repo should fail")
	}
	cfg.GitHub.Repo = "vault"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("github source: %v", err)
	}
	if cfg.Extension != ".md" {
		t.Errorf("extension = %q, want .md default", cfg.Extension)
	}
}

func TestSourceConfig_InvalidKindAndExtension(t *testing.T) {
	if err := (&SourceConfig{Kind: "ftp"}).Validate(); err == nil {
		t.Error("unknown kind should fail")
	}
	if err := (&SourceConfig{Kind: SourceLocal, Extension: "md"}).Validate(); err == nil {
		t.Error("extension without dot should fail")
	}
}

func TestCacheConfig_Driver(t *testing.T) {
	cfg := CacheConfig{}
	if err := cfg.Validate(); err != nil || cfg.Driver != "sqlite3" {
		t.Errorf("empty driver: err=%v driver=%q", err, cfg.Driver)
	}
	if err := (&CacheConfig{Driver: "postgres"}).Validate(); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestParseConfig_WorkersBounds(t *testing.T) {
	if err := (&ParseConfig{Workers: 9}).Validate(); err == nil {
		t.Error("workers above the pool cap should fail")
	}
	if err := (&ParseConfig{Workers: -1}).Validate(); err == nil {
		t.Error("negative workers should fail")
	}
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("LAGUZ_TEST_TOKEN", "ghp_secret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
source:
  kind: github
  github:
    owner: acme
    repo: vault
    token: ${LAGUZ_TEST_TOKEN}
cache:
  driver: sqlite
  path: ""
parse:
  workers: 4
watch:
  debounce: 1s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("app = %+v", cfg.App)
	}
	if cfg.Source.GitHub.Token != "ghp_secret" {
		t.Errorf("token = %q, want expanded env", cfg.Source.GitHub.Token)
	}
	if cfg.Cache.Driver != "sqlite" || cfg.Cache.Path != "" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Parse.Workers != 4 || cfg.Watch.Debounce != time.Second {
		t.Errorf("parse = %+v watch = %+v", cfg.Parse, cfg.Watch)
	}
}
