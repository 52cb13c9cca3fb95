package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/cache"
	"github.com/starford/laguz/internal/models"
	"github.com/starford/laguz/internal/progress"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"

	// MaxFileSize excludes large blobs from download.
	MaxFileSize = 1 << 20
	// MaxCacheAge is the freshness ceiling of a cached snapshot.
	MaxCacheAge = 24 * time.Hour

	defaultBatchSize  = 5
	defaultBatchDelay = 200 * time.Millisecond
)

// Conventional entry files probed when the tree cannot be listed.
var fallbackPaths = []string{
	"README.md",
	"index.md",
	"root.md",
	"docs/README.md",
	"docs/index.md",
	"notes/README.md",
	"vault/README.md",
}

// GitHub stage ids.
const (
	StageCheckCache    = "check-cache"
	StageValidate      = "validate"
	StageFetchTree     = "fetch-tree"
	StageFilterFiles   = "filter-files"
	StageBatchDownload = "batch-download"
)

// GitHubOptions configures the remote strategy.
type GitHubOptions struct {
	Owner     string
	Repo      string
	Token     string // optional bearer credential
	APIURL    string
	RawURL    string
	Extension string

	BatchSize  int
	BatchDelay time.Duration
	Client     *http.Client
	Now        func() time.Time
}

// GitHub fetches a repository through the REST tree API and raw content host.
type GitHub struct {
	opts  GitHubOptions
	store cache.Store
	log   *slog.Logger
}

// NewGitHub creates the remote strategy. A nil store disables caching.
func NewGitHub(opts GitHubOptions, store cache.Store, log *slog.Logger) *GitHub {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.RawURL == "" {
		opts.RawURL = DefaultRawURL
	}
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	opts.RawURL = strings.TrimRight(opts.RawURL, "/")
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	} else if opts.BatchDelay == 0 {
		opts.BatchDelay = defaultBatchDelay
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if store == nil {
		store = cache.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &GitHub{opts: opts, store: store, log: log}
}

// Origin implements Source.
func (g *GitHub) Origin() string {
	return models.GitHubOrigin(g.opts.Owner, g.opts.Repo)
}

func (g *GitHub) cacheKey() string {
	return models.GitHubCacheKey(g.opts.Owner, g.opts.Repo)
}

// Fetch implements Source.
func (g *GitHub) Fetch(ctx context.Context, sink progress.Sink) (*Fetched, error) {
	t := progress.NewTracker(sink,
		progress.Stage{ID: StageCheckCache, Name: "Checking cache"},
		progress.Stage{ID: StageValidate, Name: "Validating cache"},
		progress.Stage{ID: StageFetchTree, Name: "Fetching repository tree"},
		progress.Stage{ID: StageFilterFiles, Name: "Filtering markdown files"},
		progress.Stage{ID: StageBatchDownload, Name: "Downloading files", Measured: true},
	)
	t.Publish()

	repoName := g.opts.Owner + "/" + g.opts.Repo
	t.Start(StageCheckCache, "Checking cache for "+repoName+"...")
	rec, cached := g.lookup(ctx)

	if rec != nil && len(cached) > 0 {
		t.Complete(StageCheckCache, fmt.Sprintf("Found cached version from %s", rec.Timestamp.Format(time.RFC3339)))
		t.Start(StageValidate, "Comparing with latest commit...")
		if g.validate(ctx, rec) {
			t.Complete(StageValidate, fmt.Sprintf("Using cached version (%d files)", len(cached)))
			t.CompleteRemaining("Skipped (using cache)")
			return &Fetched{Files: cached, FromCache: true}, nil
		}
		t.Complete(StageValidate, "Cache outdated, fetching fresh data")
	} else {
		t.Complete(StageCheckCache, "No cache found, fetching fresh data")
		t.Complete(StageValidate, "Nothing to validate")
	}

	files, origin, err := g.fetchFresh(ctx, t, cached)
	if err != nil {
		t.FailRemaining("Cancelled due to previous error")
		return nil, err
	}
	if origin == nil {
		// The remote degraded and the last snapshot was served; keep it.
		return &Fetched{Files: files, FromCache: true}, nil
	}

	record := models.CacheRecord{
		Key:       g.cacheKey(),
		Timestamp: g.opts.Now(),
		Source:    models.SourceGitHub,
		Origin:    origin,
		FileCount: len(files),
	}
	if err := g.store.PutFiles(ctx, record, g.Origin(), files); err != nil {
		g.log.Warn("github: cache files", slog.String("error", err.Error()))
	}
	return &Fetched{Files: files}, nil
}

func (g *GitHub) lookup(ctx context.Context) (*models.CacheRecord, []models.RawFile) {
	rec, err := g.store.Metadata(ctx, g.cacheKey())
	if err != nil {
		g.log.Warn("github: read cache metadata", slog.String("error", err.Error()))
		return nil, nil
	}
	if rec == nil {
		return nil, nil
	}
	files, err := g.store.Files(ctx, g.Origin())
	if err != nil {
		g.log.Warn("github: read cached files", slog.String("error", err.Error()))
		return nil, nil
	}
	return rec, files
}

// validate reports whether rec still describes the head of its branch. Any
// failure counts as invalid.
func (g *GitHub) validate(ctx context.Context, rec *models.CacheRecord) bool {
	if rec.Origin == nil {
		return false
	}
	latest, err := g.latestCommit(ctx, rec.Origin.Branch)
	if err != nil {
		g.log.Debug("github: validate cache", slog.String("error", err.Error()))
		return false
	}
	return Fresh(rec, latest, g.opts.Now())
}

// Commit is the head commit identity used for cache validation.
type Commit struct {
	ID   string
	Time time.Time
}

// Fresh reports whether rec is still valid against latest at now.
func Fresh(rec *models.CacheRecord, latest Commit, now time.Time) bool {
	if rec == nil || rec.Origin == nil {
		return false
	}
	o := rec.Origin
	if o.LastCommitID == "" || o.LastCommitID != latest.ID {
		return false
	}
	if o.LastCommitTime.IsZero() || o.LastCommitTime.Before(latest.Time) {
		return false
	}
	return now.Sub(rec.Timestamp) < MaxCacheAge
}

// fetchFresh downloads the current tree. When the tree cannot be listed it
// returns cached with a nil origin if there is a previous snapshot, and the
// probed fallback files otherwise.
func (g *GitHub) fetchFresh(ctx context.Context, t *progress.Tracker, cached []models.RawFile) ([]models.RawFile, *models.OriginInfo, error) {
	t.Start(StageFetchTree, "Fetching complete repository structure...")

	branch, err := g.defaultBranch(ctx)
	if errors.Is(err, apperr.ErrAuthRequired) || errors.Is(err, apperr.ErrNotFound) {
		t.Fail(StageFetchTree, "Repository is not accessible", err)
		return nil, nil, err
	}
	var (
		commit Commit
		tree   []treeEntry
	)
	if err == nil {
		commit, err = g.latestCommit(ctx, branch)
	}
	if err == nil {
		tree, err = g.tree(ctx, branch)
	}
	if err != nil {
		g.log.Warn("github: tree unavailable, probing fallback paths", slog.String("error", err.Error()))
		t.Note(StageFetchTree, "Tree API failed, trying fallback method...", err.Error())
		if len(cached) > 0 {
			g.log.Warn("github: serving last cached snapshot", slog.Int("files", len(cached)))
			t.Complete(StageFetchTree, fmt.Sprintf("Using last cached snapshot (%d files)", len(cached)))
			t.CompleteRemaining("Skipped (using cache)")
			return cached, nil, nil
		}
		files, ferr := g.fallback(ctx, t)
		if ferr != nil {
			return nil, nil, ferr
		}
		return files, &models.OriginInfo{Owner: g.opts.Owner, Repo: g.opts.Repo}, nil
	}
	t.Complete(StageFetchTree, fmt.Sprintf("Found %d total files", len(tree)))

	t.Start(StageFilterFiles, "Filtering markdown files...")
	wanted := g.filter(tree)
	t.Complete(StageFilterFiles, fmt.Sprintf("Found %d markdown files", len(wanted)))

	t.Start(StageBatchDownload, "Starting batch download...")
	files, err := g.download(ctx, wanted, t)
	if err != nil {
		return nil, nil, err
	}
	t.Complete(StageBatchDownload, fmt.Sprintf("Downloaded %d files successfully", len(files)))

	return files, &models.OriginInfo{
		Owner:          g.opts.Owner,
		Repo:           g.opts.Repo,
		Branch:         branch,
		LastCommitID:   commit.ID,
		LastCommitTime: commit.Time,
	}, nil
}

func (g *GitHub) filter(tree []treeEntry) []treeEntry {
	var out []treeEntry
	for _, e := range tree {
		if e.Type == "blob" && strings.HasSuffix(e.Path, g.opts.Extension) && e.Size > 0 && e.Size < MaxFileSize {
			out = append(out, e)
		}
	}
	return out
}

// download fetches wanted in fixed-size concurrent batches. Files that fail
// to download are logged and skipped.
func (g *GitHub) download(ctx context.Context, wanted []treeEntry, t *progress.Tracker) ([]models.RawFile, error) {
	total := len(wanted)
	t.Update(StageBatchDownload, fmt.Sprintf("Preparing to download %d files...", total), 0)

	results := make([]*models.RawFile, total)
	size := g.opts.BatchSize
	for start := 0; start < total; start += size {
		end := min(start+size, total)

		eg, egctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			entry := wanted[i]
			eg.Go(func() error {
				content, err := g.raw(egctx, entry.Path)
				if err != nil {
					g.log.Warn("github: download file",
						slog.String("path", entry.Path),
						slog.String("error", err.Error()))
					return nil
				}
				f := newRawFile(path.Base(entry.Path), entry.Path, content, g.Origin())
				results[i] = &f
				return nil
			})
		}
		_ = eg.Wait()
		t.Update(StageBatchDownload,
			fmt.Sprintf("Downloaded files %d-%d of %d", start+1, end, total),
			progress.Percent(end, total))

		if end < total {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("github: download: %w: %w", apperr.ErrSourceUnavailable, ctx.Err())
			case <-time.After(g.opts.BatchDelay):
			}
		}
	}

	files := make([]models.RawFile, 0, total)
	for _, f := range results {
		if f != nil {
			files = append(files, *f)
		}
	}
	return files, nil
}

// fallback probes conventional entry paths and synthesizes a demo document
// when none resolve.
func (g *GitHub) fallback(ctx context.Context, t *progress.Tracker) ([]models.RawFile, error) {
	t.Update(StageFetchTree, "Trying common file discovery...", -1)

	var files []models.RawFile
	for _, p := range fallbackPaths {
		content, err := g.raw(ctx, p)
		if err != nil {
			continue
		}
		files = append(files, newRawFile(path.Base(p), p, content, g.Origin()))
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("github: fallback: %w: %w", apperr.ErrSourceUnavailable, ctx.Err())
	}
	if len(files) == 0 {
		files = append(files, RemoteDemo(g.Origin()))
	}

	t.Complete(StageFetchTree, fmt.Sprintf("Found %d files via fallback method", len(files)))
	t.Complete(StageFilterFiles, "Filtering skipped for fallback method")
	t.Complete(StageBatchDownload, "Files already downloaded via fallback")
	return files, nil
}

type repoResponse struct {
	DefaultBranch string `json:"default_branch"`
}

type commitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type treeResponse struct {
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

func (g *GitHub) repoPath() string {
	return "/repos/" + url.PathEscape(g.opts.Owner) + "/" + url.PathEscape(g.opts.Repo)
}

func (g *GitHub) defaultBranch(ctx context.Context) (string, error) {
	var repo repoResponse
	if err := g.getJSON(ctx, g.opts.APIURL+g.repoPath(), &repo); err != nil {
		return "", fmt.Errorf("github: repository %s/%s: %w", g.opts.Owner, g.opts.Repo, err)
	}
	if repo.DefaultBranch == "" {
		return "main", nil
	}
	return repo.DefaultBranch, nil
}

func (g *GitHub) latestCommit(ctx context.Context, branch string) (Commit, error) {
	q := url.Values{"per_page": {"1"}}
	if branch != "" {
		q.Set("sha", branch)
	}
	var commits []commitResponse
	if err := g.getJSON(ctx, g.opts.APIURL+g.repoPath()+"/commits?"+q.Encode(), &commits); err != nil {
		return Commit{}, fmt.Errorf("github: latest commit: %w", err)
	}
	if len(commits) == 0 {
		return Commit{}, fmt.Errorf("github: latest commit: %w: no commits", apperr.ErrNotFound)
	}
	return Commit{ID: commits[0].SHA, Time: commits[0].Commit.Committer.Date}, nil
}

func (g *GitHub) tree(ctx context.Context, branch string) ([]treeEntry, error) {
	var tr treeResponse
	u := g.opts.APIURL + g.repoPath() + "/git/trees/" + url.PathEscape(branch) + "?recursive=1"
	if err := g.getJSON(ctx, u, &tr); err != nil {
		return nil, fmt.Errorf("github: tree: %w", err)
	}
	if tr.Truncated {
		g.log.Warn("github: repository tree was truncated, some files may be missing")
	}
	return tr.Tree, nil
}

func (g *GitHub) raw(ctx context.Context, p string) (string, error) {
	u := g.opts.RawURL + "/" + url.PathEscape(g.opts.Owner) + "/" + url.PathEscape(g.opts.Repo) + "/HEAD/" + escapePath(p)
	resp, err := g.do(ctx, u, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %w", apperr.ErrSourceUnavailable, err)
	}
	return string(data), nil
}

// escapePath escapes each segment of a slash-separated tree path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

func (g *GitHub) getJSON(ctx context.Context, u string, v any) error {
	resp, err := g.do(ctx, u, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode response: %w", apperr.ErrSourceUnavailable, err)
	}
	return nil
}

// do issues a GET and maps non-2xx responses to the error taxonomy. The
// caller closes the body of a successful response.
func (g *GitHub) do(ctx context.Context, u string, api bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "laguz")
	if api {
		req.Header.Set("Accept", "application/vnd.github.v3+json")
	}
	if g.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.opts.Token)
	}

	resp, err := g.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrSourceUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(resp)
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", apperr.ErrAuthRequired, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w: status %d", apperr.ErrNotFound, resp.StatusCode)
	case http.StatusForbidden, http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			rl := &apperr.RateLimitError{}
			if secs, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
				rl.Reset = time.Unix(secs, 0)
			}
			return rl
		}
	}
	return fmt.Errorf("%w: unexpected status %d", apperr.ErrSourceUnavailable, resp.StatusCode)
}
