package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"artcache/internal/artifact"
	"artcache/internal/core/logger"
)

// Downloader fetches the bytes of a batch of artifacts ahead of the copy
// phase. Batching amortizes round-trips; a failure is reported for the batch
// as a whole.
type Downloader interface {
	DownloadAll(ctx context.Context, artifacts []artifact.Artifact) error
}

// Reporter receives human-readable sync output. It is purely observational
// and never affects control flow.
type Reporter interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

type logReporter struct {
	log *logger.Logger
}

func (r logReporter) Printf(format string, args ...any) {
	r.log.Info(fmt.Sprintf(format, args...))
}

func (r logReporter) Warnf(format string, args ...any) {
	r.log.Warn(fmt.Sprintf(format, args...))
}

// Option is an option for an ArtifactCache.
type Option func(*ArtifactCache)

// WithDownloader sets the batch downloader used before the copy phase.
func WithDownloader(d Downloader) Option {
	return func(c *ArtifactCache) {
		c.downloader = d
	}
}

// WithWorkers sets the number of concurrent copy/delete workers.
func WithWorkers(workers int) Option {
	return func(c *ArtifactCache) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithLogger sets the cache's logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *ArtifactCache) {
		c.logger = log
	}
}

// WithReporter sets the sink for sync summaries and warnings.
func WithReporter(r Reporter) Option {
	return func(c *ArtifactCache) {
		c.reporter = r
	}
}

// ArtifactCache is an on-disk cache of remotely-addressable artifacts.
//
// Get returns the local path of a cached artifact. PutAll populates the
// cache from a batch of artifacts: it detects changed artifacts by
// fingerprint, fetches and copies only those, and optionally evicts entries
// missing from the batch. The in-memory index is persisted to a descriptor
// file in the cache directory after every mutation and is reconciled against
// the real file tree by Initialize.
//
// All operations are serialized by one coarse lock; the cache directory is
// exclusively owned by a single ArtifactCache instance.
type ArtifactCache struct {
	mu   sync.Mutex
	name string
	dir  string

	// state maps cache key to entry; source of truth for Get.
	state map[string]artifact.Entry

	downloader Downloader
	workers    int
	logger     *logger.Logger
	reporter   Reporter
}

// New creates a cache storing artifacts under dir. The name is used for
// reporting only. Call Initialize before use.
func New(name, dir string, opts ...Option) *ArtifactCache {
	c := &ArtifactCache{
		name:    name,
		dir:     dir,
		state:   make(map[string]artifact.Entry),
		workers: defaultWorkers,
		logger:  logger.NewLogger(logger.WithName(name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = logReporter{log: c.logger}
	}
	return c
}

const defaultWorkers = 10

// Initialize loads the persisted index and reconciles it against the files
// actually on disk. It performs blocking I/O and must be called before any
// other operation.
func (c *ArtifactCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	files, err := listCacheFiles(c.dir)
	if err != nil {
		return err
	}

	state, err := loadIndex(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && len(files) == 0 {
			// Fresh directory.
			c.state = make(map[string]artifact.Entry)
			c.persistLocked()
			return nil
		}
		// Descriptor missing or unreadable while cached files exist: the
		// previous process died mid-operation. Clear for a clean start
		// rather than attempting a partial repair.
		c.logger.Warn("cache descriptor missing or unreadable, clearing cache directory",
			"dir", c.dir, "error", err)
		c.clearLocked(ctx)
		return nil
	}
	c.state = state

	if removed := reconcile(c.state, files); len(removed) > 0 {
		c.logger.Warn("removed invalid references from cache index",
			"cache", c.name, "count", len(removed))
	}

	c.sweepUntrackedLocked(ctx, files)
	c.persistLocked()
	return ctx.Err()
}

// Get returns the local path for a cache key, or false if the key is not
// cached. It is a pure index lookup; no filesystem check is performed.
func (c *ArtifactCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.state[key]
	if !ok {
		return "", false
	}
	return c.pathFor(entry.FileName), true
}

// GetArtifact resolves the artifact to its cache entry and returns the local
// path. Resolution failure yields false instead of an error.
func (c *ArtifactCache) GetArtifact(ctx context.Context, a artifact.Artifact) (string, bool) {
	entry, err := artifact.EntryFor(ctx, a)
	if err != nil {
		return "", false
	}
	return c.Get(entry.CacheKey)
}

// Keys returns all cached keys, sorted.
func (c *ArtifactCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.state))
	for key := range c.state {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// PutAll synchronizes the cache with the given artifacts. Changed or unknown
// artifacts are fetched and copied; when removeMissing is true, entries
// absent from the batch are evicted. Callers that do not pass the full
// authoritative artifact set must leave removeMissing false.
//
// Individual copy or delete failures are logged and leave the affected key's
// previous state intact; the index is persisted once at the end reflecting
// confirmed successes only. The only returned error is the context's, after
// partial progress has been persisted.
func (c *ArtifactCache) PutAll(ctx context.Context, artifacts []artifact.Artifact, removeMissing bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncLocked(ctx, artifacts, removeMissing)
}

// Clear deletes all cached files (best effort, concurrently) and
// unconditionally resets the index to empty, persisting the empty state even
// if some deletions failed.
func (c *ArtifactCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked(ctx)
	return ctx.Err()
}

func (c *ArtifactCache) clearLocked(ctx context.Context) {
	files, err := listCacheFiles(c.dir)
	if err != nil {
		c.logger.Warn("could not list cache directory", "dir", c.dir, "error", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	c.deleteFilesLocked(ctx, "clear", names)

	c.state = make(map[string]artifact.Entry)
	c.persistLocked()
}

// persistLocked writes the index snapshot. Write failures are logged, not
// escalated: the in-memory index stays authoritative for this process.
func (c *ArtifactCache) persistLocked() {
	if err := writeIndex(c.dir, c.state); err != nil {
		c.logger.Warn("failed to write cache descriptor", "dir", c.dir, "error", err)
	}
}

func (c *ArtifactCache) pathFor(fileName string) string {
	return filepath.Join(c.dir, fileName)
}
