package cache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"artcache/internal/artifact"
	"artcache/internal/runner"
)

// syncLocked is the batch reconciliation algorithm behind PutAll.
//
// Artifacts are classified against the index: an artifact whose computed
// entry does not structurally equal the current entry for its key (including
// keys not present at all) is "updated"; when removeMissing is set, every
// indexed key absent from the batch is "removed". Updated artifacts are
// fetched in one batch, then copied concurrently; removed keys are deleted
// concurrently. A key is merged into (or dropped from) the index only when
// its copy (or delete) confirmed success, so a transient failure never
// corrupts a previously-valid entry. The index is persisted exactly once on
// the way out, whatever happened in between.
func (c *ArtifactCache) syncLocked(ctx context.Context, artifacts []artifact.Artifact, removeMissing bool) error {
	keyToArtifact := make(map[string]artifact.Artifact, len(artifacts))
	keyToEntry := make(map[string]artifact.Entry, len(artifacts))
	for _, a := range artifacts {
		entry, err := artifact.EntryFor(ctx, a)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.persistLocked()
				return ctxErr
			}
			// Unresolvable artifacts cannot be cached; skip them rather
			// than failing the batch.
			if artifact.IsNotFound(err) {
				c.logger.Debug("skipping vanished artifact", "key", a.Key())
			} else {
				c.logger.Warn("skipping unresolvable artifact", "key", a.Key(), "error", err)
			}
			continue
		}
		keyToArtifact[entry.CacheKey] = a
		keyToEntry[entry.CacheKey] = entry
	}

	var updated []string
	for key, entry := range keyToEntry {
		if current, ok := c.state[key]; !ok || !current.Equal(entry) {
			updated = append(updated, key)
		}
	}
	sort.Strings(updated)

	var removed []string
	if removeMissing {
		for key := range c.state {
			if _, ok := keyToEntry[key]; !ok {
				removed = append(removed, key)
			}
		}
		sort.Strings(removed)
	}

	// Persist exactly once on the way out, reflecting confirmed successes.
	defer c.persistLocked()

	if len(updated) > 0 && c.downloader != nil {
		batch := make([]artifact.Artifact, 0, len(updated))
		for _, key := range updated {
			batch = append(batch, keyToArtifact[key])
		}
		if err := c.downloader.DownloadAll(ctx, batch); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Warn("batch download failed", "cache", c.name, "error", err)
			c.reporter.Warnf("%s synchronization didn't complete. Resyncing might fix the issue", c.name)
			return nil
		}
	}

	copied := c.copyAllLocked(ctx, updated, keyToArtifact, keyToEntry)
	for _, key := range copied {
		c.state[key] = keyToEntry[key]
	}
	if len(copied) > 0 {
		c.reporter.Printf("Copied %d files to %s", len(copied), c.name)
	}

	deleted := c.deleteAllLocked(ctx, removed)
	for _, key := range deleted {
		delete(c.state, key)
	}
	if len(deleted) > 0 {
		c.reporter.Printf("Removed %d files from %s", len(deleted), c.name)
	}

	return ctx.Err()
}

// copyAllLocked copies the updated artifacts to their cache destinations
// concurrently and returns the keys whose copies succeeded.
func (c *ArtifactCache) copyAllLocked(ctx context.Context, keys []string, keyToArtifact map[string]artifact.Artifact, keyToEntry map[string]artifact.Entry) []string {
	if len(keys) == 0 {
		return nil
	}

	jobs := make([]*runner.Job, 0, len(keys))
	for _, key := range keys {
		a := keyToArtifact[key]
		dest := c.pathFor(keyToEntry[key].FileName)
		jobs = append(jobs, runner.NewJob(key, func(ctx context.Context, _ *runner.Job) error {
			return copyArtifact(ctx, a, dest)
		}))
	}

	done := runner.RunAll(ctx, c.name+"-copy", jobs,
		runner.WithPoolWorkers(c.workers),
		runner.WithPoolLogger(c.logger),
	)

	copied := make([]string, 0, len(done))
	for _, job := range done {
		if err := job.Err(); err != nil {
			c.logger.Warn("failed to copy artifact", "key", job.Name(), "error", err)
			continue
		}
		copied = append(copied, job.Name())
	}
	sort.Strings(copied)
	return copied
}

// deleteAllLocked deletes the files backing the removed keys concurrently
// and returns the keys whose deletions succeeded. A failed deletion keeps
// its index entry so a later PutAll retries it instead of losing the
// reference while a stale file lingers.
func (c *ArtifactCache) deleteAllLocked(ctx context.Context, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}

	jobs := make([]*runner.Job, 0, len(keys))
	for _, key := range keys {
		path := c.pathFor(c.state[key].FileName)
		jobs = append(jobs, runner.NewJob(key, func(ctx context.Context, _ *runner.Job) error {
			return removeFile(path)
		}))
	}

	done := runner.RunAll(ctx, c.name+"-delete", jobs,
		runner.WithPoolWorkers(c.workers),
		runner.WithPoolLogger(c.logger),
	)

	deleted := make([]string, 0, len(done))
	for _, job := range done {
		if err := job.Err(); err != nil {
			c.logger.Warn("failed to delete cached file", "key", job.Name(), "error", err)
			continue
		}
		deleted = append(deleted, job.Name())
	}
	sort.Strings(deleted)
	return deleted
}

// sweepUntrackedLocked deletes on-disk files not referenced by any index
// entry, best effort.
func (c *ArtifactCache) sweepUntrackedLocked(ctx context.Context, files map[string]struct{}) {
	tracked := make(map[string]struct{}, len(c.state))
	for _, entry := range c.state {
		tracked[entry.FileName] = struct{}{}
	}

	var untracked []string
	for name := range files {
		if _, ok := tracked[name]; !ok {
			untracked = append(untracked, name)
		}
	}
	if len(untracked) == 0 {
		return
	}

	c.logger.Warn("removing untracked files from cache directory",
		"dir", c.dir, "count", len(untracked))
	c.deleteFilesLocked(ctx, "sweep", untracked)
}

// deleteFilesLocked removes the named files under the cache directory
// concurrently, logging failures. Returns the number of files deleted.
func (c *ArtifactCache) deleteFilesLocked(ctx context.Context, phase string, names []string) int {
	if len(names) == 0 {
		return 0
	}

	jobs := make([]*runner.Job, 0, len(names))
	for _, name := range names {
		path := c.pathFor(name)
		jobs = append(jobs, runner.NewJob(name, func(ctx context.Context, _ *runner.Job) error {
			return removeFile(path)
		}))
	}

	done := runner.RunAll(ctx, c.name+"-"+phase, jobs,
		runner.WithPoolWorkers(c.workers),
		runner.WithPoolLogger(c.logger),
	)

	deleted := 0
	for _, job := range done {
		if err := job.Err(); err != nil {
			c.logger.Warn("failed to delete file", "file", job.Name(), "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// copyArtifact streams the artifact to a temp file next to dest and renames
// it into place, atomically replacing any previous copy.
func copyArtifact(ctx context.Context, a artifact.Artifact, dest string) error {
	stream, err := a.Open(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, stream)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// removeFile deletes a file, treating a missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
