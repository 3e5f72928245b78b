package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"artcache/internal/artifact"
	"artcache/internal/core/logger"
	"artcache/internal/core/progress"
	"artcache/internal/runner"
)

// Fetcher is implemented by artifacts that can stage their bytes locally
// ahead of being opened. Local artifacts don't need it and don't implement
// it.
type Fetcher interface {
	Fetch(ctx context.Context) error
}

// PrefetchOption is an option for a prefetcher.
type PrefetchOption func(*Prefetcher)

// WithPrefetchWorkers sets the number of concurrent downloads.
func WithPrefetchWorkers(workers int) PrefetchOption {
	return func(p *Prefetcher) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

// WithPrefetchLogger sets the prefetcher's logger.
func WithPrefetchLogger(log *logger.Logger) PrefetchOption {
	return func(p *Prefetcher) {
		p.logger = log
	}
}

// WithPrefetchProgress renders a progress bar while downloading.
func WithPrefetchProgress(prog *progress.Progress) PrefetchOption {
	return func(p *Prefetcher) {
		p.progress = prog
	}
}

// Prefetcher downloads a batch of artifacts concurrently into their
// providers' spool directories.
type Prefetcher struct {
	workers  int
	logger   *logger.Logger
	progress *progress.Progress
}

const defaultPrefetchWorkers = 10

func NewPrefetcher(opts ...PrefetchOption) *Prefetcher {
	p := &Prefetcher{
		workers: defaultPrefetchWorkers,
		logger:  logger.NewLogger(logger.WithName("prefetch")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DownloadAll fetches every artifact that supports prefetching. Artifacts
// without Fetch are skipped; their bytes stream on demand instead. Any
// download failure fails the batch as a whole.
func (p *Prefetcher) DownloadAll(ctx context.Context, artifacts []artifact.Artifact) error {
	fetchers := make(map[string]Fetcher, len(artifacts))
	for _, a := range artifacts {
		if fetcher, ok := a.(Fetcher); ok {
			fetchers[a.Key()] = fetcher
		}
	}
	if len(fetchers) == 0 {
		return nil
	}

	jobOpts := []runner.JobOption{}
	if p.progress != nil {
		bar := p.progress.AddBar("downloading", int64(len(fetchers)))
		defer bar.Abort()
		jobOpts = append(jobOpts, runner.WithJobCallback(func(ctx context.Context, job *runner.Job) {
			bar.Increment()
		}))
	}

	jobs := make([]*runner.Job, 0, len(fetchers))
	for key, fetcher := range fetchers {
		jobs = append(jobs, runner.NewJob(key, func(ctx context.Context, job *runner.Job) error {
			return fetcher.Fetch(ctx)
		}, jobOpts...))
	}

	done := runner.RunAll(ctx, "prefetch", jobs,
		runner.WithPoolWorkers(p.workers),
		runner.WithPoolLogger(p.logger),
	)

	errs := make([]error, 0, len(jobs))
	for _, job := range done {
		if err := job.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	if missing := len(jobs) - len(done); missing > 0 {
		errs = append(errs, fmt.Errorf("%d downloads did not complete", missing))
	}
	return errors.Join(errs...)
}

// fetchToFile streams the reader returned by open into dest, writing through
// a temp file so a partial download never lands under the final name.
func fetchToFile(ctx context.Context, open func(context.Context) (io.ReadCloser, error), dest string) error {
	src, err := open(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
