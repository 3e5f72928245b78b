package runner

import (
	"context"
	"fmt"
	"sync"

	"artcache/internal/core/logger"
	"artcache/internal/core/tracker"
)

const (
	defaultQueueSize = 1000
	defaultWorkers   = 10
)

// PoolOption is an option for a pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(logger *logger.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithPoolWorkers sets the number of workers.
func WithPoolWorkers(workers int) PoolOption {
	return func(p *Pool) {
		if workers > 0 {
			p.workers = workers
		}
	}
}

// WithPoolQueueSize sets the capacity of the job and completion queues.
func WithPoolQueueSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// Pool runs independently submitted jobs on a bounded set of workers.
type Pool struct {
	name      string
	workers   int
	queueSize int
	wg        sync.WaitGroup
	logger    *logger.Logger
	tracker   *tracker.Tracker
	jobs      chan *Job
	completed chan *Job
	done      <-chan struct{}
}

// NewPool creates a pool and starts its workers. Workers run until ctx is
// cancelled; the completion queue is closed once all workers have exited.
func NewPool(ctx context.Context, name string, opts ...PoolOption) *Pool {
	p := &Pool{
		name:      name,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		logger:    logger.NewLogger(logger.WithName(name)),
		tracker:   tracker.NewTracker(name),
		done:      ctx.Done(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.jobs = make(chan *Job, p.queueSize)
	p.completed = make(chan *Job, p.queueSize)

	p.tracker.Start()
	p.wg.Add(p.workers)
	for range p.workers {
		go p.worker(ctx)
	}
	go p.finalizer()

	return p
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case job := <-p.jobs:
			p.logger.Debug("worker running job", "job", job.Name())
			err := job.Run(ctx)
			p.tracker.Update(err)
			p.tracker.IncCurrent(1)

			select {
			case p.completed <- job:
			default:
				p.logger.Warn("completion queue full, dropping result",
					"job", job.Name(),
					"status", job.Tracker().Status(),
					"error", job.Err(),
				)
			}
		}
	}
}

func (p *Pool) finalizer() {
	p.wg.Wait()
	close(p.completed)
}

// Submit adds a new job to the pool without blocking.
func (p *Pool) Submit(job *Job) error {
	select {
	case <-p.done:
		return fmt.Errorf("pool is closed")
	default:
		select {
		case p.jobs <- job:
			p.tracker.IncTotal(1)
			return nil
		default:
			return fmt.Errorf("job queue is full")
		}
	}
}

// Wait blocks until one job completes. It returns an error once the pool is
// closed and no completions remain.
func (p *Pool) Wait() (*Job, error) {
	job, ok := <-p.completed
	if !ok {
		return nil, fmt.Errorf("pool is closed")
	}
	return job, nil
}

// Tracker returns the tracker of the pool.
func (p *Pool) Tracker() *tracker.Tracker {
	return p.tracker
}

// RunAll runs the given jobs on a dedicated pool and blocks until every job
// has completed or ctx is cancelled. It returns the jobs that actually ran;
// jobs still queued at cancellation are absent from the result, which callers
// treat the same as failed.
func RunAll(ctx context.Context, name string, jobs []*Job, opts ...PoolOption) []*Job {
	if len(jobs) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts = append(opts, WithPoolQueueSize(len(jobs)))
	pool := NewPool(runCtx, name, opts...)

	done := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if err := pool.Submit(job); err != nil {
			return done
		}
	}
	for range jobs {
		select {
		case job, ok := <-pool.completed:
			if !ok {
				return done
			}
			done = append(done, job)
		case <-ctx.Done():
			return done
		}
	}
	return done
}
