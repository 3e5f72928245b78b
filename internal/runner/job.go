package runner

import (
	"context"
	"fmt"

	"artcache/internal/core/logger"
	"artcache/internal/core/tracker"
)

// JobHandler implements the job's behavior.
type JobHandler func(ctx context.Context, job *Job) error

// JobCallback is called after the job has run, regardless of outcome.
type JobCallback func(ctx context.Context, job *Job)

// JobOption is an option for a job.
type JobOption func(job *Job)

// WithJobLogger sets the job's logger.
func WithJobLogger(logger *logger.Logger) JobOption {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithJobCallback sets the job's completion callback.
func WithJobCallback(callback JobCallback) JobOption {
	return func(j *Job) {
		j.callback = callback
	}
}

// Job is one unit of work identified by name. The name doubles as the
// result key: the sync engine names jobs after cache keys so each completed
// job is an explicit per-key result.
type Job struct {
	logger   *logger.Logger
	tracker  *tracker.Tracker
	name     string
	callback JobCallback
	handler  JobHandler
}

// NewJob creates a new job with a name and a handler.
func NewJob(name string, handler JobHandler, opts ...JobOption) *Job {
	j := &Job{
		logger:  logger.NewLogger(logger.WithName(name)),
		tracker: tracker.NewTracker(name),
		name:    name,
		handler: handler,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns the name of the job.
func (j *Job) Name() string {
	return j.name
}

// Run runs the job handler. A job runs at most once.
func (j *Job) Run(ctx context.Context) error {
	if !j.tracker.IsPending() {
		return fmt.Errorf("job already started")
	}
	j.tracker.Start()

	err := j.handler(ctx, j)
	j.tracker.Update(err)

	if j.callback != nil {
		j.callback(ctx, j)
	}

	return err
}

// Err returns the job's recorded error, nil if it succeeded or has not run.
func (j *Job) Err() error {
	return j.tracker.Err()
}

// Tracker returns the tracker of the job.
func (j *Job) Tracker() *tracker.Tracker {
	return j.tracker
}

// Logger returns the logger of the job.
func (j *Job) Logger() *logger.Logger {
	return j.logger
}
