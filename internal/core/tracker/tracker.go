package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"artcache/internal/core/types"

	"github.com/dustin/go-humanize"
)

// Tracker records the status, progress and outcome of one operation.
type Tracker struct {
	name      string
	mu        sync.RWMutex
	status    types.Status
	startedAt time.Time
	endedAt   time.Time
	current   int64
	total     int64
	err       error
}

func NewTracker(name string) *Tracker {
	return &Tracker{
		name:   name,
		status: types.StatusPending,
	}
}

func (t *Tracker) Name() string {
	return t.name
}

func (t *Tracker) Status() types.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

func (t *Tracker) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.status.IsActive() {
		return time.Since(t.startedAt)
	}
	return t.endedAt.Sub(t.startedAt)
}

func (t *Tracker) DurationString() string {
	return t.Duration().Round(time.Second).String()
}

func (t *Tracker) Current() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tracker) Total() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total
}

func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = max(0, total)
}

func (t *Tracker) IncTotal(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = max(0, t.total+n)
}

func (t *Tracker) IncCurrent(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = max(0, t.current+n)
}

// CurrentBytes returns the current count formatted as a byte size.
func (t *Tracker) CurrentBytes() string {
	return humanize.Bytes(uint64(t.Current()))
}

// ProgressFraction returns progress as "current/total".
func (t *Tracker) ProgressFraction() string {
	return fmt.Sprintf("%d/%d", t.Current(), t.Total())
}

// Start triggers the tracker to start.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = time.Now()
	t.status = types.StatusRunning
	t.err = nil
}

// Update finalizes the tracker from the operation's result.
func (t *Tracker) Update(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endedAt = time.Now()
	switch err {
	case nil:
		t.status = types.StatusSucceeded
	case context.Canceled:
		t.status = types.StatusCanceled
		t.err = err
	default:
		t.status = types.StatusFailed
		t.err = err
	}
}

func (t *Tracker) IsPending() bool {
	return t.Status() == types.StatusPending
}

func (t *Tracker) IsSucceeded() bool {
	return t.Status().IsSuccess()
}

func (t *Tracker) IsFailed() bool {
	return t.Status() == types.StatusFailed
}

func (t *Tracker) IsCanceled() bool {
	return t.Status() == types.StatusCanceled
}
