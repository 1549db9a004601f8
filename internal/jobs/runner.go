// Package jobs runs fire-and-forget background work. Refresh and
// analysis triggers return an acknowledgment immediately; the work
// proceeds on its own goroutine with a bounded lifetime.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobTimeout bounds a single job's execution.
const JobTimeout = 5 * time.Minute

// StatusRetention is how long a finished job stays pollable before its
// status is evicted. Without eviction the status map grows by one entry
// per cron tick for the life of the process.
const StatusRetention = time.Hour

// Job states.
const (
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// ErrDuplicate is returned when a job with the same name is already
// running. One refresh at a time is enough.
var ErrDuplicate = errors.New("jobs: already running")

// Status is the observable state of a submitted job.
type Status struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Runner executes named jobs on background goroutines, one in flight
// per name.
type Runner struct {
	base      context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	retention time.Duration
	mu        sync.Mutex
	inFlight  map[string]string // name -> job id
	statuses  map[string]*Status
	wg        sync.WaitGroup
	log       zerolog.Logger
}

// NewRunner creates a job runner tied to a base context. Cancelling the
// base context (shutdown) cancels running jobs.
func NewRunner(base context.Context, log zerolog.Logger) *Runner {
	ctx, cancel := context.WithCancel(base)
	return &Runner{
		base:      ctx,
		cancel:    cancel,
		timeout:   JobTimeout,
		retention: StatusRetention,
		inFlight:  make(map[string]string),
		statuses:  make(map[string]*Status),
		log:       log.With().Str("service", "jobs").Logger(),
	}
}

// Submit starts fn on a worker goroutine and returns the job id. A job
// with the same name still running is rejected with ErrDuplicate.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) (string, error) {
	r.mu.Lock()
	if _, running := r.inFlight[name]; running {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	id := uuid.New().String()
	status := &Status{ID: id, Name: name, State: StateRunning, StartedAt: time.Now()}
	r.inFlight[name] = id
	r.statuses[id] = status
	r.evictLocked()
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.base, r.timeout)
		defer cancel()

		err := runRecovered(ctx, fn)

		r.mu.Lock()
		delete(r.inFlight, name)
		status.FinishedAt = time.Now()
		if err != nil {
			status.State = StateFailed
			status.Error = err.Error()
		} else {
			status.State = StateDone
		}
		r.mu.Unlock()

		if err != nil {
			r.log.Error().Err(err).Str("job", name).Str("id", id).Msg("Job failed")
		} else {
			r.log.Info().Str("job", name).Str("id", id).
				Str("duration", status.FinishedAt.Sub(status.StartedAt).Round(time.Millisecond).String()).
				Msg("Job complete")
		}
	}()

	return id, nil
}

// runRecovered converts a job panic into an error so one bad job cannot
// take the process down.
func runRecovered(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// evictLocked drops finished statuses past the retention window.
// Caller holds r.mu.
func (r *Runner) evictLocked() {
	cutoff := time.Now().Add(-r.retention)
	for id, s := range r.statuses {
		if s.State != StateRunning && s.FinishedAt.Before(cutoff) {
			delete(r.statuses, id)
		}
	}
}

// Status returns the status of a job by id, nil when unknown.
func (r *Runner) Status(id string) *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.statuses[id]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// Running reports whether a job with the given name is in flight.
func (r *Runner) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[name]
	return ok
}

// Shutdown cancels running jobs and waits for their goroutines, up to
// the given grace period.
func (r *Runner) Shutdown(grace time.Duration) {
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		r.log.Warn().Msg("Job runner shutdown timed out")
	}
}
