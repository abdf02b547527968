/*
runner.go - Polling worker pool

DESIGN:
  A single poll loop claims due jobs and fans them out to a bounded set of
  workers over a channel. Start/Stop follow the usual ticker + stop channel
  + WaitGroup shape so shutdown drains in-flight jobs.
*/
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// RUNNER
// =============================================================================

type Runner struct {
	Store        JobStore
	PollInterval time.Duration
	Workers      int
	MaxAttempts  int
	BackoffBase  time.Duration

	log      zerolog.Logger
	handlers map[string]Handler

	ticker *time.Ticker
	jobs   chan Job
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRunner(store JobStore, log zerolog.Logger) *Runner {
	return &Runner{
		Store:        store,
		PollInterval: 5 * time.Second,
		Workers:      4,
		MaxAttempts:  5,
		BackoffBase:  30 * time.Second,
		log:          log.With().Str("component", "queue").Logger(),
		handlers:     make(map[string]Handler),
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (r *Runner) Register(jobType string, h Handler) {
	r.handlers[jobType] = h
}

// Enqueue persists a new job due immediately.
func (r *Runner) Enqueue(ctx context.Context, jobType string, payload []byte) (JobID, error) {
	now := time.Now().UTC()
	j := Job{
		ID:        JobID(uuid.NewString()),
		Type:      jobType,
		Payload:   payload,
		Status:    StatusPending,
		RunAt:     now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Store.EnqueueJob(ctx, j); err != nil {
		return "", err
	}
	r.log.Info().Str("job_id", string(j.ID)).Str("type", jobType).Msg("job enqueued")
	return j.ID, nil
}

// Start launches the poll loop and the worker pool.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticker = time.NewTicker(r.PollInterval)
	r.jobs = make(chan Job)
	r.stop = make(chan struct{})

	for i := 0; i < r.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	r.wg.Add(1)
	go r.poll()

	r.log.Info().Int("workers", r.Workers).Dur("poll_interval", r.PollInterval).Msg("queue runner started")
}

// Stop halts polling and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stop)
		r.wg.Wait()
		r.ticker = nil
		r.log.Info().Msg("queue runner stopped")
	}
}

func (r *Runner) poll() {
	defer r.wg.Done()
	defer close(r.jobs)

	// Claim immediately on start so restarts resume pending work without
	// waiting a full interval.
	r.claimAndDispatch()

	for {
		select {
		case <-r.ticker.C:
			r.claimAndDispatch()
		case <-r.stop:
			return
		}
	}
}

func (r *Runner) claimAndDispatch() {
	ctx := context.Background()
	claimed, err := r.Store.ClaimDueJobs(ctx, time.Now().UTC(), r.Workers)
	if err != nil {
		r.log.Error().Err(err).Msg("claim due jobs failed")
		return
	}
	for _, j := range claimed {
		select {
		case r.jobs <- j:
		case <-r.stop:
			// Put the job back so a later run picks it up.
			_ = r.Store.MarkJobRetry(ctx, j.ID, j.Attempts, time.Now().UTC(), "runner stopping")
			return
		}
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.jobs {
		r.run(j)
	}
}

func (r *Runner) run(j Job) {
	ctx := context.Background()
	log := r.log.With().Str("job_id", string(j.ID)).Str("type", j.Type).Int("attempt", j.Attempts+1).Logger()

	h, ok := r.handlers[j.Type]
	if !ok {
		log.Error().Msg("no handler registered, marking failed")
		_ = r.Store.MarkJobFailed(ctx, j.ID, j.Attempts, "no handler for type "+j.Type)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("handler panicked")
			r.settle(ctx, j, "panic in handler")
		}
	}()

	if err := h(ctx, j.Payload); err != nil {
		log.Warn().Err(err).Msg("job failed")
		r.settle(ctx, j, err.Error())
		return
	}

	if err := r.Store.MarkJobDone(ctx, j.ID); err != nil {
		log.Error().Err(err).Msg("mark done failed")
		return
	}
	log.Info().Msg("job done")
}

// settle decides between retry and terminal failure.
func (r *Runner) settle(ctx context.Context, j Job, reason string) {
	attempts := j.Attempts + 1
	if attempts >= r.MaxAttempts {
		_ = r.Store.MarkJobFailed(ctx, j.ID, attempts, reason)
		return
	}
	delay := r.BackoffBase << uint(attempts-1)
	_ = r.Store.MarkJobRetry(ctx, j.ID, attempts, time.Now().UTC().Add(delay), reason)
}
