/*
Package queue provides a durable job queue with a small worker pool.

PURPOSE:
  Period closes run as background work items: the HTTP layer enqueues a job
  and answers immediately; workers pull due jobs, run the registered handler
  and retry transient failures with exponential backoff. Jobs live in the
  same store as everything else, so a crash loses nothing - pending jobs are
  picked up on restart.

DELIVERY SEMANTICS:
  At-least-once. A handler may run twice for the same payload (worker died
  after the work but before the status update), so handlers must tolerate
  re-invocation. The period closer explicitly does.

RETRY:
  Handler error -> attempts+1, rescheduled at backoff*2^attempts, until
  MaxAttempts, then the job is marked failed and kept for inspection.

SEE ALSO:
  - runner.go: polling worker pool
  - store/sqlite: jobs table implementation
*/
package queue

import (
	"context"
	"time"
)

// =============================================================================
// JOB
// =============================================================================

type JobID string

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one durable work item. Payload is an opaque JSON document owned by
// the handler registered for Type.
type Job struct {
	ID        JobID
	Type      string
	Payload   []byte
	Status    Status
	Attempts  int
	RunAt     time.Time
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handler executes one job. Returning an error signals a retry-eligible
// failure; the runner owns backoff and attempt accounting.
type Handler func(ctx context.Context, payload []byte) error

// =============================================================================
// JOB STORE - Persistence contract, implemented by store/sqlite and
// store/memory alongside the main ledger store
// =============================================================================

type JobStore interface {
	EnqueueJob(ctx context.Context, j Job) error

	// ClaimDueJobs atomically moves up to limit due pending jobs to running
	// and returns them. Two concurrent runners never claim the same job.
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error)

	MarkJobDone(ctx context.Context, id JobID) error

	// MarkJobRetry puts the job back to pending, scheduled at runAt.
	MarkJobRetry(ctx context.Context, id JobID, attempts int, runAt time.Time, lastError string) error

	// MarkJobFailed is terminal; the row is kept for inspection.
	MarkJobFailed(ctx context.Context, id JobID, attempts int, lastError string) error
}
