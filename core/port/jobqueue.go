package port

import (
	"context"
	"time"

	"github.com/tansanrao/nexus/core/domain"
)

// JobStore persists the sync job queue. Claim must be implemented with
// Postgres `SELECT ... FOR UPDATE SKIP LOCKED` so two workers calling Claim
// concurrently never receive the same row.
type JobStore interface {
	// Enqueue inserts a new queued job for a mailing list.
	Enqueue(ctx context.Context, listID int64) (domain.SyncJob, error)

	// Claim atomically selects the oldest queued job, skip-locked, marks it
	// claimed with owner and deadline, and returns it. Returns nil, nil if
	// no job is available.
	Claim(ctx context.Context, owner string, deadline time.Time) (*domain.SyncJob, error)

	// MarkRunning transitions a claimed job to running.
	MarkRunning(ctx context.Context, jobID string) error

	// Heartbeat extends a running job's deadline.
	Heartbeat(ctx context.Context, jobID string, deadline time.Time) error

	// Complete transitions a job to completed.
	Complete(ctx context.Context, jobID string) error

	// Fail increments attempts and either requeues (attempts < maxAttempts)
	// or moves the job to failed, recording errMsg either way.
	Fail(ctx context.Context, jobID string, errMsg string, maxAttempts int) error

	// ReclaimExpired returns claimed/running jobs whose deadline has
	// elapsed to queued (incrementing attempts), or to failed once
	// attempts reaches maxAttempts. Returns the count reclaimed.
	ReclaimExpired(ctx context.Context, maxAttempts int) (int, error)
}
