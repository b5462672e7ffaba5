// Package jobqueue implements the durable sync job state machine:
//
//	queued --claim--> claimed --start--> running --ok--> completed
//	                      ^                  |
//	                      └── reclaim after deadline elapses
//	                                         └--err--> failed
//
// State transitions are serialized by the underlying JobStore's row-level
// locking (Postgres SELECT ... FOR UPDATE SKIP LOCKED), so at most one
// worker ever owns a given job.
package jobqueue

import (
	"context"
	"time"

	"github.com/tansanrao/nexus/core/clock"
	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// DefaultLeaseDuration is how long a claim is valid before it is eligible
// for reclaim by the janitor.
const DefaultLeaseDuration = 5 * time.Minute

// DefaultMaxAttempts bounds how many attempts a job gets, counting the
// first, before it is moved to failed permanently.
const DefaultMaxAttempts = 3

// Queue wraps a JobStore with the lease/attempt policy every caller shares.
type Queue struct {
	store         port.JobStore
	clock         clock.Clock
	LeaseDuration time.Duration
	MaxAttempts   int
}

func New(store port.JobStore, c clock.Clock) *Queue {
	return &Queue{
		store:         store,
		clock:         c,
		LeaseDuration: DefaultLeaseDuration,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

func (q *Queue) Enqueue(ctx context.Context, listID int64) (domain.SyncJob, error) {
	job, err := q.store.Enqueue(ctx, listID)
	if err != nil {
		return domain.SyncJob{}, apperr.DatabaseError("enqueue sync job", err)
	}
	return job, nil
}

// Claim returns the oldest queued job for this owner, or nil if the queue
// is empty. Two concurrent Claim calls never return the same job.
func (q *Queue) Claim(ctx context.Context, owner string) (*domain.SyncJob, error) {
	deadline := q.clock.Now().Add(q.LeaseDuration)
	job, err := q.store.Claim(ctx, owner, deadline)
	if err != nil {
		return nil, apperr.Transient("claim sync job", err)
	}
	return job, nil
}

func (q *Queue) Start(ctx context.Context, jobID string) error {
	if err := q.store.MarkRunning(ctx, jobID); err != nil {
		return apperr.DatabaseError("mark job running", err)
	}
	return nil
}

// Heartbeat extends a running job's lease; callers invoke this periodically
// for long-running sync passes so the janitor doesn't reclaim a healthy job.
func (q *Queue) Heartbeat(ctx context.Context, jobID string) error {
	deadline := q.clock.Now().Add(q.LeaseDuration)
	if err := q.store.Heartbeat(ctx, jobID, deadline); err != nil {
		return apperr.Transient("heartbeat sync job", err)
	}
	return nil
}

func (q *Queue) Complete(ctx context.Context, jobID string) error {
	if err := q.store.Complete(ctx, jobID); err != nil {
		return apperr.DatabaseError("complete sync job", err)
	}
	return nil
}

func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	if err := q.store.Fail(ctx, jobID, cause.Error(), q.MaxAttempts); err != nil {
		return apperr.DatabaseError("fail sync job", err)
	}
	return nil
}

// ReclaimExpired runs the janitor pass: any claimed/running job whose lease
// has elapsed goes back to queued (attempts++), or to failed once attempts
// reaches MaxAttempts. Returns how many jobs were reclaimed.
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	n, err := q.store.ReclaimExpired(ctx, q.MaxAttempts)
	if err != nil {
		return 0, apperr.Transient("reclaim expired sync jobs", err)
	}
	return n, nil
}
