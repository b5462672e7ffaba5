package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tansanrao/nexus/core/clock"
	"github.com/tansanrao/nexus/core/domain"
)

// fakeJobStore is an in-memory, single-process JobStore that still honors
// the at-most-one-claimant guarantee via a mutex, standing in for Postgres
// row-level locking in tests.
type fakeJobStore struct {
	mu     sync.Mutex
	nextID int
	jobs   map[string]*domain.SyncJob
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.SyncJob)}
}

func (f *fakeJobStore) Enqueue(ctx context.Context, listID int64) (domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := time.Now().String() // distinct enough across a single test run
	id = id + string(rune('a'+f.nextID))
	job := &domain.SyncJob{ID: id, MailingListID: listID, State: domain.JobQueued}
	f.jobs[job.ID] = job
	return *job, nil
}

func (f *fakeJobStore) Claim(ctx context.Context, owner string, deadline time.Time) (*domain.SyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.State == domain.JobQueued {
			j.State = domain.JobClaimed
			j.ClaimOwner = owner
			d := deadline
			j.Deadline = &d
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeJobStore) MarkRunning(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return errors.New("not found")
	}
	j.State = domain.JobRunning
	return nil
}

func (f *fakeJobStore) Heartbeat(ctx context.Context, jobID string, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return errors.New("not found")
	}
	d := deadline
	j.Deadline = &d
	return nil
}

func (f *fakeJobStore) Complete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return errors.New("not found")
	}
	j.State = domain.JobCompleted
	return nil
}

func (f *fakeJobStore) Fail(ctx context.Context, jobID string, errMsg string, maxAttempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return errors.New("not found")
	}
	j.Attempts++
	j.ErrorMessage = errMsg
	if j.Attempts >= maxAttempts {
		j.State = domain.JobFailed
	} else {
		j.State = domain.JobQueued
	}
	return nil
}

func (f *fakeJobStore) ReclaimExpired(ctx context.Context, maxAttempts int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	n := 0
	for _, j := range f.jobs {
		if (j.State == domain.JobClaimed || j.State == domain.JobRunning) && j.Deadline != nil && now.After(*j.Deadline) {
			j.Attempts++
			if j.Attempts >= maxAttempts {
				j.State = domain.JobFailed
			} else {
				j.State = domain.JobQueued
			}
			n++
		}
	}
	return n, nil
}

func TestQueue_ClaimIsExclusive(t *testing.T) {
	store := newFakeJobStore()
	q := New(store, clock.Real{})

	job, err := q.Enqueue(context.Background(), 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_ = job

	first, err := q.Claim(context.Background(), "worker-a")
	if err != nil || first == nil {
		t.Fatalf("expected first claim to succeed, got job=%v err=%v", first, err)
	}

	second, err := q.Claim(context.Background(), "worker-b")
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if second != nil {
		t.Fatalf("expected second claim to find no job, got %v", second)
	}
}

func TestQueue_FailThenRetryThenPermanentFailure(t *testing.T) {
	store := newFakeJobStore()
	q := New(store, clock.Real{})
	q.MaxAttempts = 2

	job, _ := q.Enqueue(context.Background(), 1)

	claimed, _ := q.Claim(context.Background(), "w1")
	if claimed == nil {
		t.Fatal("expected claim")
	}
	if err := q.Fail(context.Background(), job.ID, errors.New("boom")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if store.jobs[job.ID].State != domain.JobQueued {
		t.Fatalf("expected requeue after first failure, got %s", store.jobs[job.ID].State)
	}

	claimed, _ = q.Claim(context.Background(), "w2")
	if claimed == nil {
		t.Fatal("expected second claim after requeue")
	}
	if err := q.Fail(context.Background(), job.ID, errors.New("boom again")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if store.jobs[job.ID].State != domain.JobFailed {
		t.Fatalf("expected permanent failure after max attempts, got %s", store.jobs[job.ID].State)
	}
}

func TestQueue_ReclaimExpired(t *testing.T) {
	store := newFakeJobStore()
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := New(store, fixed)
	q.LeaseDuration = time.Minute

	job, _ := q.Enqueue(context.Background(), 1)
	if _, err := q.Claim(context.Background(), "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	fixed.Advance(2 * time.Minute)
	n, err := q.ReclaimExpired(context.Background())
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed job, got %d", n)
	}
	if store.jobs[job.ID].State != domain.JobQueued {
		t.Fatalf("expected job back to queued, got %s", store.jobs[job.ID].State)
	}
}
