package domain

import "time"

// JobState is a node in the sync job state machine.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobClaimed   JobState = "claimed"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// SyncJob drives one mailing list's ingest/thread/index pass through the
// worker. ClaimOwner and the deadline are set by JobQueue.Claim.
type SyncJob struct {
	ID            string // UUID
	MailingListID int64
	State         JobState
	ClaimOwner    string
	Deadline      *time.Time
	Attempts      int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
