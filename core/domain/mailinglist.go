package domain

import "time"

// MailingList is immutable except for LastThreadedAt and Enabled.
type MailingList struct {
	ID            int64
	Slug          string
	Name          string
	Description   string
	Enabled       bool
	SyncPriority  int
	LastThreadedAt *time.Time
}

// Repository is one archive source ordered by RepoOrder within a list.
// LastIndexedCommit advances only after a chunk commits.
type Repository struct {
	MailingListID     int64
	RepoOrder         int
	URL               string
	LastIndexedCommit string
}
