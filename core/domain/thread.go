package domain

import "time"

// Thread is derived exclusively from the forest ThreadBuilder constructs.
type Thread struct {
	ID              int64
	MailingListID   int64
	RootMessageID   string
	Subject         string
	StartDate       time.Time
	MessageCount    int
	LastTS          time.Time
	Participants    []int64 // author IDs
	HasPatches      bool
	SeriesID        string
	StarterAuthorID int64
}

// ThreadMembership places one email at a depth within a thread.
type ThreadMembership struct {
	ThreadID int64
	EmailID  int64
	Depth    int
}
