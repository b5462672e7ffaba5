package port

import (
	"context"
	"time"
)

// ThreadDocument aggregates one thread's searchable surface: root metadata,
// concatenated patch-stripped discussion text, participants, flags, and an
// optional embedding vector under a named slot.
type ThreadDocument struct {
	ThreadID      int64
	MailingListID int64
	Subject       string
	DiscussionText string
	Participants  []ParticipantRef
	HasPatches    bool
	SeriesID      string
	StartDate     time.Time
	LastTS        time.Time
	MessageCount  int
	Embedding     []float32 // nil when semantic indexing is disabled
}

// ParticipantRef names a thread participant by id and display name.
type ParticipantRef struct {
	AuthorID int64
	Name     string
	Email    string
}

// AuthorDocument is a per-author, per-list aggregate statistic.
type AuthorDocument struct {
	AuthorID      int64
	MailingListID int64
	MessageCount  int
	ThreadCount   int
	FirstSeen     time.Time
	LastSeen      time.Time
}

// EmbedKind selects the instruction prefix applied before calling Embedder.
type EmbedKind int

const (
	EmbedDocument EmbedKind = iota
	EmbedQuery
)

// Embedder batches text into vectors, implemented by adapter/embedder
// against the `POST {base}/embed` contract.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, kind EmbedKind) ([][]float32, error)
}
