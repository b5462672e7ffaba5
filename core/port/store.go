package port

import (
	"context"
	"database/sql"

	"github.com/tansanrao/nexus/core/domain"
)

// Store is the transactional SQL executor every core component depends on.
// adapter/postgres implements it over database/sql + lib/pq.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is one database transaction. Callers must call Commit or Rollback
// exactly once.
type Tx interface {
	Commit() error
	Rollback() error

	// UpsertAuthors inserts-or-updates authors by lowercased email,
	// returning the resolved id for each input email in order plus the
	// count of rows that were newly inserted (as opposed to matching an
	// existing author and only updating its name).
	UpsertAuthors(ctx context.Context, listID int64, emails []string, names []string) ([]int64, int, error)

	// InsertEmails performs a columnar bulk insert of messages, skipping
	// rows that conflict on (mailing_list_id, message_id). Returns the
	// resolved email id for every accepted or pre-existing message, in
	// the same order as the input messages.
	InsertEmails(ctx context.Context, listID int64, messages []domain.Message) ([]int64, int, error)

	// LoadAuthors returns every author upserted so far for a list, for
	// resolving ThreadDocument.Participants names/emails at index time.
	LoadAuthors(ctx context.Context, listID int64) ([]domain.Author, error)

	// InsertRecipients bulk-inserts recipient rows, returning the number
	// of rows actually inserted (conflicting rows are skipped).
	InsertRecipients(ctx context.Context, recipients []domain.Recipient) (int, error)

	// InsertReferences bulk-inserts reference rows with dense positions,
	// returning the number of rows actually inserted (conflicting rows
	// are skipped).
	InsertReferences(ctx context.Context, references []domain.Reference) (int, error)

	// LoadListMessages loads every message + its references for a list,
	// for ThreadingCache.Load.
	LoadListMessages(ctx context.Context, listID int64) ([]domain.Message, map[int64][]domain.Reference, error)

	// LoadMailingList loads a list's config and its ordered repositories,
	// the orchestrator's starting point for a sync job — mirrors the
	// original's load_mailing_list_config.
	LoadMailingList(ctx context.Context, listID int64) (domain.MailingList, []domain.Repository, error)

	// ReplaceThreads atomically swaps a list's threads and
	// thread_memberships rows, returning the DB-assigned thread id for
	// every input thread keyed by its RootMessageID — the caller's
	// thread.ID values are synthetic (position-based) and only the
	// store knows the real identity column value after insert.
	ReplaceThreads(ctx context.Context, listID int64, threads []domain.Thread, memberships []domain.ThreadMembership) (map[string]int64, error)

	// LoadLastCommits returns the last indexed commit per repo_order.
	LoadLastCommits(ctx context.Context, listID int64) (map[int]string, error)

	// SaveLastCommits upserts the last indexed commit per repo_order.
	SaveLastCommits(ctx context.Context, listID int64, commits map[int]string) error

	// SaveLastThreadedAt records when threading last completed for a list.
	SaveLastThreadedAt(ctx context.Context, listID int64, when sql.NullTime) error

	// UpsertThreadDocuments persists thread search documents, including
	// embeddings where present.
	UpsertThreadDocuments(ctx context.Context, docs []ThreadDocument) error

	// UpsertAuthorDocuments persists per-author aggregate statistics.
	UpsertAuthorDocuments(ctx context.Context, docs []AuthorDocument) error

	// GetUserByEmail loads an auth principal by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetTokenVersion returns a user's current token_version.
	GetTokenVersion(ctx context.Context, userID int64) (int64, error)

	// IncrementTokenVersion bumps a user's token_version, invalidating
	// every previously issued access token (global logout).
	IncrementTokenVersion(ctx context.Context, userID int64) error

	// CreateUser inserts a new auth principal, used by cmd/create-user.
	CreateUser(ctx context.Context, u domain.User) (int64, error)
}
