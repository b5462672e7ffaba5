package importer

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/core/threading"
)

// fakeTx/fakeStore is a minimal in-memory port.Store for exercising
// Importer without a real database. It tracks which (mailing_list_id,
// message_id) pairs already exist to model the unique-conflict-skip
// behavior InsertEmails must provide.
type fakeStore struct {
	nextAuthorID  int64
	authorByEmail map[string]int64

	nextEmailID int64
	emailByKey  map[string]int64 // "listID:messageID" -> email id

	recipientSeen map[string]bool // "emailID:authorID:kind"
	referenceSeen map[string]bool // "emailID:referencedMessageID"
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		authorByEmail: make(map[string]int64),
		emailByKey:    make(map[string]int64),
		recipientSeen: make(map[string]bool),
		referenceSeen: make(map[string]bool),
	}
}

func (s *fakeStore) BeginTx(ctx context.Context) (port.Tx, error) {
	return &fakeTx{s: s}, nil
}

type fakeTx struct{ s *fakeStore }

func (f *fakeTx) Commit() error   { return nil }
func (f *fakeTx) Rollback() error { return nil }

func (f *fakeTx) UpsertAuthors(ctx context.Context, listID int64, emails, names []string) ([]int64, int, error) {
	out := make([]int64, len(emails))
	inserted := 0
	for i, e := range emails {
		if id, ok := f.s.authorByEmail[e]; ok {
			out[i] = id
			continue
		}
		f.s.nextAuthorID++
		f.s.authorByEmail[e] = f.s.nextAuthorID
		out[i] = f.s.nextAuthorID
		inserted++
	}
	return out, inserted, nil
}

func (f *fakeTx) LoadAuthors(ctx context.Context, listID int64) ([]domain.Author, error) {
	return nil, nil
}

func (f *fakeTx) InsertEmails(ctx context.Context, listID int64, messages []domain.Message) ([]int64, int, error) {
	out := make([]int64, len(messages))
	inserted := 0
	for i, m := range messages {
		key := keyFor(listID, m.MessageID)
		if id, ok := f.s.emailByKey[key]; ok {
			out[i] = id
			continue
		}
		f.s.nextEmailID++
		f.s.emailByKey[key] = f.s.nextEmailID
		out[i] = f.s.nextEmailID
		inserted++
	}
	return out, inserted, nil
}

func keyFor(listID int64, messageID string) string {
	return strconv.FormatInt(listID, 10) + ":" + messageID
}

func (f *fakeTx) InsertRecipients(ctx context.Context, recipients []domain.Recipient) (int, error) {
	inserted := 0
	for _, r := range recipients {
		key := strconv.FormatInt(r.EmailID, 10) + ":" + strconv.FormatInt(r.AuthorID, 10) + ":" + string(r.Kind)
		if f.s.recipientSeen[key] {
			continue
		}
		f.s.recipientSeen[key] = true
		inserted++
	}
	return inserted, nil
}
func (f *fakeTx) InsertReferences(ctx context.Context, references []domain.Reference) (int, error) {
	inserted := 0
	for _, r := range references {
		key := strconv.FormatInt(r.EmailID, 10) + ":" + r.ReferencedMessageID
		if f.s.referenceSeen[key] {
			continue
		}
		f.s.referenceSeen[key] = true
		inserted++
	}
	return inserted, nil
}
func (f *fakeTx) LoadListMessages(ctx context.Context, listID int64) ([]domain.Message, map[int64][]domain.Reference, error) {
	return nil, nil, nil
}
func (f *fakeTx) LoadMailingList(ctx context.Context, listID int64) (domain.MailingList, []domain.Repository, error) {
	return domain.MailingList{}, nil, nil
}
func (f *fakeTx) ReplaceThreads(ctx context.Context, listID int64, threads []domain.Thread, memberships []domain.ThreadMembership) (map[string]int64, error) {
	ids := make(map[string]int64, len(threads))
	for i, th := range threads {
		ids[th.RootMessageID] = int64(i + 1)
	}
	return ids, nil
}
func (f *fakeTx) LoadLastCommits(ctx context.Context, listID int64) (map[int]string, error) {
	return nil, nil
}
func (f *fakeTx) SaveLastCommits(ctx context.Context, listID int64, commits map[int]string) error {
	return nil
}
func (f *fakeTx) SaveLastThreadedAt(ctx context.Context, listID int64, when sql.NullTime) error {
	return nil
}
func (f *fakeTx) UpsertThreadDocuments(ctx context.Context, docs []port.ThreadDocument) error {
	return nil
}
func (f *fakeTx) UpsertAuthorDocuments(ctx context.Context, docs []port.AuthorDocument) error {
	return nil
}
func (f *fakeTx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeTx) GetTokenVersion(ctx context.Context, userID int64) (int64, error) { return 0, nil }
func (f *fakeTx) IncrementTokenVersion(ctx context.Context, userID int64) error    { return nil }
func (f *fakeTx) CreateUser(ctx context.Context, u domain.User) (int64, error)     { return 0, nil }

func sampleChunk() []domain.ParsedMessage {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.ParsedMessage{
		{
			Message:   domain.Message{MessageID: "a@x", Subject: "a", Date: now},
			FromEmail: "alice@example.com",
			Recipients: []domain.ParsedRecipient{
				{Email: "bob@example.com", Name: "Bob", Kind: domain.RecipientTo},
			},
		},
		{
			Message:    domain.Message{MessageID: "b@x", Subject: "b", Date: now.Add(time.Minute), InReplyTo: "a@x"},
			FromEmail:  "bob@example.com",
			References: []string{"a@x"},
		},
		{
			Message:   domain.Message{MessageID: "c@x", Subject: "c", Date: now.Add(2 * time.Minute)},
			FromEmail: "alice@example.com",
		},
	}
}

func TestImportChunk_IdempotentReingest(t *testing.T) {
	store := newFakeStore()
	cache := threading.New()
	im := New(store, cache, 1)

	chunk := sampleChunk()

	first, err := im.ImportChunk(context.Background(), 1, 0, chunk)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.Emails != 3 {
		t.Fatalf("expected 3 emails inserted on first run, got %d", first.Emails)
	}
	if first.Authors == 0 {
		t.Fatalf("expected authors inserted on first run, got %d", first.Authors)
	}
	if first.Recipients != 1 {
		t.Fatalf("expected 1 recipient inserted on first run, got %d", first.Recipients)
	}
	if first.References != 1 {
		t.Fatalf("expected 1 reference inserted on first run, got %d", first.References)
	}

	second, err := im.ImportChunk(context.Background(), 1, 0, chunk)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Emails != 0 {
		t.Fatalf("expected 0 emails inserted on idempotent re-ingest, got %d", second.Emails)
	}
	if second.Authors != 0 {
		t.Fatalf("expected 0 authors inserted on idempotent re-ingest, got %d", second.Authors)
	}
	if second.Recipients != 0 {
		t.Fatalf("expected 0 recipients inserted on idempotent re-ingest, got %d", second.Recipients)
	}
	if second.References != 0 {
		t.Fatalf("expected 0 references inserted on idempotent re-ingest, got %d", second.References)
	}
}

func TestImportChunk_MergesIntoCache(t *testing.T) {
	store := newFakeStore()
	cache := threading.New()
	im := New(store, cache, 1)

	_, err := im.ImportChunk(context.Background(), 1, 0, sampleChunk())
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	snap := cache.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages merged into cache, got %d", len(snap.Messages))
	}
}
