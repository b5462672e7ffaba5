package indexer

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
)

func TestBuildThreadDocuments_AssemblesDiscussionAndParticipants(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	threads := []domain.Thread{
		{
			ID:            10,
			MailingListID: 1,
			Subject:       "net: fix race",
			StartDate:     now,
			LastTS:        now.Add(time.Hour),
			MessageCount:  2,
			Participants:  []int64{100, 200},
		},
	}
	members := map[int64][]domain.Message{
		10: {
			{MessageID: "b@x", Subject: "net: fix race", Body: "reply body", Date: now.Add(time.Minute)},
			{MessageID: "a@x", Subject: "net: fix race", Body: "first body", Date: now},
		},
	}
	authors := map[int64]AuthorRef{
		100: {ID: 100, Name: "Alice", Email: "alice@example.com"},
		200: {ID: 200, Name: "Bob", Email: "bob@example.com"},
	}

	docs := BuildThreadDocuments(threads, members, authors)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	doc := docs[0]
	if doc.ThreadID != 10 {
		t.Fatalf("expected thread id 10, got %d", doc.ThreadID)
	}
	if len(doc.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(doc.Participants))
	}
	if doc.Participants[0].Name != "Alice" {
		t.Fatalf("expected participant order to follow thread.Participants, got %+v", doc.Participants)
	}

	firstIdx := indexOf(doc.DiscussionText, "first body")
	replyIdx := indexOf(doc.DiscussionText, "reply body")
	if firstIdx == -1 || replyIdx == -1 || firstIdx > replyIdx {
		t.Fatalf("expected discussion text in chronological order, got %q", doc.DiscussionText)
	}
}

func TestBuildAuthorDocuments_AggregatesAcrossThreads(t *testing.T) {
	d1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.Add(24 * time.Hour)
	d3 := d1.Add(48 * time.Hour)

	threads := []domain.Thread{{ID: 1, MailingListID: 7}, {ID: 2, MailingListID: 7}}
	members := map[int64][]domain.Message{
		1: {
			{ID: 100, AuthorID: 9, Date: d1},
			{ID: 101, AuthorID: 9, Date: d2},
		},
		2: {
			{ID: 102, AuthorID: 9, Date: d3},
		},
	}

	docs := BuildAuthorDocuments(threads, members, 7)
	if len(docs) != 1 {
		t.Fatalf("expected 1 author document, got %d", len(docs))
	}
	doc := docs[0]
	if doc.AuthorID != 9 || doc.MailingListID != 7 {
		t.Fatalf("unexpected author/list id: %+v", doc)
	}
	if doc.MessageCount != 3 {
		t.Fatalf("expected 3 messages, got %d", doc.MessageCount)
	}
	if doc.ThreadCount != 2 {
		t.Fatalf("expected 2 threads, got %d", doc.ThreadCount)
	}
	if !doc.FirstSeen.Equal(d1) || !doc.LastSeen.Equal(d3) {
		t.Fatalf("expected first/last seen %v/%v, got %v/%v", d1, d3, doc.FirstSeen, doc.LastSeen)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

type fakeEmbedder struct {
	calls     int
	dimension int
	fail      bool
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, kind port.EmbedKind) ([][]float32, error) {
	f.calls++
	if f.fail {
		return nil, errEmbedFailed
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dimension)
	}
	return out, nil
}

type embedFailedError struct{}

func (embedFailedError) Error() string { return "embed failed" }

var errEmbedFailed = embedFailedError{}

func TestEmbedThreadDocuments_SkippedWhenSemanticDisabled(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 4}
	ix := New(nil, embedder, false, 32)

	docs := []port.ThreadDocument{{ThreadID: 1, DiscussionText: "hello"}}
	if err := ix.EmbedThreadDocuments(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls != 0 {
		t.Fatalf("expected embedder not to be called when semantic disabled, got %d calls", embedder.calls)
	}
	if docs[0].Embedding != nil {
		t.Fatalf("expected no embedding attached, got %v", docs[0].Embedding)
	}
}

func TestEmbedThreadDocuments_AttachesVectors(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 4}
	ix := New(nil, embedder, true, 32)

	docs := []port.ThreadDocument{
		{ThreadID: 1, DiscussionText: "hello"},
		{ThreadID: 2, DiscussionText: "world"},
	}
	if err := ix.EmbedThreadDocuments(context.Background(), docs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, d := range docs {
		if len(d.Embedding) != 4 {
			t.Fatalf("expected 4-dim embedding for thread %d, got %d", d.ThreadID, len(d.Embedding))
		}
	}
}

func TestEmbedThreadDocuments_PropagatesEmbedderError(t *testing.T) {
	embedder := &fakeEmbedder{fail: true}
	ix := New(nil, embedder, true, 32)

	docs := []port.ThreadDocument{{ThreadID: 1, DiscussionText: "hello"}}
	if err := ix.EmbedThreadDocuments(context.Background(), docs); err == nil {
		t.Fatal("expected embedder failure to propagate")
	}
}

// fakeIndexStore is a minimal port.Store/Tx fake recording the documents
// passed to Persist, following the same fake shape as the importer and
// auth package tests.
type fakeIndexStore struct {
	threadDocs []port.ThreadDocument
	authorDocs []port.AuthorDocument
	committed  bool
}

func (s *fakeIndexStore) BeginTx(ctx context.Context) (port.Tx, error) {
	return &fakeIndexTx{s: s}, nil
}

type fakeIndexTx struct{ s *fakeIndexStore }

func (t *fakeIndexTx) Commit() error   { t.s.committed = true; return nil }
func (t *fakeIndexTx) Rollback() error { return nil }

func (t *fakeIndexTx) UpsertAuthors(ctx context.Context, listID int64, emails, names []string) ([]int64, int, error) {
	return nil, 0, nil
}
func (t *fakeIndexTx) LoadAuthors(ctx context.Context, listID int64) ([]domain.Author, error) {
	return nil, nil
}
func (t *fakeIndexTx) InsertEmails(ctx context.Context, listID int64, messages []domain.Message) ([]int64, int, error) {
	return nil, 0, nil
}
func (t *fakeIndexTx) InsertRecipients(ctx context.Context, recipients []domain.Recipient) (int, error) {
	return 0, nil
}
func (t *fakeIndexTx) InsertReferences(ctx context.Context, references []domain.Reference) (int, error) {
	return 0, nil
}
func (t *fakeIndexTx) LoadListMessages(ctx context.Context, listID int64) ([]domain.Message, map[int64][]domain.Reference, error) {
	return nil, nil, nil
}
func (t *fakeIndexTx) LoadMailingList(ctx context.Context, listID int64) (domain.MailingList, []domain.Repository, error) {
	return domain.MailingList{}, nil, nil
}
func (t *fakeIndexTx) ReplaceThreads(ctx context.Context, listID int64, threads []domain.Thread, memberships []domain.ThreadMembership) (map[string]int64, error) {
	return nil, nil
}
func (t *fakeIndexTx) LoadLastCommits(ctx context.Context, listID int64) (map[int]string, error) {
	return nil, nil
}
func (t *fakeIndexTx) SaveLastCommits(ctx context.Context, listID int64, commits map[int]string) error {
	return nil
}
func (t *fakeIndexTx) SaveLastThreadedAt(ctx context.Context, listID int64, when sql.NullTime) error {
	return nil
}
func (t *fakeIndexTx) UpsertThreadDocuments(ctx context.Context, docs []port.ThreadDocument) error {
	t.s.threadDocs = docs
	return nil
}
func (t *fakeIndexTx) UpsertAuthorDocuments(ctx context.Context, docs []port.AuthorDocument) error {
	t.s.authorDocs = docs
	return nil
}
func (t *fakeIndexTx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (t *fakeIndexTx) GetTokenVersion(ctx context.Context, userID int64) (int64, error) { return 0, nil }
func (t *fakeIndexTx) IncrementTokenVersion(ctx context.Context, userID int64) error    { return nil }
func (t *fakeIndexTx) CreateUser(ctx context.Context, u domain.User) (int64, error)     { return 0, nil }

func TestPersist_UpsertsBothDocumentKinds(t *testing.T) {
	store := &fakeIndexStore{}
	ix := New(store, nil, false, 32)

	threadDocs := []port.ThreadDocument{{ThreadID: 1}}
	authorDocs := []port.AuthorDocument{{AuthorID: 100}}

	if err := ix.Persist(context.Background(), threadDocs, authorDocs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.committed {
		t.Fatal("expected transaction to commit")
	}
	if len(store.threadDocs) != 1 || len(store.authorDocs) != 1 {
		t.Fatalf("expected both document kinds persisted, got %+v / %+v", store.threadDocs, store.authorDocs)
	}
}
