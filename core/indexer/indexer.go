// Package indexer builds ThreadDocument/AuthorDocument search documents and
// embeds their text via a batching pipeline, grounded on search/models.rs
// (document shape) and search/client.rs + search/embeddings.rs (batching,
// retry, response-shape tolerance — delegated to adapter/embedder's
// core/port.Embedder implementation).
package indexer

import (
	"context"
	"sort"
	"time"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/core/searchtext"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// AuthorRef is the minimal author identity the indexer needs to build
// ThreadDocument.Participants without round-tripping to the store per
// thread — callers resolve this once per ingest wave.
type AuthorRef struct {
	ID    int64
	Name  string
	Email string
}

// Indexer turns built Thread/ThreadMembership rows plus their member
// messages into search documents, optionally embedding the discussion
// text when semantic indexing is enabled.
type Indexer struct {
	store          port.Store
	embedder       port.Embedder
	semanticOn     bool
	embedBatchSize int
}

func New(store port.Store, embedder port.Embedder, semanticOn bool, embedBatchSize int) *Indexer {
	if embedBatchSize <= 0 {
		embedBatchSize = 32
	}
	return &Indexer{store: store, embedder: embedder, semanticOn: semanticOn, embedBatchSize: embedBatchSize}
}

// BuildThreadDocuments assembles one ThreadDocument per thread from its
// root metadata and patch-stripped member text, without embeddings —
// callers that want semantic vectors call EmbedThreadDocuments afterward.
func BuildThreadDocuments(threads []domain.Thread, membersByThread map[int64][]domain.Message, authorsByID map[int64]AuthorRef) []port.ThreadDocument {
	docs := make([]port.ThreadDocument, 0, len(threads))
	for _, th := range threads {
		members := membersByThread[th.ID]
		sort.Slice(members, func(i, j int) bool { return members[i].Date.Before(members[j].Date) })

		discussion := buildDiscussionText(members)

		participants := make([]port.ParticipantRef, 0, len(th.Participants))
		for _, authorID := range th.Participants {
			ref := authorsByID[authorID]
			participants = append(participants, port.ParticipantRef{AuthorID: authorID, Name: ref.Name, Email: ref.Email})
		}

		docs = append(docs, port.ThreadDocument{
			ThreadID:       th.ID,
			MailingListID:  th.MailingListID,
			Subject:        th.Subject,
			DiscussionText: discussion,
			Participants:   participants,
			HasPatches:     th.HasPatches,
			SeriesID:       th.SeriesID,
			StartDate:      th.StartDate,
			LastTS:         th.LastTS,
			MessageCount:   th.MessageCount,
		})
	}
	return docs
}

// BuildAuthorDocuments aggregates per-author message/thread counts and
// first/last-seen dates across a rebuild pass's threads, keyed by author
// id — the author-stats half of search/models.rs's document pair.
func BuildAuthorDocuments(threads []domain.Thread, membersByThread map[int64][]domain.Message, mailingListID int64) []port.AuthorDocument {
	type acc struct {
		messages  map[int64]bool
		threads   map[int64]bool
		firstSeen time.Time
		lastSeen  time.Time
	}
	byAuthor := make(map[int64]*acc)

	get := func(authorID int64) *acc {
		a, ok := byAuthor[authorID]
		if !ok {
			a = &acc{messages: make(map[int64]bool), threads: make(map[int64]bool)}
			byAuthor[authorID] = a
		}
		return a
	}

	for _, th := range threads {
		for _, m := range membersByThread[th.ID] {
			a := get(m.AuthorID)
			a.messages[m.ID] = true
			a.threads[th.ID] = true
			if a.firstSeen.IsZero() || m.Date.Before(a.firstSeen) {
				a.firstSeen = m.Date
			}
			if a.lastSeen.IsZero() || m.Date.After(a.lastSeen) {
				a.lastSeen = m.Date
			}
		}
	}

	docs := make([]port.AuthorDocument, 0, len(byAuthor))
	for authorID, a := range byAuthor {
		docs = append(docs, port.AuthorDocument{
			AuthorID:      authorID,
			MailingListID: mailingListID,
			MessageCount:  len(a.messages),
			ThreadCount:   len(a.threads),
			FirstSeen:     a.firstSeen,
			LastSeen:      a.lastSeen,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].AuthorID < docs[j].AuthorID })
	return docs
}

// buildDiscussionText concatenates each member's canonical embedding text,
// in thread order, capped the same way a single message's text is.
func buildDiscussionText(members []domain.Message) string {
	var combined string
	for i, m := range members {
		text := searchtext.Build(m)
		if text == "" {
			continue
		}
		if i > 0 && combined != "" {
			combined += "\n\n---\n\n"
		}
		combined += text
	}
	return searchtext.BuildWithLimit(domain.Message{Body: combined}, searchtext.DefaultMaxGraphemes)
}

// EmbedThreadDocuments batches discussion text through the Embedder and
// attaches the resulting vector to each document, in place. No-op when
// semantic indexing is disabled.
func (ix *Indexer) EmbedThreadDocuments(ctx context.Context, docs []port.ThreadDocument) error {
	if !ix.semanticOn || len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.DiscussionText
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts, port.EmbedDocument)
	if err != nil {
		return apperr.Transient("embed thread documents", err)
	}
	if len(vectors) != len(docs) {
		return apperr.DatabaseError("embed thread documents", errCountMismatch(len(docs), len(vectors)))
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}
	return nil
}

// Persist upserts the documents through the store inside a transaction.
func (ix *Indexer) Persist(ctx context.Context, threadDocs []port.ThreadDocument, authorDocs []port.AuthorDocument) error {
	tx, err := ix.store.BeginTx(ctx)
	if err != nil {
		return apperr.Transient("begin index persist tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if len(threadDocs) > 0 {
		if err := tx.UpsertThreadDocuments(ctx, threadDocs); err != nil {
			return apperr.DatabaseError("upsert thread documents", err)
		}
	}
	if len(authorDocs) > 0 {
		if err := tx.UpsertAuthorDocuments(ctx, authorDocs); err != nil {
			return apperr.DatabaseError("upsert author documents", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.DatabaseError("commit index persist", err)
	}
	committed = true
	return nil
}

type countMismatchError struct {
	expected, actual int
}

func (e countMismatchError) Error() string {
	return "embedding count mismatch"
}

func errCountMismatch(expected, actual int) error {
	return countMismatchError{expected: expected, actual: actual}
}
