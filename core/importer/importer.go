// Package importer implements BulkImporter: transactional columnar bulk
// insertion of a chunk of parsed messages, followed by an idempotent
// merge into the threading cache and, on chunk/job boundaries, a full
// thread rebuild.
package importer

import (
	"context"
	"strings"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/core/threading"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// Importer persists a chunk of ParsedMessages for one (mailing_list_id,
// epoch), then merges the accepted messages into the ThreadingCache.
type Importer struct {
	store port.Store
	cache *threading.Cache

	// RebuildEveryNChunks controls how often a full thread rebuild runs;
	// the caller's orchestrator also forces one at job end regardless.
	RebuildEveryNChunks int

	chunksSinceRebuild int
}

func New(store port.Store, cache *threading.Cache, rebuildEveryNChunks int) *Importer {
	if rebuildEveryNChunks <= 0 {
		rebuildEveryNChunks = 1
	}
	return &Importer{store: store, cache: cache, RebuildEveryNChunks: rebuildEveryNChunks}
}

// ImportChunk persists one chunk transactionally and merges it into the
// cache on success. The DB commit is authoritative; the cache merge is
// idempotent and only runs once the transaction has committed.
func (im *Importer) ImportChunk(ctx context.Context, listID int64, epoch int, chunk []domain.ParsedMessage) (ImportStats, error) {
	var stats ImportStats
	if len(chunk) == 0 {
		return stats, nil
	}

	tx, err := im.store.BeginTx(ctx)
	if err != nil {
		return stats, apperr.Transient("begin import tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// Author upsert: group by lowercased email.
	var emails, names []string
	authorIndex := make(map[string]int, len(chunk))
	for _, pm := range chunk {
		email := strings.ToLower(pm.FromEmail)
		if _, ok := authorIndex[email]; ok {
			continue
		}
		authorIndex[email] = len(emails)
		emails = append(emails, email)
		names = append(names, pm.FromName)
	}
	authorIDs, authorsInserted, err := tx.UpsertAuthors(ctx, listID, emails, names)
	if err != nil {
		return stats, apperr.DatabaseError("upsert authors", err)
	}
	stats.Authors = authorsInserted

	messages := make([]domain.Message, len(chunk))
	for i, pm := range chunk {
		m := pm.Message
		m.MailingListID = listID
		m.Epoch = epoch
		m.AuthorID = authorIDs[authorIndex[strings.ToLower(pm.FromEmail)]]
		messages[i] = m
	}

	emailIDs, inserted, err := tx.InsertEmails(ctx, listID, messages)
	if err != nil {
		return stats, apperr.DatabaseError("insert emails", err)
	}
	stats.Emails = inserted

	// Recipients reference authors too; upsert their emails in the same
	// per-list author table before building recipient rows.
	recipientEmails := make([]string, 0)
	recipientNames := make([]string, 0)
	seenRecipientEmail := make(map[string]bool)
	for _, pm := range chunk {
		for _, r := range pm.Recipients {
			email := strings.ToLower(r.Email)
			if seenRecipientEmail[email] {
				continue
			}
			seenRecipientEmail[email] = true
			recipientEmails = append(recipientEmails, email)
			recipientNames = append(recipientNames, r.Name)
		}
	}
	recipientAuthorIDs := make(map[string]int64, len(recipientEmails))
	if len(recipientEmails) > 0 {
		ids, recipientAuthorsInserted, err := tx.UpsertAuthors(ctx, listID, recipientEmails, recipientNames)
		if err != nil {
			return stats, apperr.DatabaseError("upsert recipient authors", err)
		}
		for i, email := range recipientEmails {
			recipientAuthorIDs[email] = ids[i]
		}
		stats.Authors += recipientAuthorsInserted
	}

	var recipients []domain.Recipient
	var references []domain.Reference
	cacheRecipients := make(map[string][]int64, len(chunk))
	cacheReferences := make(map[string][]string, len(chunk))

	for i, pm := range chunk {
		emailID := emailIDs[i]
		messages[i].ID = emailID

		var recipientIDs []int64
		for _, r := range pm.Recipients {
			authorID := recipientAuthorIDs[strings.ToLower(r.Email)]
			recipients = append(recipients, domain.Recipient{
				MailingListID: listID,
				EmailID:       emailID,
				AuthorID:      authorID,
				Kind:          r.Kind,
			})
			recipientIDs = append(recipientIDs, authorID)
		}
		cacheRecipients[pm.Message.MessageID] = recipientIDs

		for pos, refMsgID := range dedupePositional(pm.References) {
			references = append(references, domain.Reference{
				MailingListID:       listID,
				EmailID:             emailID,
				ReferencedMessageID: refMsgID,
				Position:            pos,
			})
		}
		cacheReferences[pm.Message.MessageID] = pm.References
	}

	if len(recipients) > 0 {
		recipientsInserted, err := tx.InsertRecipients(ctx, recipients)
		if err != nil {
			return stats, apperr.DatabaseError("insert recipients", err)
		}
		stats.Recipients = recipientsInserted
	}
	if len(references) > 0 {
		referencesInserted, err := tx.InsertReferences(ctx, references)
		if err != nil {
			return stats, apperr.DatabaseError("insert references", err)
		}
		stats.References = referencesInserted
	}

	if err := tx.Commit(); err != nil {
		return stats, apperr.DatabaseError("commit import chunk", err)
	}
	committed = true

	// Cache merge happens only after the commit succeeds, and is
	// idempotent: re-merging the same message_id just overwrites it.
	im.cache.Merge(messages, cacheReferences, cacheRecipients)

	im.chunksSinceRebuild++
	if im.chunksSinceRebuild >= im.RebuildEveryNChunks {
		_, _, rebuildStats, err := im.RebuildThreads(ctx, listID)
		if err != nil {
			return stats, err
		}
		stats.Threads = rebuildStats.Threads
		stats.ThreadMemberships = rebuildStats.ThreadMemberships
		im.chunksSinceRebuild = 0
	}

	return stats, nil
}

// RebuildThreads snapshots the cache, runs ThreadBuilder, and replaces
// the list's threads/thread_memberships rows inside a single transaction
// so readers never observe a partial mix of old and new threads. It also
// returns the rebuilt threads (with their real DB-assigned ids) and each
// thread's member messages, ready for core/indexer to consume without a
// second read of the store — the orchestrator calls this once more,
// unconditionally, at job end regardless of the chunk-count cadence
// above, exactly as sync/worker.rs's caller always rebuilds at job
// completion.
func (im *Importer) RebuildThreads(ctx context.Context, listID int64) ([]domain.Thread, map[int64][]domain.Message, ImportStats, error) {
	var stats ImportStats

	snap := im.cache.Snapshot()
	threadInfos, _ := threading.Build(snap)

	threads := make([]domain.Thread, 0, len(threadInfos))
	memberships := make([]domain.ThreadMembership, 0)
	for i, ti := range threadInfos {
		threadID := int64(i + 1) // resolved to a real sequence id by the adapter
		threads = append(threads, domain.Thread{
			ID:              threadID,
			MailingListID:   listID,
			RootMessageID:   ti.RootMessageID,
			Subject:         ti.Subject,
			StartDate:       ti.StartDate,
			MessageCount:    len(ti.Members),
			LastTS:          ti.LastTS,
			Participants:    ti.Participants,
			HasPatches:      ti.HasPatches,
			SeriesID:        ti.SeriesID,
			StarterAuthorID: ti.StarterID,
		})
		for _, m := range ti.Members {
			memberships = append(memberships, domain.ThreadMembership{
				ThreadID: threadID,
				EmailID:  m.EmailID,
				Depth:    m.Depth,
			})
		}
	}

	tx, err := im.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, stats, apperr.Transient("begin thread rebuild tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	idByRoot, err := tx.ReplaceThreads(ctx, listID, threads, memberships)
	if err != nil {
		return nil, nil, stats, apperr.DatabaseError("replace threads", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, stats, apperr.DatabaseError("commit thread rebuild", err)
	}
	committed = true

	msgByEmailID := make(map[int64]domain.Message, len(snap.Messages))
	for _, m := range snap.Messages {
		msgByEmailID[m.ID] = m
	}

	membersByThread := make(map[int64][]domain.Message, len(threads))
	for i := range threads {
		realID := idByRoot[threads[i].RootMessageID]
		threads[i].ID = realID

		members := make([]domain.Message, 0, len(threadInfos[i].Members))
		for _, md := range threadInfos[i].Members {
			if msg, ok := msgByEmailID[md.EmailID]; ok {
				members = append(members, msg)
			}
		}
		membersByThread[realID] = members
	}

	stats.Threads = len(threads)
	stats.ThreadMemberships = len(memberships)
	return threads, membersByThread, stats, nil
}

// dedupePositional removes duplicate references, keeping first position,
// and returns a dense 0-based positional slice (the parser already
// dedupes, but re-ingest of an older chunk format is tolerated here too).
func dedupePositional(refs []string) []string {
	seen := make(map[string]bool, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
