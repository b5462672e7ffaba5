// Package sync implements the concrete orchestrator a claimed SyncJob is
// handed to: load a mailing list's repositories, stream each repo's
// archive commits through Parser→BulkImporter chunk by chunk, checkpoint
// progress at chunk boundaries, rebuild threads once all repos are
// caught up, and feed the rebuilt threads through Indexer. Grounded on
// sync/worker.rs's SyncWorker::process_job/load_mailing_list_config,
// adapted from a per-job async task into a plain struct driven by
// core/jobqueue.Worker's pool (core/jobqueue.SyncRunner).
package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tansanrao/nexus/core/checkpoint"
	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/importer"
	"github.com/tansanrao/nexus/core/indexer"
	"github.com/tansanrao/nexus/core/parser"
	"github.com/tansanrao/nexus/core/port"
	"github.com/tansanrao/nexus/core/threading"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// Orchestrator drives one mailing list's sync pass. It is a plain struct
// held by the worker loop, constructed once per process and reused
// across jobs — not a singleton, and not job-scoped, since its
// dependencies (store, archive reader, cache, importer, indexer) are
// themselves reusable across jobs for the same list-agnostic process.
type Orchestrator struct {
	store     port.Store
	archive   port.ArchiveReader
	checkpoints *checkpoint.Store
	imp       *importer.Importer
	cache     *threading.Cache
	idx       *indexer.Indexer
	chunkSize int
	log       zerolog.Logger
}

func New(store port.Store, archive port.ArchiveReader, checkpoints *checkpoint.Store, imp *importer.Importer, cache *threading.Cache, idx *indexer.Indexer, chunkSize int, log zerolog.Logger) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Orchestrator{
		store:       store,
		archive:     archive,
		checkpoints: checkpoints,
		imp:         imp,
		cache:       cache,
		idx:         idx,
		chunkSize:   chunkSize,
		log:         log.With().Str("component", "sync_orchestrator").Logger(),
	}
}

// RunSync implements core/jobqueue.SyncRunner. It loads the list's repo
// config, replays every repo's archive from its last checkpoint, rebuilds
// threads, and reindexes — in that order, so a job that fails partway
// through repo N leaves repos 1..N-1's checkpoints intact for the retry.
func (o *Orchestrator) RunSync(ctx context.Context, job domain.SyncJob) error {
	listID := job.MailingListID

	ml, repos, err := o.loadMailingList(ctx, listID)
	if err != nil {
		return apperr.DatabaseError("load mailing list config", err)
	}
	o.log.Info().Str("job_id", job.ID).Int64("mailing_list_id", listID).Str("slug", ml.Slug).Int("repos", len(repos)).Msg("starting sync pass")

	if err := o.primeCache(ctx, listID); err != nil {
		return apperr.DatabaseError("prime threading cache", err)
	}

	lastCommits, err := o.checkpoints.LoadLastCommits(ctx, listID)
	if err != nil {
		return apperr.DatabaseError("load last commits", err)
	}

	var stats importer.ImportStats
	for _, repo := range repos {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		repoStats, err := o.syncRepo(ctx, listID, repo, lastCommits[repo.RepoOrder])
		if err != nil {
			return err
		}
		stats.Merge(repoStats)
	}

	threads, membersByThread, rebuildStats, err := o.imp.RebuildThreads(ctx, listID)
	if err != nil {
		return err
	}
	stats.Merge(rebuildStats)

	if err := o.checkpoints.SaveLastThreadedAt(ctx, listID); err != nil {
		return apperr.DatabaseError("save last threaded at", err)
	}

	if err := o.reindex(ctx, listID, threads, membersByThread); err != nil {
		return err
	}

	o.log.Info().Str("job_id", job.ID).Int("emails", stats.Emails).Int("threads", stats.Threads).Msg("sync pass complete")
	return nil
}

func (o *Orchestrator) loadMailingList(ctx context.Context, listID int64) (domain.MailingList, []domain.Repository, error) {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return domain.MailingList{}, nil, err
	}
	defer tx.Rollback()

	ml, repos, err := tx.LoadMailingList(ctx, listID)
	if err != nil {
		return domain.MailingList{}, nil, err
	}
	return ml, repos, tx.Commit()
}

// primeCache loads the list's already-imported messages into the
// threading cache so a resumed job rebuilds threads over the full
// history, not just the commits replayed this pass.
func (o *Orchestrator) primeCache(ctx context.Context, listID int64) error {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	messages, refsByEmail, err := tx.LoadListMessages(ctx, listID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	messageIDByEmailID := make(map[int64]string, len(messages))
	for _, m := range messages {
		messageIDByEmailID[m.ID] = m.MessageID
	}

	references := make(map[string][]string, len(refsByEmail))
	for emailID, refs := range refsByEmail {
		msgID, ok := messageIDByEmailID[emailID]
		if !ok {
			continue
		}
		ids := make([]string, len(refs))
		for _, r := range refs {
			ids[r.Position] = r.ReferencedMessageID
		}
		references[msgID] = ids
	}

	o.cache.Load(messages, references)
	return nil
}

// syncRepo streams one repository's archive commits since its last
// checkpoint, parsing and importing in chunkSize-sized batches, saving
// the checkpoint after every chunk commits so a crash mid-repo resumes
// from the last durable point rather than replaying the whole archive.
func (o *Orchestrator) syncRepo(ctx context.Context, listID int64, repo domain.Repository, fromCommit string) (importer.ImportStats, error) {
	var stats importer.ImportStats

	commits, errs := o.archive.CommitsSince(ctx, repo.URL, fromCommit)

	buffer := make([]domain.ParsedMessage, 0, o.chunkSize)
	lastCommit := fromCommit

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		chunkStats, err := o.imp.ImportChunk(ctx, listID, repo.RepoOrder, buffer)
		if err != nil {
			return err
		}
		stats.Merge(chunkStats)
		if err := o.checkpoints.SaveLastCommits(ctx, listID, map[int]string{repo.RepoOrder: lastCommit}); err != nil {
			return apperr.DatabaseError("save checkpoint", err)
		}
		buffer = buffer[:0]
		return nil
	}

	for commit := range commits {
		if err := ctxErr(ctx); err != nil {
			return stats, err
		}

		pm, err := parser.Parse(parser.Commit{Hash: commit.CommitHash, Raw: commit.Raw}, listID, repo.RepoOrder)
		if err != nil {
			if ae, ok := err.(*apperr.AppError); ok && ae.Kind() == apperr.KindValidation {
				o.log.Warn().Str("repo", repo.URL).Str("commit", commit.CommitHash).Err(err).Msg("skipping unparseable commit")
				lastCommit = commit.CommitHash
				continue
			}
			return stats, err
		}

		buffer = append(buffer, pm)
		lastCommit = commit.CommitHash
		if len(buffer) >= o.chunkSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	if err := <-errs; err != nil {
		return stats, apperr.Transient(fmt.Sprintf("read archive %s", repo.URL), err)
	}
	return stats, nil
}

// reindex resolves the authors referenced by the rebuilt threads and
// pushes fresh ThreadDocuments/AuthorDocuments through the indexer.
func (o *Orchestrator) reindex(ctx context.Context, listID int64, threads []domain.Thread, membersByThread map[int64][]domain.Message) error {
	authorsByID, err := o.loadAuthorRefs(ctx, listID)
	if err != nil {
		return err
	}

	threadDocs := indexer.BuildThreadDocuments(threads, membersByThread, authorsByID)
	authorDocs := indexer.BuildAuthorDocuments(threads, membersByThread, listID)

	if err := o.idx.EmbedThreadDocuments(ctx, threadDocs); err != nil {
		return err
	}
	return o.idx.Persist(ctx, threadDocs, authorDocs)
}

func (o *Orchestrator) loadAuthorRefs(ctx context.Context, listID int64) (map[int64]indexer.AuthorRef, error) {
	tx, err := o.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	authors, err := tx.LoadAuthors(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	refs := make(map[int64]indexer.AuthorRef, len(authors))
	for _, a := range authors {
		refs[a.ID] = indexer.AuthorRef{ID: a.ID, Name: a.CanonicalName, Email: a.Email}
	}
	return refs, nil
}

// ctxErr reports cancellation cooperatively: callers check this only at
// chunk/commit boundaries, never mid-transaction, so a cancelled job
// always leaves the store in a consistent state.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apperr.Fatal("sync job cancelled", ctx.Err())
	default:
		return nil
	}
}
