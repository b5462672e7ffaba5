package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/core/port"
)

// UpsertAuthors upserts by (mailing_list_id, lower(email)) using a single
// columnar unnest-style statement, grounded on the teacher's pq.Array
// bulk-bind style (worker_email_adapter.go) generalized from per-row binds
// to a single set-based statement. WITH ORDINALITY preserves the caller's
// input order in the returned id slice even though Postgres itself
// processes the insert unordered. xmax = 0 distinguishes a freshly
// inserted row from one that only matched the ON CONFLICT DO UPDATE arm,
// so re-ingesting the same author twice reports zero new inserts.
func (t *Tx) UpsertAuthors(ctx context.Context, listID int64, emails []string, names []string) ([]int64, int, error) {
	if len(emails) == 0 {
		return nil, 0, nil
	}

	lowered := make([]string, len(emails))
	for i, e := range emails {
		lowered[i] = lowerASCII(e)
	}

	const query = `
		WITH input AS (
			SELECT ord, email, name
			FROM unnest($2::text[], $3::text[]) WITH ORDINALITY AS u(email, name, ord)
		),
		upserted AS (
			INSERT INTO authors (mailing_list_id, email, canonical_name)
			SELECT $1, email, name FROM input
			ON CONFLICT (mailing_list_id, email) DO UPDATE SET
				canonical_name = EXCLUDED.canonical_name
			RETURNING id, email, (xmax = 0) AS inserted
		)
		SELECT input.ord, upserted.id, upserted.inserted
		FROM input
		JOIN upserted ON upserted.email = input.email
		ORDER BY input.ord`

	rows, err := t.tx.QueryxContext(ctx, query, listID, pq.Array(lowered), pq.Array(names))
	if err != nil {
		return nil, 0, fmt.Errorf("upsert authors: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, len(emails))
	inserted := 0
	for rows.Next() {
		var ord int64
		var id int64
		var wasInserted bool
		if err := rows.Scan(&ord, &id, &wasInserted); err != nil {
			return nil, 0, fmt.Errorf("scan upserted author: %w", err)
		}
		ids[ord-1] = id
		if wasInserted {
			inserted++
		}
	}
	return ids, inserted, rows.Err()
}

// LoadAuthors returns every author upserted so far for a list, used to
// resolve ThreadDocument.Participants' display name/email at index time.
func (t *Tx) LoadAuthors(ctx context.Context, listID int64) ([]domain.Author, error) {
	const query = `
		SELECT id, mailing_list_id, email, canonical_name
		FROM authors
		WHERE mailing_list_id = $1`

	rows, err := t.tx.QueryxContext(ctx, query, listID)
	if err != nil {
		return nil, fmt.Errorf("load authors: %w", err)
	}
	defer rows.Close()

	var authors []domain.Author
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.MailingListID, &a.Email, &a.CanonicalName); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// InsertEmails bulk-inserts messages via a columnar unnest statement,
// skipping rows that conflict on (mailing_list_id, message_id), then
// resolves the final id (inserted or pre-existing) for every input
// message via one follow-up lookup so the returned slice always lines up
// with the input order.
func (t *Tx) InsertEmails(ctx context.Context, listID int64, messages []domain.Message) ([]int64, int, error) {
	if len(messages) == 0 {
		return nil, 0, nil
	}

	messageIDs := make([]string, len(messages))
	commitHashes := make([]string, len(messages))
	authorIDs := make([]int64, len(messages))
	subjects := make([]string, len(messages))
	normalizedSubjects := make([]string, len(messages))
	dates := make([]time.Time, len(messages))
	inReplyTo := make([]string, len(messages))
	bodies := make([]string, len(messages))
	seriesIDs := make([]string, len(messages))
	seriesNumbers := make([]int, len(messages))
	seriesTotals := make([]int, len(messages))
	epochs := make([]int, len(messages))
	patchTypes := make([]string, len(messages))
	isPatchOnly := make([]bool, len(messages))
	patchMetadata := make([]sql.NullString, len(messages))

	for i, m := range messages {
		messageIDs[i] = m.MessageID
		commitHashes[i] = m.GitCommitHash
		authorIDs[i] = m.AuthorID
		subjects[i] = m.Subject
		normalizedSubjects[i] = m.NormalizedSubject
		dates[i] = m.Date
		inReplyTo[i] = m.InReplyTo
		bodies[i] = m.Body
		seriesIDs[i] = m.SeriesID
		seriesNumbers[i] = m.SeriesNumber
		seriesTotals[i] = m.SeriesTotal
		epochs[i] = m.Epoch
		patchTypes[i] = string(m.PatchType)
		isPatchOnly[i] = m.IsPatchOnly
		if m.PatchMetadata != nil {
			encoded, err := json.Marshal(m.PatchMetadata)
			if err != nil {
				return nil, 0, fmt.Errorf("marshal patch metadata: %w", err)
			}
			patchMetadata[i] = sql.NullString{String: string(encoded), Valid: true}
		}
	}

	const insertQuery = `
		WITH input AS (
			SELECT * FROM unnest(
				$2::text[], $3::text[], $4::bigint[], $5::text[], $6::text[],
				$7::timestamptz[], $8::text[], $9::text[], $10::text[], $11::int[],
				$12::int[], $13::int[], $14::text[], $15::bool[], $16::jsonb[]
			) AS u(
				message_id, git_commit_hash, author_id, subject, normalized_subject,
				email_date, in_reply_to, body, series_id, series_number,
				series_total, epoch, patch_type, is_patch_only, patch_metadata
			)
		)
		INSERT INTO emails (
			mailing_list_id, message_id, git_commit_hash, author_id, subject, normalized_subject,
			email_date, in_reply_to, body, series_id, series_number,
			series_total, epoch, patch_type, is_patch_only, patch_metadata
		)
		SELECT $1, message_id, git_commit_hash, author_id, subject, normalized_subject,
			email_date, in_reply_to, body, series_id, series_number,
			series_total, epoch, patch_type, is_patch_only, patch_metadata
		FROM input
		ON CONFLICT (mailing_list_id, message_id) DO NOTHING`

	result, err := t.tx.ExecContext(ctx, insertQuery, listID,
		pq.Array(messageIDs), pq.Array(commitHashes), pq.Array(authorIDs), pq.Array(subjects), pq.Array(normalizedSubjects),
		pq.Array(dates), pq.Array(inReplyTo), pq.Array(bodies), pq.Array(seriesIDs), pq.Array(seriesNumbers),
		pq.Array(seriesTotals), pq.Array(epochs), pq.Array(patchTypes), pq.Array(isPatchOnly), pq.Array(patchMetadata),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("insert emails: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, 0, fmt.Errorf("insert emails rows affected: %w", err)
	}

	const resolveQuery = `
		SELECT message_id, id FROM emails
		WHERE mailing_list_id = $1 AND message_id = ANY($2::text[])`

	rows, err := t.tx.QueryxContext(ctx, resolveQuery, listID, pq.Array(messageIDs))
	if err != nil {
		return nil, 0, fmt.Errorf("resolve email ids: %w", err)
	}
	defer rows.Close()

	idByMessageID := make(map[string]int64, len(messages))
	for rows.Next() {
		var msgID string
		var id int64
		if err := rows.Scan(&msgID, &id); err != nil {
			return nil, 0, fmt.Errorf("scan resolved email: %w", err)
		}
		idByMessageID[msgID] = id
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]int64, len(messages))
	for i, mid := range messageIDs {
		ids[i] = idByMessageID[mid]
	}
	return ids, int(affected), nil
}

// InsertRecipients bulk-inserts recipient rows via unnest, returning the
// number of rows actually inserted.
func (t *Tx) InsertRecipients(ctx context.Context, recipients []domain.Recipient) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}

	listIDs := make([]int64, len(recipients))
	emailIDs := make([]int64, len(recipients))
	authorIDs := make([]int64, len(recipients))
	kinds := make([]string, len(recipients))
	for i, r := range recipients {
		listIDs[i] = r.MailingListID
		emailIDs[i] = r.EmailID
		authorIDs[i] = r.AuthorID
		kinds[i] = string(r.Kind)
	}

	const query = `
		INSERT INTO recipients (mailing_list_id, email_id, author_id, kind)
		SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::text[])
		ON CONFLICT DO NOTHING`

	result, err := t.tx.ExecContext(ctx, query, pq.Array(listIDs), pq.Array(emailIDs), pq.Array(authorIDs), pq.Array(kinds))
	if err != nil {
		return 0, fmt.Errorf("insert recipients: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert recipients rows affected: %w", err)
	}
	return int(affected), nil
}

// InsertReferences bulk-inserts reference rows via unnest, returning the
// number of rows actually inserted.
func (t *Tx) InsertReferences(ctx context.Context, references []domain.Reference) (int, error) {
	if len(references) == 0 {
		return 0, nil
	}

	listIDs := make([]int64, len(references))
	emailIDs := make([]int64, len(references))
	referencedMessageIDs := make([]string, len(references))
	positions := make([]int, len(references))
	for i, r := range references {
		listIDs[i] = r.MailingListID
		emailIDs[i] = r.EmailID
		referencedMessageIDs[i] = r.ReferencedMessageID
		positions[i] = r.Position
	}

	const query = `
		INSERT INTO "references" (mailing_list_id, email_id, referenced_message_id, position)
		SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::text[], $4::int[])
		ON CONFLICT DO NOTHING`

	result, err := t.tx.ExecContext(ctx, query, pq.Array(listIDs), pq.Array(emailIDs), pq.Array(referencedMessageIDs), pq.Array(positions))
	if err != nil {
		return 0, fmt.Errorf("insert references: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert references rows affected: %w", err)
	}
	return int(affected), nil
}

// LoadListMessages loads every message plus its references for a list, for
// ThreadingCache.Load on worker startup/recovery.
func (t *Tx) LoadListMessages(ctx context.Context, listID int64) ([]domain.Message, map[int64][]domain.Reference, error) {
	const messagesQuery = `
		SELECT id, mailing_list_id, message_id, git_commit_hash, author_id, subject, normalized_subject,
			email_date, in_reply_to, body, series_id, series_number, series_total, epoch,
			patch_type, is_patch_only, patch_metadata
		FROM emails
		WHERE mailing_list_id = $1
		ORDER BY email_date ASC`

	rows, err := t.tx.QueryxContext(ctx, messagesQuery, listID)
	if err != nil {
		return nil, nil, fmt.Errorf("load list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var patchType string
		var patchMetadata sql.NullString
		if err := rows.Scan(
			&m.ID, &m.MailingListID, &m.MessageID, &m.GitCommitHash, &m.AuthorID, &m.Subject, &m.NormalizedSubject,
			&m.Date, &m.InReplyTo, &m.Body, &m.SeriesID, &m.SeriesNumber, &m.SeriesTotal, &m.Epoch,
			&patchType, &m.IsPatchOnly, &patchMetadata,
		); err != nil {
			return nil, nil, fmt.Errorf("scan message: %w", err)
		}
		m.PatchType = domain.PatchType(patchType)
		if patchMetadata.Valid {
			var meta domain.PatchMetadata
			if err := json.Unmarshal([]byte(patchMetadata.String), &meta); err != nil {
				return nil, nil, fmt.Errorf("unmarshal patch metadata: %w", err)
			}
			m.PatchMetadata = &meta
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	const referencesQuery = `
		SELECT email_id, mailing_list_id, referenced_message_id, position
		FROM "references"
		WHERE mailing_list_id = $1
		ORDER BY email_id, position`

	refRows, err := t.tx.QueryxContext(ctx, referencesQuery, listID)
	if err != nil {
		return nil, nil, fmt.Errorf("load list references: %w", err)
	}
	defer refRows.Close()

	refsByEmail := make(map[int64][]domain.Reference)
	for refRows.Next() {
		var r domain.Reference
		if err := refRows.Scan(&r.EmailID, &r.MailingListID, &r.ReferencedMessageID, &r.Position); err != nil {
			return nil, nil, fmt.Errorf("scan reference: %w", err)
		}
		refsByEmail[r.EmailID] = append(refsByEmail[r.EmailID], r)
	}
	return messages, refsByEmail, refRows.Err()
}

// LoadMailingList loads one list's config plus its repositories ordered
// by repo_order, the two queries the orchestrator issues before starting
// a sync pass.
func (t *Tx) LoadMailingList(ctx context.Context, listID int64) (domain.MailingList, []domain.Repository, error) {
	const listQuery = `
		SELECT id, slug, name, description, enabled, sync_priority, last_threaded_at
		FROM mailing_lists
		WHERE id = $1`

	var ml domain.MailingList
	var lastThreaded sql.NullTime
	row := t.tx.QueryRowxContext(ctx, listQuery, listID)
	if err := row.Scan(&ml.ID, &ml.Slug, &ml.Name, &ml.Description, &ml.Enabled, &ml.SyncPriority, &lastThreaded); err != nil {
		return domain.MailingList{}, nil, fmt.Errorf("load mailing list: %w", err)
	}
	if lastThreaded.Valid {
		ml.LastThreadedAt = &lastThreaded.Time
	}

	const reposQuery = `
		SELECT mailing_list_id, repo_order, repo_url, last_indexed_commit
		FROM mailing_list_repositories
		WHERE mailing_list_id = $1
		ORDER BY repo_order ASC`

	rows, err := t.tx.QueryxContext(ctx, reposQuery, listID)
	if err != nil {
		return domain.MailingList{}, nil, fmt.Errorf("load mailing list repositories: %w", err)
	}
	defer rows.Close()

	var repos []domain.Repository
	for rows.Next() {
		var r domain.Repository
		if err := rows.Scan(&r.MailingListID, &r.RepoOrder, &r.URL, &r.LastIndexedCommit); err != nil {
			return domain.MailingList{}, nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, r)
	}
	return ml, repos, rows.Err()
}

// ReplaceThreads atomically swaps a list's threads and thread_memberships
// rows so readers never observe a mix of old and new thread state, and
// returns the DB-assigned id for every thread keyed by RootMessageID so
// the caller (and downstream indexing) can address the real rows.
func (t *Tx) ReplaceThreads(ctx context.Context, listID int64, threads []domain.Thread, memberships []domain.ThreadMembership) (map[string]int64, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM thread_memberships WHERE thread_id IN (SELECT id FROM threads WHERE mailing_list_id = $1)`, listID); err != nil {
		return nil, fmt.Errorf("clear thread memberships: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM threads WHERE mailing_list_id = $1`, listID); err != nil {
		return nil, fmt.Errorf("clear threads: %w", err)
	}
	if len(threads) == 0 {
		return nil, nil
	}

	rootMessageIDs := make([]string, len(threads))
	subjects := make([]string, len(threads))
	startDates := make([]time.Time, len(threads))
	messageCounts := make([]int, len(threads))
	lastTSs := make([]time.Time, len(threads))
	hasPatches := make([]bool, len(threads))
	seriesIDs := make([]string, len(threads))
	starterAuthorIDs := make([]int64, len(threads))
	for i, th := range threads {
		rootMessageIDs[i] = th.RootMessageID
		subjects[i] = th.Subject
		startDates[i] = th.StartDate
		messageCounts[i] = th.MessageCount
		lastTSs[i] = th.LastTS
		hasPatches[i] = th.HasPatches
		seriesIDs[i] = th.SeriesID
		starterAuthorIDs[i] = th.StarterAuthorID
	}

	const insertThreadsQuery = `
		INSERT INTO threads (
			mailing_list_id, root_message_id, subject, start_date, message_count,
			last_ts, has_patches, series_id, starter_author_id
		)
		SELECT $1, * FROM unnest(
			$2::text[], $3::text[], $4::timestamptz[], $5::int[],
			$6::timestamptz[], $7::bool[], $8::text[], $9::bigint[]
		)
		RETURNING id, root_message_id`

	rows, err := t.tx.QueryxContext(ctx, insertThreadsQuery, listID,
		pq.Array(rootMessageIDs), pq.Array(subjects), pq.Array(startDates), pq.Array(messageCounts),
		pq.Array(lastTSs), pq.Array(hasPatches), pq.Array(seriesIDs), pq.Array(starterAuthorIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("insert threads: %w", err)
	}

	dbIDByRootMessageID := make(map[string]int64, len(threads))
	for rows.Next() {
		var id int64
		var rootMessageID string
		if err := rows.Scan(&id, &rootMessageID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inserted thread: %w", err)
		}
		dbIDByRootMessageID[rootMessageID] = id
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(memberships) == 0 || len(threads) == 0 {
		return dbIDByRootMessageID, nil
	}

	// memberships reference the caller's synthetic thread ids; translate
	// to the real DB-assigned ids by root message id.
	syntheticToRoot := make(map[int64]string, len(threads))
	for _, th := range threads {
		syntheticToRoot[th.ID] = th.RootMessageID
	}

	threadIDs := make([]int64, 0, len(memberships))
	emailIDs := make([]int64, 0, len(memberships))
	depths := make([]int, 0, len(memberships))
	for _, mem := range memberships {
		root, ok := syntheticToRoot[mem.ThreadID]
		if !ok {
			continue
		}
		dbID, ok := dbIDByRootMessageID[root]
		if !ok {
			continue
		}
		threadIDs = append(threadIDs, dbID)
		emailIDs = append(emailIDs, mem.EmailID)
		depths = append(depths, mem.Depth)
	}

	const insertMembershipsQuery = `
		INSERT INTO thread_memberships (thread_id, email_id, depth)
		SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::int[])`

	if _, err := t.tx.ExecContext(ctx, insertMembershipsQuery, pq.Array(threadIDs), pq.Array(emailIDs), pq.Array(depths)); err != nil {
		return nil, fmt.Errorf("insert thread memberships: %w", err)
	}
	return dbIDByRootMessageID, nil
}

// LoadLastCommits returns the last indexed commit hash per repo_order.
func (t *Tx) LoadLastCommits(ctx context.Context, listID int64) (map[int]string, error) {
	rows, err := t.tx.QueryxContext(ctx, `SELECT repo_order, last_indexed_commit FROM mailing_list_repositories WHERE mailing_list_id = $1`, listID)
	if err != nil {
		return nil, fmt.Errorf("load last commits: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var repoOrder int
		var commit sql.NullString
		if err := rows.Scan(&repoOrder, &commit); err != nil {
			return nil, fmt.Errorf("scan last commit: %w", err)
		}
		out[repoOrder] = commit.String
	}
	return out, rows.Err()
}

// SaveLastCommits sets the last indexed commit on the existing
// mailing_list_repositories row of each repo_order; a repo_order with no
// such row is not inserted and its commit is not stored.
func (t *Tx) SaveLastCommits(ctx context.Context, listID int64, commits map[int]string) error {
	for repoOrder, commit := range commits {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE mailing_list_repositories SET last_indexed_commit = $1
			WHERE mailing_list_id = $2 AND repo_order = $3`,
			commit, listID, repoOrder)
		if err != nil {
			return fmt.Errorf("save last commit for repo_order %d: %w", repoOrder, err)
		}
	}
	return nil
}

// SaveLastThreadedAt records when threading last completed for a list.
func (t *Tx) SaveLastThreadedAt(ctx context.Context, listID int64, when sql.NullTime) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE mailing_lists SET last_threaded_at = $1 WHERE id = $2`, when, listID)
	if err != nil {
		return fmt.Errorf("save last threaded at: %w", err)
	}
	return nil
}

// UpsertThreadDocuments persists thread search documents, including
// embeddings where present. The embedding column is only written when the
// document carries one, leaving pgvector null for semantic-disabled
// deployments exactly as spec.md requires.
func (t *Tx) UpsertThreadDocuments(ctx context.Context, docs []port.ThreadDocument) error {
	for _, d := range docs {
		var embedding any
		if len(d.Embedding) > 0 {
			embedding = pq.Array(d.Embedding)
		}
		participants, err := json.Marshal(d.Participants)
		if err != nil {
			return fmt.Errorf("marshal participants: %w", err)
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO thread_documents (
				thread_id, mailing_list_id, subject, discussion_text, participants,
				has_patches, series_id, start_date, last_ts, message_count, embedding
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (thread_id) DO UPDATE SET
				subject = EXCLUDED.subject,
				discussion_text = EXCLUDED.discussion_text,
				participants = EXCLUDED.participants,
				has_patches = EXCLUDED.has_patches,
				series_id = EXCLUDED.series_id,
				last_ts = EXCLUDED.last_ts,
				message_count = EXCLUDED.message_count,
				embedding = COALESCE(EXCLUDED.embedding, thread_documents.embedding)`,
			d.ThreadID, d.MailingListID, d.Subject, d.DiscussionText, participants,
			d.HasPatches, d.SeriesID, d.StartDate, d.LastTS, d.MessageCount, embedding,
		)
		if err != nil {
			return fmt.Errorf("upsert thread document %d: %w", d.ThreadID, err)
		}
	}
	return nil
}

// UpsertAuthorDocuments persists per-author aggregate statistics.
func (t *Tx) UpsertAuthorDocuments(ctx context.Context, docs []port.AuthorDocument) error {
	for _, d := range docs {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO author_documents (
				author_id, mailing_list_id, message_count, thread_count, first_seen, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (author_id, mailing_list_id) DO UPDATE SET
				message_count = EXCLUDED.message_count,
				thread_count = EXCLUDED.thread_count,
				first_seen = LEAST(author_documents.first_seen, EXCLUDED.first_seen),
				last_seen = GREATEST(author_documents.last_seen, EXCLUDED.last_seen)`,
			d.AuthorID, d.MailingListID, d.MessageCount, d.ThreadCount, d.FirstSeen, d.LastSeen,
		)
		if err != nil {
			return fmt.Errorf("upsert author document %d: %w", d.AuthorID, err)
		}
	}
	return nil
}

// GetUserByEmail loads an auth principal by email.
func (t *Tx) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	var role string
	err := t.tx.QueryRowxContext(ctx, `
		SELECT id, email, display_name, password_hash, role, token_version, disabled, locked
		FROM users WHERE email = $1`, lowerASCII(email),
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &role, &u.TokenVersion, &u.Disabled, &u.Locked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// GetTokenVersion returns a user's current token_version.
func (t *Tx) GetTokenVersion(ctx context.Context, userID int64) (int64, error) {
	var version int64
	err := t.tx.QueryRowxContext(ctx, `SELECT token_version FROM users WHERE id = $1`, userID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get token version: %w", err)
	}
	return version, nil
}

// IncrementTokenVersion bumps a user's token_version, invalidating every
// previously issued access token (global logout).
func (t *Tx) IncrementTokenVersion(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("increment token version: %w", err)
	}
	return nil
}

// CreateUser inserts a new auth principal, used by cmd/create-user.
func (t *Tx) CreateUser(ctx context.Context, u domain.User) (int64, error) {
	var id int64
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO users (email, display_name, password_hash, role, token_version, disabled, locked)
		VALUES ($1, $2, $3, $4, 0, false, false)
		RETURNING id`,
		lowerASCII(u.Email), u.DisplayName, u.PasswordHash, string(u.Role),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
