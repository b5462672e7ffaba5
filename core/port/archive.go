package port

import "context"

// ArchiveCommit is one entry in a repository's append-only commit log: a
// raw message blob plus the commit hash used as the checkpoint token.
type ArchiveCommit struct {
	CommitHash string
	Raw        []byte
}

// ArchiveReader iterates a repository's commit log from (and excluding) a
// given checkpoint commit, in archive order. A real git-log reader is an
// external collaborator; this module ships only the interface plus
// in-memory test fakes.
type ArchiveReader interface {
	// CommitsSince streams commits after fromCommit (empty = from the
	// start) until the log is exhausted or ctx is cancelled.
	CommitsSince(ctx context.Context, repoURL string, fromCommit string) (<-chan ArchiveCommit, <-chan error)
}
