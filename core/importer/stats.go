package importer

// ImportStats tracks records inserted during one import operation, across
// all related tables. Zero counts on a re-ingest of an already-committed
// chunk are expected and indicate idempotent behavior, not failure.
type ImportStats struct {
	Authors           int
	Emails            int
	Recipients        int
	References        int
	Threads           int
	ThreadMemberships int
}

// Merge sums another ImportStats into this one, used to combine
// statistics across multiple import chunks.
func (s *ImportStats) Merge(other ImportStats) {
	s.Authors += other.Authors
	s.Emails += other.Emails
	s.Recipients += other.Recipients
	s.References += other.References
	s.Threads += other.Threads
	s.ThreadMemberships += other.ThreadMemberships
}
