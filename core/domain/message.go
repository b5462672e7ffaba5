package domain

import "time"

// PatchType classifies how a message carries a patch, if at all.
type PatchType string

const (
	PatchTypeNone       PatchType = "none"
	PatchTypeInline     PatchType = "inline"
	PatchTypeAttachment PatchType = "attachment"
)

// RecipientKind distinguishes To from Cc recipients.
type RecipientKind string

const (
	RecipientTo RecipientKind = "to"
	RecipientCc RecipientKind = "cc"
)

// Author is upserted by lowercased email; email is unique per list partition.
type Author struct {
	ID            int64
	MailingListID int64
	Email         string
	CanonicalName string
}

// PatchSection is a line range within a message body belonging to a diff,
// diffstat, or trailer block, in byte offsets into the body.
type PatchSection struct {
	Kind  string // "diff", "diffstat", "trailer"
	Start int
	End   int
}

// PatchMetadata describes the patch structure of a message body, produced
// by the parser and consumed by SearchText when stripping diff content.
type PatchMetadata struct {
	Sections []PatchSection
}

// Message is the normalized record of one archived email.
type Message struct {
	ID                int64
	MailingListID     int64
	MessageID         string // globally unique per list; the RFC822 Message-ID
	GitCommitHash     string
	AuthorID          int64
	Subject           string
	NormalizedSubject string
	Date              time.Time // always UTC
	InReplyTo         string
	Body              string
	SeriesID          string
	SeriesNumber      int
	SeriesTotal       int
	Epoch             int // = repo_order
	PatchType         PatchType
	IsPatchOnly       bool
	PatchMetadata     *PatchMetadata
}

// Recipient links a message to an author in the To/Cc line.
type Recipient struct {
	MailingListID int64
	EmailID       int64
	AuthorID      int64
	Kind          RecipientKind
}

// Reference records one entry of a message's References header, in
// dense, duplicate-free, header-order positions.
type Reference struct {
	MailingListID       int64
	EmailID             int64
	ReferencedMessageID string
	Position            int
}

// ParsedMessage is the Parser's output: a Message plus the references it
// carries, ready for the BulkImporter. AuthorID in Message is resolved
// later by the importer's author-upsert step; FromEmail/FromName carry the
// raw From-header identity until then.
type ParsedMessage struct {
	Message    Message
	FromEmail  string
	FromName   string
	References []string // message-IDs, in header order, de-duplicated
	Recipients []ParsedRecipient
}

// ParsedRecipient names a recipient by address before author-ID resolution.
type ParsedRecipient struct {
	Email string
	Name  string
	Kind  RecipientKind
}
