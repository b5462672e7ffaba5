// Package parser turns raw archived message bytes into domain.ParsedMessage
// values, extracting patch metadata and reference chains along the way.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/pkg/apperr"
)

// replyPrefixRe strips leading "re:"/"fw:"/"fwd:" sequences, repeated and
// case-insensitive, and leading "[...]" bracket prefixes.
var (
	replyPrefixRe = regexp.MustCompile(`(?i)^\s*(re|fw|fwd)\s*:\s*`)
	bracketRe     = regexp.MustCompile(`^\s*\[[^\]]*\]\s*`)
	msgIDRe       = regexp.MustCompile(`<[^<>\s]+>`)

	// seriesSubjectRe matches a "[PATCH n/m]" style prefix used to group
	// a patch series, e.g. "[PATCH 2/5] net: fix foo", "[RFC PATCH v2 3/10] ...".
	seriesSubjectRe = regexp.MustCompile(`(?i)\[.*?PATCH\s*(?:v\d+)?\s*(\d+)/(\d+)\s*\]`)

	trailerRe = regexp.MustCompile(`(?m)^(Signed-off-by|Reviewed-by|Acked-by|Tested-by|Reported-by|Co-developed-by|Cc):.*$`)

	diffHeaderRe  = regexp.MustCompile(`(?m)^diff --git `)
	diffStatRe    = regexp.MustCompile(`(?m)^\s*\d+\s+files? changed,.*$`)
	hunkHeaderRe  = regexp.MustCompile(`(?m)^@@ .* @@`)
	diffMarkerRe  = regexp.MustCompile(`(?m)^(---|\+\+\+) `)
)

// Commit is one raw message payload taken from an archive commit.
type Commit struct {
	Hash string
	Raw  []byte
}

// Parse turns one commit payload into a ParsedMessage, attributing it to
// epoch (= repo_order). A malformed date or unparseable header block is a
// validation error: the caller should skip the message and count it, not
// abort the chunk.
func Parse(c Commit, mailingListID int64, epoch int) (domain.ParsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(c.Raw))
	if err != nil {
		return domain.ParsedMessage{}, apperr.ValidationFailed(fmt.Sprintf("unparseable message: %v", err))
	}
	header := msg.Header

	messageID := strings.Trim(header.Get("Message-Id"), "<>")
	if messageID == "" {
		return domain.ParsedMessage{}, apperr.ValidationFailed("missing Message-ID")
	}

	date, err := parseDate(header.Get("Date"))
	if err != nil {
		return domain.ParsedMessage{}, apperr.ValidationFailed(fmt.Sprintf("unparseable date: %v", err))
	}

	subject := decodeHeader(header.Get("Subject"))
	normalized := NormalizeSubject(subject)

	fromAddr, fromName := parseFromAddress(header.Get("From"))

	bodyBytes, _ := io.ReadAll(msg.Body)
	body := string(bodyBytes)

	patchType, metadata := detectPatch(header, body)
	isPatchOnly := patchType != domain.PatchTypeNone && strippedBodyIsEmpty(body, metadata)

	seriesID, seriesNum, seriesTotal := extractSeries(subject, normalized)

	refs := ExtractReferences(header.Get("References"))
	inReplyTo := strings.Trim(header.Get("In-Reply-To"), "<>")
	if len(refs) == 0 && inReplyTo != "" {
		refs = []string{inReplyTo}
	}

	recipients := extractRecipients(header)

	pm := domain.ParsedMessage{
		Message: domain.Message{
			MailingListID:     mailingListID,
			MessageID:         messageID,
			GitCommitHash:     c.Hash,
			Subject:           subject,
			NormalizedSubject: normalized,
			Date:              date.UTC(),
			InReplyTo:         inReplyTo,
			Body:              body,
			SeriesID:          seriesID,
			SeriesNumber:      seriesNum,
			SeriesTotal:       seriesTotal,
			Epoch:             epoch,
			PatchType:         patchType,
			IsPatchOnly:       isPatchOnly,
			PatchMetadata:     metadata,
		},
		FromEmail:  fromAddr,
		FromName:   fromName,
		References: refs,
		Recipients: recipients,
	}
	return pm, nil
}

// NormalizeSubject strips repeated, case-insensitive reply/forward
// prefixes and leading bracket tags (e.g. "[PATCH 2/5]") until fixed
// point, then trims whitespace.
func NormalizeSubject(subject string) string {
	s := subject
	for {
		before := s
		s = replyPrefixRe.ReplaceAllString(s, "")
		s = bracketRe.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}
	return strings.TrimSpace(s)
}

// ExtractReferences pulls angle-bracketed message-IDs out of a References
// header in header order, removing duplicates but keeping first position.
func ExtractReferences(header string) []string {
	matches := msgIDRe.FindAllString(header, -1)
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.Trim(m, "<>")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// permissiveDateLayouts covers the RFC 5322 layout plus the variants seen
// in decades-old list archives that predate strict header hygiene.
var permissiveDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty Date header")
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t, nil
	}
	for _, layout := range permissiveDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", raw)
}

func decodeHeader(raw string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func parseFromAddress(raw string) (email, name string) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw)), ""
	}
	return strings.ToLower(addr.Address), addr.Name
}

func extractRecipients(header mail.Header) []domain.ParsedRecipient {
	var out []domain.ParsedRecipient
	for _, field := range []struct {
		key  string
		kind domain.RecipientKind
	}{
		{"To", domain.RecipientTo},
		{"Cc", domain.RecipientCc},
	} {
		raw := header.Get(field.key)
		if raw == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(raw)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, domain.ParsedRecipient{
				Email: strings.ToLower(a.Address),
				Name:  a.Name,
				Kind:  field.kind,
			})
		}
	}
	return out
}

// extractSeries parses a "[PATCH n/m]" subject tag into a series
// identifier (the normalized subject, stable across the series),
// position, and total.
func extractSeries(subject, normalized string) (seriesID string, number, total int) {
	m := seriesSubjectRe.FindStringSubmatch(subject)
	if m == nil {
		return "", 0, 0
	}
	var n, tot int
	fmt.Sscanf(m[1], "%d", &n)
	fmt.Sscanf(m[2], "%d", &tot)
	return normalized, n, tot
}

// detectPatch classifies the patch presence in a message and locates the
// diff/diffstat/trailer line ranges for SearchText to strip later.
func detectPatch(header mail.Header, body string) (domain.PatchType, *domain.PatchMetadata) {
	contentType := header.Get("Content-Type")
	isMultipart := strings.Contains(strings.ToLower(contentType), "multipart/")

	var sections []domain.PatchSection
	addAll := func(re *regexp.Regexp, kind string) {
		for _, loc := range re.FindAllStringIndex(body, -1) {
			sections = append(sections, domain.PatchSection{Kind: kind, Start: loc[0], End: lineEnd(body, loc[1])})
		}
	}

	hasDiff := diffHeaderRe.MatchString(body) || hunkHeaderRe.MatchString(body) || diffMarkerRe.MatchString(body)
	if hasDiff {
		addAll(diffHeaderRe, "diff")
		addAll(hunkHeaderRe, "diff")
		addAll(diffStatRe, "diffstat")
	}
	addAll(trailerRe, "trailer")

	if !hasDiff {
		if len(sections) == 0 {
			return domain.PatchTypeNone, nil
		}
		return domain.PatchTypeNone, &domain.PatchMetadata{Sections: sections}
	}
	if isMultipart {
		return domain.PatchTypeAttachment, &domain.PatchMetadata{Sections: sections}
	}
	return domain.PatchTypeInline, &domain.PatchMetadata{Sections: sections}
}

func lineEnd(s string, from int) int {
	idx := strings.IndexByte(s[from:], '\n')
	if idx < 0 {
		return len(s)
	}
	return from + idx
}

// strippedBodyIsEmpty reports whether the body minus patch/trailer
// sections is empty after whitespace normalization.
func strippedBodyIsEmpty(body string, metadata *domain.PatchMetadata) bool {
	if metadata == nil {
		return strings.TrimSpace(body) == ""
	}
	stripped := stripSections(body, metadata.Sections)
	return strings.TrimSpace(stripped) == ""
}

func stripSections(body string, sections []domain.PatchSection) string {
	if len(sections) == 0 {
		return body
	}
	sorted := append([]domain.PatchSection(nil), sections...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	var b strings.Builder
	last := 0
	for _, s := range sorted {
		if s.Start < last {
			if s.End > last {
				last = s.End
			}
			continue
		}
		b.WriteString(body[last:s.Start])
		last = s.End
	}
	b.WriteString(body[last:])
	return b.String()
}
