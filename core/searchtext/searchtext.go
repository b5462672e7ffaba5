// Package searchtext builds the canonical embedding-ready text for a
// message: patch/diff/trailer content stripped, whitespace normalized,
// subject prepended, and truncated to a grapheme-safe cap.
package searchtext

import (
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"

	"github.com/tansanrao/nexus/core/domain"
)

// DefaultMaxGraphemes caps the embedding text length; callers may override
// via BuildWithLimit for the configured dimension/model requirements.
const DefaultMaxGraphemes = 8000

// Build produces the canonical text used for message embeddings:
// diff/diffstat/trailer sections removed, whitespace normalized, subject
// prepended unless empty, truncated on a grapheme boundary.
func Build(msg domain.Message) string {
	return BuildWithLimit(msg, DefaultMaxGraphemes)
}

func BuildWithLimit(msg domain.Message, maxGraphemes int) string {
	body := msg.Body

	if msg.PatchType == domain.PatchTypeAttachment && msg.IsPatchOnly {
		body = ""
	} else if msg.PatchMetadata != nil {
		body = stripPatchSections(body, msg.PatchMetadata)
	}

	body = normalizeWhitespace(strings.TrimSpace(body))
	subject := strings.TrimSpace(msg.Subject)

	var out string
	switch {
	case body == "":
		out = subject
	case subject == "":
		out = body
	default:
		out = subject + "\n\n" + body
	}

	return truncateGraphemes(out, maxGraphemes)
}

func stripPatchSections(body string, metadata *domain.PatchMetadata) string {
	if body == "" || len(metadata.Sections) == 0 {
		return body
	}

	type span struct{ start, end int }
	spans := make([]span, 0, len(metadata.Sections))
	for _, s := range metadata.Sections {
		start := s.Start
		end := s.End
		if start < 0 {
			start = 0
		}
		if end > len(body) {
			end = len(body)
		}
		if start >= end {
			continue
		}
		spans = append(spans, span{start, end})
	}
	if len(spans) == 0 {
		return body
	}

	// Merge/sort spans so overlapping drop ranges collapse into one pass.
	sortSpans(spans)

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			if s.end > last {
				last = s.end
			}
			continue
		}
		b.WriteString(body[last:s.start])
		last = s.end
	}
	b.WriteString(body[last:])
	return b.String()
}

func sortSpans(spans []struct{ start, end int }) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

// normalizeWhitespace collapses runs of blank lines to a single blank line
// and trims trailing spaces on every line.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	prevBlank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			if !prevBlank {
				out = append(out, "")
			}
			prevBlank = true
			continue
		}
		out = append(out, trimmed)
		prevBlank = false
	}
	// Trim a single trailing blank line, mirroring the teacher's
	// "pop trailing newline" cleanup.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// truncateGraphemes cuts text to at most maxGraphemes grapheme clusters,
// never splitting one in half, and guarantees the result is valid UTF-8.
func truncateGraphemes(text string, maxGraphemes int) string {
	if maxGraphemes <= 0 || text == "" {
		return ""
	}
	gr := uniseg.NewGraphemes(text)
	count := 0
	end := 0
	for gr.Next() {
		count++
		if count > maxGraphemes {
			break
		}
		_, to := gr.Positions()
		end = to
	}
	if end >= len(text) {
		return text
	}
	out := text[:end]
	if !utf8.ValidString(out) {
		// Defensive: uniseg boundaries are always valid UTF-8 cut points,
		// this only guards against a corrupt input string.
		out = strings.ToValidUTF8(out, "")
	}
	return out
}
