package searchtext

import (
	"strings"
	"testing"

	"github.com/rivo/uniseg"

	"github.com/tansanrao/nexus/core/domain"
)

func TestBuild_SubjectAndBody(t *testing.T) {
	msg := domain.Message{
		Subject: "  a subject  ",
		Body:    "line one\n\n\n\nline two   \n",
	}
	got := Build(msg)
	want := "a subject\n\nline one\n\nline two"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBuild_AttachmentPatchOnlyDropsBody(t *testing.T) {
	msg := domain.Message{
		Subject:     "a patch",
		Body:        "diff --git a/x b/x\n...",
		PatchType:   domain.PatchTypeAttachment,
		IsPatchOnly: true,
	}
	got := Build(msg)
	if got != "a patch" {
		t.Fatalf("expected body dropped entirely, got %q", got)
	}
}

func TestBuild_StripsPatchSections(t *testing.T) {
	body := "Please review.\n\ndiff --git a/x b/x\n--- a/x\n+++ b/x\n@@ -1 +1 @@\n-old\n+new\n\nSigned-off-by: A <a@x>\n"
	diffStart := strings.Index(body, "diff --git")
	diffEnd := strings.Index(body, "Signed-off-by")
	trailerStart := diffEnd
	msg := domain.Message{
		Subject: "review",
		Body:    body,
		PatchMetadata: &domain.PatchMetadata{
			Sections: []domain.PatchSection{
				{Kind: "diff", Start: diffStart, End: diffEnd},
				{Kind: "trailer", Start: trailerStart, End: len(body)},
			},
		},
	}
	got := Build(msg)
	if strings.Contains(got, "diff --git") || strings.Contains(got, "Signed-off-by") {
		t.Fatalf("expected patch content stripped, got %q", got)
	}
	if !strings.Contains(got, "Please review.") {
		t.Fatalf("expected discussion text retained, got %q", got)
	}
}

func TestBuild_EmptySubjectUsesBody(t *testing.T) {
	msg := domain.Message{Body: "just body text"}
	got := Build(msg)
	if got != "just body text" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateGraphemes_GraphemeBoundary(t *testing.T) {
	// A family emoji is a single grapheme cluster made of several runes;
	// truncating must not split it.
	family := "\U0001F468" + "‍" + "\U0001F469" + "‍" + "\U0001F467" // man-woman-girl ZWJ sequence
	text := family + family + family
	got := truncateGraphemes(text, 2)
	if uniseqCount(got) != 2 {
		t.Fatalf("expected exactly 2 grapheme clusters, got %d (%q)", uniseqCount(got), got)
	}
}

func uniseqCount(s string) int {
	n := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		n++
	}
	return n
}
