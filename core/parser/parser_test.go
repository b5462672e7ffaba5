package parser

import (
	"testing"

	"github.com/tansanrao/nexus/core/domain"
)

func rawMessage(headers map[string]string, body string) []byte {
	var out string
	for k, v := range headers {
		out += k + ": " + v + "\r\n"
	}
	out += "\r\n" + body
	return []byte(out)
}

func TestParse_Basic(t *testing.T) {
	raw := rawMessage(map[string]string{
		"Message-Id": "<abc@example.com>",
		"Date":       "Mon, 2 Jan 2006 15:04:05 +0000",
		"Subject":    "Re: [PATCH 2/5] fix the thing",
		"From":       "Jane Doe <jane@example.com>",
		"To":         "list@example.com",
	}, "Just a message body.\n")

	pm, err := Parse(Commit{Hash: "deadbeef", Raw: raw}, 1, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.Message.MessageID != "abc@example.com" {
		t.Fatalf("unexpected message id: %q", pm.Message.MessageID)
	}
	if pm.Message.NormalizedSubject != "fix the thing" {
		t.Fatalf("unexpected normalized subject: %q", pm.Message.NormalizedSubject)
	}
	if pm.Message.SeriesNumber != 2 || pm.Message.SeriesTotal != 5 {
		t.Fatalf("unexpected series %d/%d", pm.Message.SeriesNumber, pm.Message.SeriesTotal)
	}
	if pm.FromEmail != "jane@example.com" {
		t.Fatalf("unexpected from: %q", pm.FromEmail)
	}
}

func TestParse_MissingDate(t *testing.T) {
	raw := rawMessage(map[string]string{
		"Message-Id": "<abc@example.com>",
		"Subject":    "no date",
		"From":       "a@example.com",
	}, "body")

	_, err := Parse(Commit{Raw: raw}, 1, 0)
	if err == nil {
		t.Fatal("expected a validation error for missing date")
	}
}

func TestNormalizeSubject_RepeatedPrefixes(t *testing.T) {
	got := NormalizeSubject("Re: Fwd: RE: [RFC] [PATCH v2 1/3] something")
	if got != "something" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractReferences_DedupKeepsFirst(t *testing.T) {
	refs := ExtractReferences("<a@x> <b@x> <a@x> <c@x>")
	want := []string{"a@x", "b@x", "c@x"}
	if len(refs) != len(want) {
		t.Fatalf("got %v", refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("position %d: got %q want %q", i, refs[i], want[i])
		}
	}
}

func TestDetectPatch_InlineDiff(t *testing.T) {
	body := "Here's a fix.\n\ndiff --git a/foo b/foo\n--- a/foo\n+++ b/foo\n@@ -1 +1 @@\n-old\n+new\n\nSigned-off-by: Jane <jane@example.com>\n"
	raw := rawMessage(map[string]string{
		"Message-Id": "<x@y>",
		"Date":       "Mon, 2 Jan 2006 15:04:05 +0000",
		"Subject":    "a fix",
		"From":       "jane@example.com",
	}, body)
	pm, err := Parse(Commit{Raw: raw}, 1, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pm.Message.PatchType != domain.PatchTypeInline {
		t.Fatalf("expected inline patch type, got %v", pm.Message.PatchType)
	}
}
