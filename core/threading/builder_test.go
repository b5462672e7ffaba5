package threading

import (
	"testing"
	"time"

	"github.com/tansanrao/nexus/core/domain"
)

func msg(id string, messageID string, authorID int64, date time.Time) domain.Message {
	return domain.Message{ID: authorIDToEmailID(id), MessageID: messageID, AuthorID: authorID, Date: date, Subject: "s:" + messageID}
}

// authorIDToEmailID derives a small stable int64 email id from a letter
// label, purely to keep test fixtures short (e.g. "A" -> 1).
func authorIDToEmailID(label string) int64 {
	var n int64
	for _, r := range label {
		n = n*31 + int64(r)
	}
	if n < 0 {
		n = -n
	}
	return n
}

func baseDate() time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
}

// Scenario 1 from the spec's end-to-end list: cycle refusal.
func TestBuild_CycleRefusal(t *testing.T) {
	c := New()
	c.Load([]domain.Message{
		msg("A", "A", 1, baseDate()),
		msg("B", "B", 2, baseDate().Add(time.Minute)),
		msg("C", "C", 3, baseDate().Add(2*time.Minute)),
	}, map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"B"},
	})
	// Inject message A' with message_id=A, references=[C].
	c.Merge([]domain.Message{msg("A", "A", 1, baseDate())}, map[string][]string{
		"A": {"C"},
	}, nil)

	threads, stats := Build(c.Snapshot())
	if stats.CycleRefusals == 0 {
		t.Fatalf("expected at least one cycle refusal, got stats=%+v", stats)
	}
	if len(threads) != 1 {
		t.Fatalf("expected a single thread, got %d", len(threads))
	}
	th := threads[0]
	if th.RootMessageID != "A" {
		t.Fatalf("expected root A, got %s", th.RootMessageID)
	}
	if len(th.Members) != 3 {
		t.Fatalf("expected 3 members (A,B,C), got %d: %+v", len(th.Members), th.Members)
	}
	depths := map[int64]int{}
	for _, m := range th.Members {
		depths[m.EmailID] = m.Depth
	}
	if depths[authorIDToEmailID("A")] != 0 {
		t.Fatalf("A should be at depth 0")
	}
	if depths[authorIDToEmailID("B")] != 1 {
		t.Fatalf("B should be at depth 1 (child of A)")
	}
	if depths[authorIDToEmailID("C")] != 2 {
		t.Fatalf("C should be at depth 2 (grandchild of A)")
	}
}

// Scenario 2: phantom root promotion.
func TestBuild_PhantomRootPromotion(t *testing.T) {
	c := New()
	c.Load([]domain.Message{
		msg("M1", "M1", 1, baseDate()),
		msg("M2", "M2", 2, baseDate().Add(time.Minute)),
	}, map[string][]string{
		"M1": {"X"},
		"M2": {"X", "M1"},
	})

	threads, _ := Build(c.Snapshot())
	if len(threads) != 1 {
		t.Fatalf("expected a single thread, got %d", len(threads))
	}
	if threads[0].RootMessageID != "M1" {
		t.Fatalf("expected M1 promoted to root, got %s", threads[0].RootMessageID)
	}
}

// Scenario 3: patch series threading.
func TestBuild_PatchSeriesThreading(t *testing.T) {
	c := New()
	p0 := msg("P0", "P0", 1, baseDate())
	p0.SeriesID = "series-x"
	p0.SeriesTotal = 2
	p0.PatchType = domain.PatchTypeInline

	p1 := msg("P1", "P1", 2, baseDate().Add(time.Minute))
	p1.PatchType = domain.PatchTypeInline
	p2 := msg("P2", "P2", 3, baseDate().Add(2*time.Minute))
	p2.PatchType = domain.PatchTypeInline

	c.Load([]domain.Message{p0, p1, p2}, map[string][]string{
		"P0": nil,
		"P1": {"P0"},
		"P2": {"P0"},
	})

	threads, _ := Build(c.Snapshot())
	if len(threads) != 1 {
		t.Fatalf("expected one thread, got %d", len(threads))
	}
	th := threads[0]
	if th.RootMessageID != "P0" {
		t.Fatalf("expected root P0, got %s", th.RootMessageID)
	}
	if !th.HasPatches {
		t.Fatal("expected has_patches = true")
	}
	depths := map[int64]int{}
	for _, m := range th.Members {
		depths[m.EmailID] = m.Depth
	}
	if depths[p1.ID] != 1 || depths[p2.ID] != 1 {
		t.Fatalf("expected both P1 and P2 at depth 1, got %+v", depths)
	}
}

// Threading determinism: two runs over the same snapshot produce
// identical forests, including children ordering.
func TestBuild_Determinism(t *testing.T) {
	c := New()
	c.Load([]domain.Message{
		msg("A", "A", 1, baseDate()),
		msg("B", "B", 2, baseDate().Add(time.Minute)),
		msg("C", "C", 3, baseDate().Add(2*time.Minute)),
		msg("D", "D", 4, baseDate().Add(3*time.Minute)),
	}, map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": {"A"},
		"D": {"A", "B"},
	})

	snap := c.Snapshot()
	t1, _ := Build(snap)
	t2, _ := Build(snap)

	if len(t1) != len(t2) {
		t.Fatalf("different thread counts across runs: %d vs %d", len(t1), len(t2))
	}
	for i := range t1 {
		if t1[i].RootMessageID != t2[i].RootMessageID {
			t.Fatalf("root mismatch at %d: %s vs %s", i, t1[i].RootMessageID, t2[i].RootMessageID)
		}
		if len(t1[i].Members) != len(t2[i].Members) {
			t.Fatalf("member count mismatch for root %s", t1[i].RootMessageID)
		}
		for j := range t1[i].Members {
			if t1[i].Members[j] != t2[i].Members[j] {
				t.Fatalf("member order mismatch at thread %d, position %d", i, j)
			}
		}
	}
}

// Acyclicity: every non-root container has exactly one parent; no
// container is its own ancestor.
func TestBuild_Acyclicity(t *testing.T) {
	c := New()
	c.Load([]domain.Message{
		msg("A", "A", 1, baseDate()),
		msg("B", "B", 2, baseDate().Add(time.Minute)),
		msg("C", "C", 3, baseDate().Add(2*time.Minute)),
	}, map[string][]string{
		"A": {"C"},
		"B": {"A"},
		"C": {"B"},
	})

	table, _ := buildContainerTable(c.Snapshot())
	linkReferences(table, c.Snapshot(), &BuildStats{})

	for id, container := range table {
		seen := map[string]bool{id: true}
		cur := container.Parent
		for cur != "" {
			if seen[cur] {
				t.Fatalf("cycle detected while walking ancestry of %s", id)
			}
			seen[cur] = true
			cur = table[cur].Parent
		}
	}
}

// Reparent conflict: a container already has a parent; a later link only
// overrides it when the new candidate is an ancestor of the existing one.
func TestLink_ReparentConflictFavorsAncestorCandidate(t *testing.T) {
	table := map[string]*Container{
		"A": {MessageID: "A"},
		"B": {MessageID: "B", Parent: "A"},
		"C": {MessageID: "C"},
	}
	table["A"].Children = []string{"B"}

	stats := &BuildStats{}
	// C currently has no parent; give it parent B first.
	link(table, "C", "B", stats)
	if table["C"].Parent != "B" {
		t.Fatalf("expected C's parent to be B, got %q", table["C"].Parent)
	}

	// Now a second chain proposes A (an ancestor of B, C's current
	// parent) as C's parent: this candidate should win.
	link(table, "C", "A", stats)
	if table["C"].Parent != "A" {
		t.Fatalf("expected reparent to A (ancestor of B), got %q", table["C"].Parent)
	}

	// B should no longer list C as a child once C reparents.
	for _, child := range table["B"].Children {
		if child == "C" {
			t.Fatal("B should no longer have C as a child after reparenting")
		}
	}
}

// Referential completeness: every message appears in exactly one thread.
func TestBuild_ReferentialCompleteness(t *testing.T) {
	c := New()
	c.Load([]domain.Message{
		msg("A", "A", 1, baseDate()),
		msg("B", "B", 2, baseDate().Add(time.Minute)),
		msg("C", "C", 3, baseDate().Add(2*time.Minute)),
	}, map[string][]string{
		"A": nil,
		"B": {"A"},
		"C": nil,
	})

	threads, _ := Build(c.Snapshot())
	seen := map[int64]int{}
	for _, th := range threads {
		for _, m := range th.Members {
			seen[m.EmailID]++
		}
	}
	for _, id := range []string{"A", "B", "C"} {
		eid := authorIDToEmailID(id)
		if seen[eid] != 1 {
			t.Fatalf("message %s appears in %d threads, want 1", id, seen[eid])
		}
	}
}
