package threading

import (
	"sort"
	"time"

	"github.com/tansanrao/nexus/core/domain"
)

// BuildStats counts the skips a build recorded — cycle refusals never
// abort the whole build, they're counted and reported.
type BuildStats struct {
	CycleRefusals int
	PhantomsCreated int
}

// ThreadInfo is one synthesized thread: root plus (email_id, depth) pairs
// in DFS order, ready for persistence by BulkImporter.
type ThreadInfo struct {
	RootMessageID string
	Subject       string
	StartDate     time.Time
	LastTS        time.Time
	Members       []MemberDepth // (email_id, depth), DFS order
	Participants  []int64       // author ids, de-duplicated
	HasPatches    bool
	SeriesID      string
	StarterID     int64
}

// MemberDepth pairs an email_id with its distance from the thread root.
type MemberDepth struct {
	EmailID int64
	Depth   int
}

// Build runs the full JWZ-style pass over one snapshot and returns the
// resulting threads in deterministic order (by root message_id).
func Build(snap Snapshot) ([]ThreadInfo, BuildStats) {
	table, stats := buildContainerTable(snap)
	linkReferences(table, snap, &stats)
	roots := collectRoots(table)
	roots = promoteRoots(table, roots)

	threads := make([]ThreadInfo, 0, len(roots))
	for _, rootID := range roots {
		if isEmptyPhantomSubtree(table, rootID) {
			continue
		}
		threads = append(threads, synthesizeThread(table, snap, rootID))
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].RootMessageID < threads[j].RootMessageID })
	return threads, stats
}

// buildContainerTable implements step 1: one container per known message,
// plus a phantom for every referenced id that has no container yet.
func buildContainerTable(snap Snapshot) (map[string]*Container, BuildStats) {
	table := make(map[string]*Container, len(snap.Messages))
	var stats BuildStats

	for msgID, msg := range snap.Messages {
		id := msg.ID
		table[msgID] = &Container{MessageID: msgID, EmailID: &id}
	}

	ensurePhantom := func(msgID string) {
		if _, ok := table[msgID]; !ok {
			table[msgID] = &Container{MessageID: msgID}
			stats.PhantomsCreated++
		}
	}

	for msgID, refs := range snap.References {
		ensurePhantom(msgID)
		for _, r := range refs {
			ensurePhantom(r)
		}
	}
	return table, stats
}

// linkReferences implements step 2–4: for each message's reference chain
// [r0..rn], link r(i+1) as child of r(i) and the message as child of rn;
// In-Reply-To is a synthetic final reference when References is empty.
// Every link passes the cycle guard and reparent tie-break.
func linkReferences(table map[string]*Container, snap Snapshot, stats *BuildStats) {
	// Process in arrival order (snap.Order): a message re-merged with a
	// new reference chain is touched last, so it links against whatever
	// chain its predecessors already established — this is what lets the
	// cycle guard refuse a correction that would loop back on itself.
	msgIDs := snap.Order
	if len(msgIDs) == 0 {
		msgIDs = snap.MessageIDsSorted()
	}

	for _, msgID := range msgIDs {
		if _, ok := snap.Messages[msgID]; !ok {
			continue
		}
		refs := snap.References[msgID]
		if len(refs) == 0 {
			if irt := snap.Messages[msgID].InReplyTo; irt != "" {
				refs = []string{irt}
			} else {
				continue
			}
		}

		for i := 0; i < len(refs)-1; i++ {
			link(table, refs[i+1], refs[i], stats)
		}
		link(table, msgID, refs[len(refs)-1], stats)
	}
}

// link establishes child→parent, applying the cycle guard (step 3) and the
// reparent tie-break (step 4): keep the existing parent unless the new
// candidate is an ancestor of the old one.
func link(table map[string]*Container, childID, parentID string, stats *BuildStats) {
	if childID == parentID {
		stats.CycleRefusals++
		return
	}
	child, ok := table[childID]
	if !ok {
		return
	}
	parent, ok := table[parentID]
	if !ok {
		return
	}

	if detectCycleInAncestry(table, childID, parentID) {
		stats.CycleRefusals++
		return
	}

	if child.Parent == "" {
		child.Parent = parentID
		parent.AddChild(childID)
		return
	}
	if child.Parent == parentID {
		return
	}

	// Reparent conflict: keep the existing parent unless the new
	// candidate is an ancestor of the old one.
	if detectCycleInAncestry(table, parentID, child.Parent) {
		// parentID is an ancestor of the current parent, so the new
		// candidate wins per the tie-break rule.
		oldParent := table[child.Parent]
		if oldParent != nil {
			oldParent.removeChild(childID)
		}
		child.Parent = parentID
		parent.AddChild(childID)
	}
}

func (c *Container) removeChild(msgID string) {
	out := c.Children[:0]
	for _, id := range c.Children {
		if id != msgID {
			out = append(out, id)
		}
	}
	c.Children = out
}

// collectRoots implements step 5: containers with no parent are roots,
// in deterministic message_id order.
func collectRoots(table map[string]*Container) []string {
	roots := make([]string, 0)
	for id, c := range table {
		if c.Parent == "" {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// promoteRoots implements step 6: a phantom root with exactly one real
// child is discarded in favor of promoting that child to root.
func promoteRoots(table map[string]*Container, roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, rootID := range roots {
		root := table[rootID]
		if root.IsPhantom() && countRealChildren(table, root) == 1 {
			childID := realChild(table, root)
			table[childID].Parent = ""
			delete(table, rootID)
			out = append(out, childID)
			continue
		}
		out = append(out, rootID)
	}
	sort.Strings(out)
	return out
}

func countRealChildren(table map[string]*Container, c *Container) int {
	n := 0
	for _, childID := range c.Children {
		if child, ok := table[childID]; ok && !child.IsPhantom() {
			n++
		}
	}
	return n
}

func realChild(table map[string]*Container, c *Container) string {
	for _, childID := range c.Children {
		if child, ok := table[childID]; ok && !child.IsPhantom() {
			return childID
		}
	}
	return ""
}

// isEmptyPhantomSubtree discards fully empty subtrees: a phantom root
// whose entire subtree contains no real message.
func isEmptyPhantomSubtree(table map[string]*Container, rootID string) bool {
	root, ok := table[rootID]
	if !ok {
		return true
	}
	if !root.IsPhantom() {
		return false
	}
	return countRealDescendants(table, root) == 0
}

func countRealDescendants(table map[string]*Container, c *Container) int {
	n := 0
	for _, childID := range c.Children {
		child, ok := table[childID]
		if !ok {
			continue
		}
		if !child.IsPhantom() {
			n++
		}
		n += countRealDescendants(table, child)
	}
	return n
}

// synthesizeThread implements step 7: DFS to collect (email_id, depth)
// pairs, earliest date as start_date, root's subject, participants,
// has_patches, and series_id inherited from root if present.
func synthesizeThread(table map[string]*Container, snap Snapshot, rootID string) ThreadInfo {
	root := table[rootID]
	info := ThreadInfo{RootMessageID: rootID}

	if rootMsg, ok := snap.Messages[rootID]; ok {
		info.Subject = rootMsg.Subject
		info.SeriesID = rootMsg.SeriesID
	}

	participants := make(map[int64]bool)
	var start, last time.Time
	first := true

	var dfs func(c *Container, depth int)
	dfs = func(c *Container, depth int) {
		if !c.IsPhantom() {
			msg := snap.Messages[c.MessageID]
			info.Members = append(info.Members, MemberDepth{EmailID: *c.EmailID, Depth: depth})
			if first || msg.Date.Before(start) {
				start = msg.Date
			}
			if msg.Date.After(last) {
				last = msg.Date
			}
			first = false
			participants[msg.AuthorID] = true
			for _, recipientAuthorID := range snap.Recipients[c.MessageID] {
				participants[recipientAuthorID] = true
			}
			if msg.PatchType != domain.PatchTypeNone {
				info.HasPatches = true
			}
		}
		children := append([]string(nil), c.Children...) // preserve insertion order
		for _, childID := range children {
			if child, ok := table[childID]; ok {
				dfs(child, depth+1)
			}
		}
	}
	dfs(root, 0)

	info.StartDate = start
	info.LastTS = last
	for id := range participants {
		info.Participants = append(info.Participants, id)
	}
	sort.Slice(info.Participants, func(i, j int) bool { return info.Participants[i] < info.Participants[j] })

	if rootMsg, ok := snap.Messages[rootID]; ok {
		info.StarterID = rootMsg.AuthorID
	} else if len(info.Members) > 0 {
		// phantom root with real children promoted already handles the
		// common case; fall back to the earliest member by depth order.
		if msg, ok := findMessageByEmailID(snap, info.Members[0].EmailID); ok {
			info.StarterID = msg.AuthorID
		}
	}

	return info
}

func findMessageByEmailID(snap Snapshot, emailID int64) (domain.Message, bool) {
	for _, m := range snap.Messages {
		if m.ID == emailID {
			return m, true
		}
	}
	return domain.Message{}, false
}
