// Package threading implements the JWZ-style conversation forest over a
// ThreadingCache snapshot: container table construction, cycle-safe
// reference linking, root promotion, and thread synthesis.
package threading

import (
	"sort"
	"sync"

	"github.com/tansanrao/nexus/core/domain"
)

// Cache holds the minimum facts ThreadBuilder needs for an entire
// mailing list without touching the store: single-writer/multi-reader,
// snapshots immutable for the builder's lifetime.
//
// order tracks arrival order: the sequence in which messages were most
// recently (re-)merged into the cache. Re-merging an existing message_id
// moves it to the end, since a later correction to its references should
// be linked after whatever chain already formed from earlier arrivals —
// this is what ThreadBuilder's link ordering relies on.
type Cache struct {
	mu sync.RWMutex

	messages   map[string]domain.Message // by message_id
	references map[string][]string       // message_id -> referenced message_ids, position-ordered
	recipients map[string][]int64        // message_id -> recipient author ids
	order      []string
	position   map[string]int // message_id -> index into order, so move-to-end finds an id without scanning order
}

// New returns an empty Cache for one mailing list.
func New() *Cache {
	return &Cache{
		messages:   make(map[string]domain.Message),
		references: make(map[string][]string),
		recipients: make(map[string][]int64),
		position:   make(map[string]int),
	}
}

// Load bulk-loads every message and its references for the list, replacing
// the cache's messages, references and order; recipients merged earlier are
// kept. Used at process start / worker pickup. Order is
// taken from the iteration of messages as given (callers should pass
// messages sorted by (epoch, date) for a meaningful initial ordering).
func (c *Cache) Load(messages []domain.Message, references map[string][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string]domain.Message, len(messages))
	c.order = nil
	c.position = make(map[string]int, len(messages))
	for _, m := range messages {
		c.messages[m.MessageID] = m
		c.touch(m.MessageID)
	}
	c.references = references
	if c.references == nil {
		c.references = make(map[string][]string)
	}
}

// touch moves msgID to the end of the order slice, assuming mu is held.
func (c *Cache) touch(msgID string) {
	if idx, ok := c.position[msgID]; ok {
		c.order = append(c.order[:idx], c.order[idx+1:]...)
		for id, pos := range c.position {
			if pos > idx {
				c.position[id] = pos - 1
			}
		}
	}
	c.position[msgID] = len(c.order)
	c.order = append(c.order, msgID)
}

// Merge inserts a chunk's messages/references atomically with respect to
// readers. Safe to call concurrently with Snapshot (single writer assumed,
// enforced by the importer serializing chunk commits per list).
func (c *Cache) Merge(messages []domain.Message, references map[string][]string, recipients map[string][]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range messages {
		c.messages[m.MessageID] = m
		c.touch(m.MessageID)
	}
	for msgID, refs := range references {
		c.references[msgID] = refs
	}
	for msgID, rs := range recipients {
		c.recipients[msgID] = rs
	}
}

// Snapshot returns a point-in-time immutable view for ThreadBuilder. The
// copy is shallow-safe: slices and maps are fresh so later Merge calls
// cannot mutate a snapshot already handed to a builder.
type Snapshot struct {
	Messages   map[string]domain.Message
	References map[string][]string
	Recipients map[string][]int64
	Order      []string // arrival order, oldest first; re-merged ids move to the end
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	messages := make(map[string]domain.Message, len(c.messages))
	for k, v := range c.messages {
		messages[k] = v
	}
	references := make(map[string][]string, len(c.references))
	for k, v := range c.references {
		cp := make([]string, len(v))
		copy(cp, v)
		references[k] = cp
	}
	recipients := make(map[string][]int64, len(c.recipients))
	for k, v := range c.recipients {
		cp := make([]int64, len(v))
		copy(cp, v)
		recipients[k] = cp
	}
	order := make([]string, len(c.order))
	copy(order, c.order)
	return Snapshot{Messages: messages, References: references, Recipients: recipients, Order: order}
}

// MessageIDsSorted returns every message_id known to the snapshot in
// deterministic (lexicographic) order, useful for deterministic output
// ordering (e.g. the list of synthesized threads).
func (s Snapshot) MessageIDsSorted() []string {
	ids := make([]string, 0, len(s.Messages))
	for id := range s.Messages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
