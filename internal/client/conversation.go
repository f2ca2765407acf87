package client

import (
	"sort"
	"sync"
	"time"

	"github.com/teris-io/shortid"
	"github.com/tutorlink/chat-service/internal/types"
)

const (
	// pendingPrefix marks locally fabricated ids; store-assigned ids
	// are numeric, so the two can never collide.
	pendingPrefix = "pending-"

	// dupWindow bounds the clock gap between an optimistic entry and
	// its server-confirmed copy: network latency plus modest skew
	// between the client and server clocks.
	dupWindow = 2 * time.Second
)

// Entry is one reconciled message. PendingId is set while the entry is
// an unconfirmed optimistic placeholder.
type Entry struct {
	types.Message
	PendingId string `json:"pending_id,omitempty"`
}

func (e Entry) Pending() bool {
	return e.PendingId != ""
}

// Conversation is the client-side log of one two-party conversation:
// a single ordered, deduplicated list merging fetched history, live
// broadcasts and optimistic placeholders.
type Conversation struct {
	mu      sync.Mutex
	selfId  int
	otherId int
	entries []Entry
}

func NewConversation(selfId, otherId int) *Conversation {
	return &Conversation{
		selfId:  selfId,
		otherId: otherId,
	}
}

// AddPending inserts an optimistic placeholder for a just-sent message
// and returns its pending id.
func (c *Conversation) AddPending(content string) (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", err
	}

	pendingId := pendingPrefix + sid
	entry := Entry{
		Message: types.Message{
			Sender:    types.UserRef{Id: c.selfId},
			Receiver:  types.UserRef{Id: c.otherId},
			Content:   content,
			Timestamp: time.Now().UTC(),
		},
		PendingId: pendingId,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insert(entry)

	return pendingId, nil
}

// Confirm replaces the placeholder with the stored copy in place,
// preserving its list position. It reports whether the placeholder was
// found; when it was not, the confirmed copy is merged normally.
func (c *Conversation) Confirm(pendingId string, msg types.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].PendingId == pendingId {
			c.entries[i] = Entry{Message: msg}
			return true
		}
	}

	c.merge(msg)
	return false
}

// Fail drops a placeholder whose send was rejected.
func (c *Conversation) Fail(pendingId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].PendingId == pendingId {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}

	return false
}

// Merge folds one incoming message into the log. Duplicates are
// detected by store id, or by identical sender and content with
// timestamps inside the tolerance window; the latter catches the
// optimistic/confirmed pair, which differ in id and by network latency.
func (c *Conversation) Merge(msg types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merge(msg)
}

// LoadHistory merges a fetched history batch. Synthetic unpersisted
// entries (id zero, e.g. the welcome message) are merged like any
// other; they dedup by content and time on refetch.
func (c *Conversation) LoadHistory(msgs []types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.merge(m)
	}
}

func (c *Conversation) merge(msg types.Message) {
	for i := range c.entries {
		e := &c.entries[i]

		if msg.Id != 0 && e.Id == msg.Id {
			e.Read = e.Read || msg.Read
			return
		}

		if e.Sender.Id == msg.Sender.Id && e.Content == msg.Content &&
			withinWindow(e.Timestamp, msg.Timestamp) {
			if e.Pending() && msg.Id != 0 {
				// in-place replacement avoids a visible jump
				c.entries[i] = Entry{Message: msg}
			}
			return
		}
	}

	c.insert(Entry{Message: msg})
}

// MarkRead applies a read-receipt batch: by read everything forId had
// sent them. Matching is by identity pair, not individual ids, and a
// receipt with nothing to match is a no-op.
func (c *Conversation) MarkRead(by, forId int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	for i := range c.entries {
		e := &c.entries[i]
		if e.Sender.Id == forId && e.Receiver.Id == by && !e.Read {
			e.Read = true
			count++
		}
	}

	return count
}

// Entries returns a copy of the reconciled log in timestamp order.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// PendingCount reports how many placeholders are still unresolved.
func (c *Conversation) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	for _, e := range c.entries {
		if e.Pending() {
			count++
		}
	}
	return count
}

func (c *Conversation) insert(e Entry) {
	i := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Timestamp.After(e.Timestamp)
	})
	c.entries = append(c.entries, Entry{})
	copy(c.entries[i+1:], c.entries[i:])
	c.entries[i] = e
}

func withinWindow(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= dupWindow
}
