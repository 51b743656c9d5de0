// Package dedup tracks which notification ids have already been surfaced
// during this process's lifetime.
package dedup

import (
	"sync"

	"ghnotifyd/internal/github"
)

// Tracker answers "is this item new?". It holds no durable state: after a
// restart every currently-unread item counts as new again, which the remote
// read/unread state keeps bounded to a single re-notification burst.
//
// Safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// FilterNew returns, in input order, the items whose id has not been seen,
// marking each returned id seen immediately. A repeated id within one input
// list therefore yields a single output, and feeding the same list twice
// yields nothing the second time.
func (t *Tracker) FilterNew(items []github.Notification) []github.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []github.Notification
	for _, it := range items {
		if _, ok := t.seen[it.ID]; ok {
			continue
		}
		t.seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// MarkSeen records an id without surfacing it.
func (t *Tracker) MarkSeen(id string) {
	t.mu.Lock()
	t.seen[id] = struct{}{}
	t.mu.Unlock()
}

// Seen reports whether an id has been recorded.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	_, ok := t.seen[id]
	t.mu.Unlock()
	return ok
}

// Sync evicts every recorded id not present in unread, bounding the set by
// the feed's own unread count. The remote service is the source of truth for
// read state: once an item stops being reported unread it can never be
// surfaced again, so remembering it is pointless.
//
// Call only with a complete feed listing; a conditional "no changes" response
// must not trigger a sync.
func (t *Tracker) Sync(unread []github.Notification) {
	keep := make(map[string]struct{}, len(unread))
	for _, it := range unread {
		keep[it.ID] = struct{}{}
	}

	t.mu.Lock()
	for id := range t.seen {
		if _, ok := keep[id]; !ok {
			delete(t.seen, id)
		}
	}
	t.mu.Unlock()
}

// Len returns the current size of the seen set.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
