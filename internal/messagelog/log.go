// Package messagelog keeps the ordered, deduplicated history of the active
// thread.
package messagelog

import (
	"sort"

	"staffchat/internal/models"
)

// Log holds the messages of a single thread, sorted by CreatedAt with ties
// kept in arrival order. The zero ThreadID means no thread is loaded.
//
// Log is not safe for concurrent use; it is owned by the sync controller.
type Log struct {
	threadID models.ThreadID
	entries  []models.Message
	ids      map[int64]struct{}
	// live holds ids appended since the last Reset or Hydrate. They survive
	// a hydration that was fetched before they arrived.
	live     map[int64]struct{}
	hydrated bool
}

// New returns an empty log.
func New() *Log {
	return &Log{ids: map[int64]struct{}{}, live: map[int64]struct{}{}}
}

// ThreadID returns the thread the log currently holds.
func (l *Log) ThreadID() models.ThreadID {
	return l.threadID
}

// Hydrated reports whether the current thread has been loaded from the store.
func (l *Log) Hydrated() bool {
	return l.hydrated
}

// Reset empties the log and points it at threadID.
func (l *Log) Reset(threadID models.ThreadID) {
	l.threadID = threadID
	l.entries = nil
	l.ids = map[int64]struct{}{}
	l.live = map[int64]struct{}{}
	l.hydrated = false
}

// Hydrate replaces the log with messages fetched for threadID. It commits only
// when threadID is still the active thread; a late response for a thread the
// viewer has left is discarded and false is returned.
func (l *Log) Hydrate(threadID, active models.ThreadID, messages []models.Message) bool {
	if threadID == 0 || threadID != active {
		return false
	}

	var carried []models.Message
	if l.threadID == threadID {
		for _, m := range l.entries {
			if _, ok := l.live[m.ID]; ok {
				carried = append(carried, m)
			}
		}
	}

	l.Reset(threadID)
	for _, m := range messages {
		l.insert(m)
	}
	for _, m := range carried {
		l.insert(m)
	}
	l.hydrated = true
	return true
}

// Append adds msg when it belongs to the loaded thread and its id is not
// already present. It reports whether the message was inserted.
func (l *Log) Append(threadID models.ThreadID, msg models.Message) bool {
	if threadID == 0 || threadID != l.threadID {
		return false
	}
	if !l.insert(msg) {
		return false
	}
	l.live[msg.ID] = struct{}{}
	return true
}

// Len returns the number of messages.
func (l *Log) Len() int {
	return len(l.entries)
}

// Messages returns a copy of the log in ascending CreatedAt order.
func (l *Log) Messages() []models.Message {
	out := make([]models.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) insert(msg models.Message) bool {
	if _, dup := l.ids[msg.ID]; dup {
		return false
	}
	// first entry strictly newer than msg; equal timestamps keep arrival order
	idx := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].CreatedAt.After(msg.CreatedAt)
	})
	l.entries = append(l.entries, models.Message{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = msg
	l.ids[msg.ID] = struct{}{}
	return true
}
