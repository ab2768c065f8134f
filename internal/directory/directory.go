// Package directory holds the conversations visible to the current identity.
package directory

import (
	"errors"

	"staffchat/internal/models"
)

var ErrThreadNotFound = errors.New("thread not found")

// Directory is the authoritative thread list for one viewer. It tracks the
// selected thread and keeps that thread's unread count at zero.
//
// Directory is not safe for concurrent use; it is owned by the sync controller.
type Directory struct {
	viewer  models.Role
	threads []models.Thread
	index   map[models.ThreadID]int
	active  models.ThreadID
}

// New returns an empty directory for a viewer with the given role.
func New(viewer models.Role) *Directory {
	return &Directory{viewer: viewer, index: map[models.ThreadID]int{}}
}

// Hydrate replaces the full thread set. The current selection survives when
// the thread is still present; otherwise the first thread is selected, or
// none when the set is empty. Duplicate ids keep their first occurrence.
// It returns the active thread and whether the selection changed.
func (d *Directory) Hydrate(threads []models.Thread) (models.ThreadID, bool) {
	prev := d.active

	d.threads = make([]models.Thread, 0, len(threads))
	d.index = make(map[models.ThreadID]int, len(threads))
	for _, t := range threads {
		if t.ID == 0 {
			continue
		}
		if _, dup := d.index[t.ID]; dup {
			continue
		}
		if t.UnreadCount < 0 {
			t.UnreadCount = 0
		}
		d.index[t.ID] = len(d.threads)
		d.threads = append(d.threads, t)
	}

	switch {
	case prev != 0 && d.has(prev):
		d.active = prev
	case len(d.threads) > 0:
		d.active = d.threads[0].ID
	default:
		d.active = 0
	}
	if d.active != 0 {
		d.threads[d.index[d.active]].UnreadCount = 0
	}
	return d.active, d.active != prev
}

// ApplyIncoming records msg against its thread: the snapshot is updated and,
// for a background thread, messages from the other role bump the unread
// count. It returns false when the thread is unknown; the caller is expected
// to refresh the directory rather than invent a thread.
func (d *Directory) ApplyIncoming(threadID models.ThreadID, msg models.Message, isActive bool) bool {
	i, ok := d.index[threadID]
	if !ok {
		return false
	}
	t := &d.threads[i]
	if t.LastMessage == nil || !msg.CreatedAt.Before(t.LastMessage.CreatedAt) {
		t.LastMessage = msg.Snapshot()
	}
	if isActive || threadID == d.active {
		t.UnreadCount = 0
		return true
	}
	if msg.SenderRole != d.viewer {
		t.UnreadCount++
	}
	return true
}

// Select makes threadID active and clears its unread count.
func (d *Directory) Select(threadID models.ThreadID) error {
	i, ok := d.index[threadID]
	if !ok {
		return ErrThreadNotFound
	}
	d.active = threadID
	d.threads[i].UnreadCount = 0
	return nil
}

// Active returns the selected thread id, zero when none.
func (d *Directory) Active() models.ThreadID {
	return d.active
}

// Get returns a copy of one thread.
func (d *Directory) Get(threadID models.ThreadID) (models.Thread, bool) {
	i, ok := d.index[threadID]
	if !ok {
		return models.Thread{}, false
	}
	return d.threads[i], true
}

// Threads returns a copy of all threads in directory order.
func (d *Directory) Threads() []models.Thread {
	out := make([]models.Thread, len(d.threads))
	copy(out, d.threads)
	return out
}

// Len returns the number of threads.
func (d *Directory) Len() int {
	return len(d.threads)
}

// TotalUnread sums unread counts across all threads.
func (d *Directory) TotalUnread() int {
	total := 0
	for _, t := range d.threads {
		total += t.UnreadCount
	}
	return total
}

func (d *Directory) has(threadID models.ThreadID) bool {
	_, ok := d.index[threadID]
	return ok
}
