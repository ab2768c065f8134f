package models

import "time"

// Snapshot summarises the most recent message of a thread for list previews.
type Snapshot struct {
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	SenderRole Role      `json:"sender_role"`
}

// Thread is a conversation between one coordinator and one counterpart, as
// seen by one of them.
type Thread struct {
	ID          ThreadID  `json:"id"`
	Peer        Identity  `json:"peer"`
	LastMessage *Snapshot `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
}

// ThreadRow is a stored thread joined with its latest message and the unread
// count for a given viewer.
type ThreadRow struct {
	CoordinatorID   int64      `db:"coordinator_id"`
	CounterpartID   int64      `db:"counterpart_id"`
	PeerName        string     `db:"peer_name"`
	LastText        *string    `db:"last_text"`
	LastSenderRole  *Role      `db:"last_sender_role"`
	LastCreatedAt   *time.Time `db:"last_created_at"`
	UnreadCount     int        `db:"unread_count"`
	ThreadCreatedAt time.Time  `db:"created_at"`
}

// ThreadFor converts a stored row into the viewer's Thread.
func (r ThreadRow) ThreadFor(viewer Identity) Thread {
	peerID := r.CounterpartID
	if viewer.Role == RoleCounterpart {
		peerID = r.CoordinatorID
	}
	t := Thread{
		ID:          ThreadID(peerID),
		Peer:        Identity{ID: peerID, Role: viewer.Role.Other(), DisplayName: r.PeerName},
		UnreadCount: r.UnreadCount,
	}
	if r.LastText != nil && r.LastCreatedAt != nil {
		snap := &Snapshot{Text: *r.LastText, CreatedAt: *r.LastCreatedAt}
		if r.LastSenderRole != nil {
			snap.SenderRole = *r.LastSenderRole
		}
		t.LastMessage = snap
	}
	return t
}
