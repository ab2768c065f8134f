package models

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyText is returned when a message body is empty after trimming.
var ErrEmptyText = errors.New("message text is empty")

// Message is a single chat message. ID is assigned by the store.
type Message struct {
	ID            int64     `db:"id" json:"id"`
	CoordinatorID int64     `db:"coordinator_id" json:"coordinator_id"`
	CounterpartID int64     `db:"counterpart_id" json:"counterpart_id"`
	SenderRole    Role      `db:"sender_role" json:"sender_role"`
	SenderID      int64     `db:"sender_id" json:"sender_id"`
	SenderName    string    `db:"sender_name" json:"sender_name,omitempty"`
	Text          string    `db:"text" json:"text"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ThreadIDFor returns the thread the message belongs to from the viewer's side.
func (m Message) ThreadIDFor(viewer Identity) ThreadID {
	if viewer.Role == RoleCoordinator {
		return ThreadID(m.CounterpartID)
	}
	return ThreadID(m.CoordinatorID)
}

// PairKey returns the room key of the message's thread.
func (m Message) PairKey() string {
	return PairKey(m.CoordinatorID, m.CounterpartID)
}

// Snapshot returns the list preview for the message.
func (m Message) Snapshot() *Snapshot {
	return &Snapshot{Text: m.Text, CreatedAt: m.CreatedAt, SenderRole: m.SenderRole}
}

// SendPayload is what a client submits to create a message.
type SendPayload struct {
	PeerID ThreadID `json:"peer_id"`
	Text   string   `json:"text"`
}

// ValidateText trims text and rejects empty bodies.
func ValidateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText
	}
	return trimmed, nil
}
