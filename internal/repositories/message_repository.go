package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"staffchat/internal/models"
)

// MessageRepository stores and reads thread messages.
type MessageRepository interface {
	Create(ctx context.Context, sender models.Identity, peerID int64, text string) (models.Message, error)
	ListByPair(ctx context.Context, coordinatorID, counterpartID int64) ([]models.Message, error)
	MarkRead(ctx context.Context, reader models.Identity, peerID int64) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Pair orders a viewer and a peer as (coordinator, counterpart).
func Pair(viewer models.Identity, peerID int64) (int64, int64) {
	if viewer.Role == models.RoleCoordinator {
		return viewer.ID, peerID
	}
	return peerID, viewer.ID
}

// Create stores a message, creating the thread on first contact.
func (r *MessageRepo) Create(ctx context.Context, sender models.Identity, peerID int64, text string) (models.Message, error) {
	coordinatorID, counterpartID := Pair(sender, peerID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO threads (coordinator_id, counterpart_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, coordinatorID, counterpartID); err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (coordinator_id, counterpart_id, sender_role, sender_id, text)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, coordinator_id, counterpart_id, sender_role, sender_id, text, created_at`,
		coordinatorID, counterpartID, sender.Role, sender.ID, text).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.SenderName = sender.DisplayName
	return msg, nil
}

// ListByPair returns the thread's messages in ascending order.
func (r *MessageRepo) ListByPair(ctx context.Context, coordinatorID, counterpartID int64) ([]models.Message, error) {
	query := `SELECT m.id, m.coordinator_id, m.counterpart_id, m.sender_role, m.sender_id, s.display_name AS sender_name, m.text, m.created_at
        FROM messages m
        JOIN staff s ON s.id = m.sender_id
        WHERE m.coordinator_id=$1 AND m.counterpart_id=$2
        ORDER BY m.created_at ASC, m.id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, coordinatorID, counterpartID)
	return msgs, err
}

// MarkRead marks every unread message the peer sent to reader as read and
// returns how many were updated.
func (r *MessageRepo) MarkRead(ctx context.Context, reader models.Identity, peerID int64) (int64, error) {
	coordinatorID, counterpartID := Pair(reader, peerID)
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read_at = NOW()
        WHERE coordinator_id=$1 AND counterpart_id=$2 AND sender_role <> $3 AND read_at IS NULL`,
		coordinatorID, counterpartID, reader.Role)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
