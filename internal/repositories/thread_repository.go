package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"staffchat/internal/models"
)

// ThreadRepository lists threads with their latest message and unread count.
type ThreadRepository interface {
	ListForViewer(ctx context.Context, viewer models.Identity) ([]models.Thread, error)
}

// ThreadRepo is a sqlx implementation of ThreadRepository.
type ThreadRepo struct {
	db *sqlx.DB
}

// NewThreadRepo constructs a ThreadRepo.
func NewThreadRepo(db *sqlx.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// ListForViewer returns the viewer's threads, most recently active first.
// Unread counts only include messages sent by the other role.
func (r *ThreadRepo) ListForViewer(ctx context.Context, viewer models.Identity) ([]models.Thread, error) {
	selfCol, peerCol := "t.coordinator_id", "t.counterpart_id"
	if viewer.Role == models.RoleCounterpart {
		selfCol, peerCol = peerCol, selfCol
	}

	query := fmt.Sprintf(`SELECT t.coordinator_id, t.counterpart_id, t.created_at,
            p.display_name AS peer_name,
            lm.text AS last_text,
            lm.sender_role AS last_sender_role,
            lm.created_at AS last_created_at,
            (SELECT COUNT(*) FROM messages u
                WHERE u.coordinator_id = t.coordinator_id
                AND u.counterpart_id = t.counterpart_id
                AND u.sender_role <> $2
                AND u.read_at IS NULL) AS unread_count
        FROM threads t
        JOIN staff p ON p.id = %s
        LEFT JOIN LATERAL (
            SELECT m.text, m.sender_role, m.created_at FROM messages m
            WHERE m.coordinator_id = t.coordinator_id AND m.counterpart_id = t.counterpart_id
            ORDER BY m.created_at DESC, m.id DESC
            LIMIT 1
        ) lm ON TRUE
        WHERE %s = $1
        ORDER BY COALESCE(lm.created_at, t.created_at) DESC`, peerCol, selfCol)

	var rows []models.ThreadRow
	if err := r.db.SelectContext(ctx, &rows, query, viewer.ID, viewer.Role); err != nil {
		return nil, err
	}

	threads := make([]models.Thread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, row.ThreadFor(viewer))
	}
	return threads, nil
}
