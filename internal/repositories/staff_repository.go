package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"staffchat/internal/models"
)

var ErrStaffNotFound = errors.New("staff member not found")

// StaffRepository resolves staff identities.
type StaffRepository interface {
	GetByToken(ctx context.Context, token string) (models.Identity, error)
	Get(ctx context.Context, id int64) (models.Identity, error)
}

// StaffRepo is a sqlx-backed StaffRepository.
type StaffRepo struct {
	db *sqlx.DB
}

// NewStaffRepo constructs a StaffRepo.
func NewStaffRepo(db *sqlx.DB) *StaffRepo {
	return &StaffRepo{db: db}
}

// GetByToken returns the identity owning a non-revoked bearer token.
func (r *StaffRepo) GetByToken(ctx context.Context, token string) (models.Identity, error) {
	var who models.Identity
	err := r.db.GetContext(ctx, &who, `SELECT s.id, s.role, s.display_name
        FROM staff_tokens t
        JOIN staff s ON s.id = t.staff_id
        WHERE t.token = $1 AND t.revoked = FALSE`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrStaffNotFound
	}
	if err != nil {
		return models.Identity{}, err
	}
	who.Authenticated = true
	return who, nil
}

// Get fetches a staff member by id.
func (r *StaffRepo) Get(ctx context.Context, id int64) (models.Identity, error) {
	var who models.Identity
	err := r.db.GetContext(ctx, &who, `SELECT id, role, display_name FROM staff WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, ErrStaffNotFound
	}
	return who, err
}
