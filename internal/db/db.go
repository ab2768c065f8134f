package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS staff (
            id BIGSERIAL PRIMARY KEY,
            role TEXT NOT NULL CHECK (role IN ('coordinator', 'counterpart')),
            display_name TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS staff_tokens (
            token TEXT PRIMARY KEY,
            staff_id BIGINT NOT NULL REFERENCES staff(id) ON DELETE CASCADE,
            revoked BOOLEAN DEFAULT FALSE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS threads (
            coordinator_id BIGINT NOT NULL REFERENCES staff(id),
            counterpart_id BIGINT NOT NULL REFERENCES staff(id),
            created_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (coordinator_id, counterpart_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            coordinator_id BIGINT NOT NULL,
            counterpart_id BIGINT NOT NULL,
            sender_role TEXT NOT NULL,
            sender_id BIGINT NOT NULL REFERENCES staff(id),
            text TEXT NOT NULL,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            read_at TIMESTAMPTZ,
            FOREIGN KEY (coordinator_id, counterpart_id) REFERENCES threads(coordinator_id, counterpart_id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS messages_pair_created_idx ON messages (coordinator_id, counterpart_id, created_at, id);`,
		`CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (coordinator_id, counterpart_id, sender_role) WHERE read_at IS NULL;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	slog.Info("database migrations applied", "count", len(migrations))
	return nil
}
