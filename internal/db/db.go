package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the postgres pool and applies the schema.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            external_uid VARCHAR(128) NOT NULL UNIQUE,
            email VARCHAR(255) NOT NULL DEFAULT '',
            display_name VARCHAR(100),
            public_key TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS groups (
            id SERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            creator_id INT NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS group_members (
            group_id INT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(group_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_id INT NOT NULL REFERENCES users(id),
            receiver_id INT REFERENCES users(id),
            group_id INT REFERENCES groups(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            media_url VARCHAR(255),
            media_type VARCHAR(20) CHECK (media_type IN ('image', 'video')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK ((receiver_id IS NULL) <> (group_id IS NULL))
        );`,
	`CREATE INDEX IF NOT EXISTS messages_sender_receiver_idx ON messages (sender_id, receiver_id, created_at DESC) WHERE group_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS messages_receiver_sender_idx ON messages (receiver_id, sender_id, created_at DESC) WHERE group_id IS NULL;`,
	`CREATE INDEX IF NOT EXISTS messages_group_idx ON messages (group_id, created_at DESC) WHERE group_id IS NOT NULL;`,
	`CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id);`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
