// Package postgres provides a PostgreSQL-backed [memory.MessageStore].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	rec, _ := store.Append(ctx, memory.Record{User: "User", Text: "namaste"})
//	recent, _ := store.List(ctx, memory.WithLimit(20))
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id          TEXT         PRIMARY KEY,
    session_id  TEXT         NOT NULL DEFAULT '',
    speaker     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_timestamp
    ON messages (timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_messages_session_timestamp
    ON messages (session_id, timestamp DESC);
`

// Migrate creates the messages table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlMessages} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
