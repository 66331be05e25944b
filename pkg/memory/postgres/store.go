package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/saathi/pkg/memory"
)

var (
	_ memory.MessageStore = (*Store)(nil)
	_ memory.Pinger       = (*Store)(nil)
)

// Store is a PostgreSQL-backed message log. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping implements [memory.Pinger].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements [memory.MessageStore].
func (s *Store) Append(ctx context.Context, r memory.Record) (memory.Record, error) {
	if err := r.Validate(); err != nil {
		return memory.Record{}, err
	}
	r.ID = uuid.NewString()
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	// Postgres stores microseconds; round so the returned record matches a
	// later List.
	r.Timestamp = r.Timestamp.UTC().Round(time.Microsecond)

	const q = `
		INSERT INTO messages (id, session_id, speaker, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, q, r.ID, r.Session, r.User, r.Text, r.Timestamp); err != nil {
		return memory.Record{}, fmt.Errorf("postgres store: append: %w", err)
	}
	return r, nil
}

// List implements [memory.MessageStore].
func (s *Store) List(ctx context.Context, opts ...memory.ListOpt) ([]memory.Record, error) {
	p := memory.ApplyListOpts(opts)

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, session_id, speaker, text, timestamp FROM messages`)
	if p.Session != "" {
		b.WriteString(" WHERE session_id = " + next(p.Session))
	}
	b.WriteString(" ORDER BY timestamp DESC, id")
	if p.Limit > 0 {
		b.WriteString(" LIMIT " + next(p.Limit))
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]memory.Record, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Record, error) {
		var r memory.Record
		if err := row.Scan(&r.ID, &r.Session, &r.User, &r.Text, &r.Timestamp); err != nil {
			return memory.Record{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if records == nil {
		records = []memory.Record{}
	}
	return records, nil
}
