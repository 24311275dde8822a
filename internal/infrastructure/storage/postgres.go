package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists pipeline items and their enrichment failure counters.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.ItemStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			identity     TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			title        TEXT NOT NULL,
			summary      TEXT NOT NULL DEFAULT '',
			abstract     TEXT NOT NULL DEFAULT '',
			link         TEXT NOT NULL,
			authors      TEXT[] NOT NULL DEFAULT '{}',
			published_at TIMESTAMPTZ,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS items_created_at_idx ON items (created_at)`,
		`CREATE TABLE IF NOT EXISTS enrich_failures (
			identity        TEXT PRIMARY KEY,
			attempts        INT NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Exists answers seen-set membership for an identity.
func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Select("1").
		From("items").
		Where(sq.Eq{"identity": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// Save inserts the item keyed by identity; a second save of the same identity
// is a no-op.
func (s *PostgresStore) Save(ctx context.Context, item domain.Item) error {
	query, args, err := psql.Insert("items").
		Columns("identity", "kind", "title", "summary", "abstract", "link",
			"authors", "published_at", "status", "created_at").
		Values(item.ID, string(item.Kind), item.Title, item.Summary, item.Abstract,
			item.Link, pq.Array(item.Authors), nullTime(item.PublishedAt),
			string(item.Status), item.CreatedAt).
		Suffix("ON CONFLICT (identity) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// Prune deletes items strictly older than now minus olderThan and returns the
// number of rows removed. The predicate works on created_at only, so it is
// safe to run concurrently with saves.
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	query, args, err := psql.Delete("items").
		Where(sq.Lt{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete old items: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

// RecordEnrichFailure bumps the per-identity failure counter and returns the
// new total.
func (s *PostgresStore) RecordEnrichFailure(ctx context.Context, id string) (int, error) {
	query, args, err := psql.Insert("enrich_failures").
		Columns("identity", "attempts", "last_attempt_at").
		Values(id, 1, time.Now().UTC()).
		Suffix(`ON CONFLICT (identity) DO UPDATE
			SET attempts = enrich_failures.attempts + 1,
			    last_attempt_at = EXCLUDED.last_attempt_at
			RETURNING attempts`).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build failure query: %w", err)
	}

	var attempts int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("record failure: %w", err)
	}
	return attempts, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
