package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/infrastructure/storage"
)

// SQLite stores claims in the processing_claims table. The conditional
// upsert makes Claim atomic across processes sharing the database file.
type SQLite struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// NewSQLite wires a database opened with storage.Open.
func NewSQLite(db *sql.DB, retention time.Duration) *SQLite {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLite{db: db, retention: retention, now: time.Now}
}

func (s *SQLite) Claim(ctx context.Context, link string) (bool, error) {
	key := strings.TrimSpace(link)
	if key == "" {
		return false, ErrEmptyLink
	}

	now := s.now().UTC()
	nowMillis := now.UnixMilli()
	expires := now.Add(s.retention).UnixMilli()

	query, args, err := sq.Insert("processing_claims").
		Columns("link", "claimed_at", "expires_at").
		Values(key, nowMillis, expires).
		Suffix(`ON CONFLICT (link) DO UPDATE SET
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at
			WHERE processing_claims.expires_at <= ?`, nowMillis).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim: %w", err)
	}

	res, err := storage.ExecResultWithRetry(ctx, s.db, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected == 1, nil
}

// Purge deletes expired claims and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	query, args, err := sq.Delete("processing_claims").
		Where(sq.LtOrEq{"expires_at": s.now().UTC().UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}
	res, err := storage.ExecResultWithRetry(ctx, s.db, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge claims: %w", err)
	}
	return res.RowsAffected()
}
