package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS processing_claims (
		link       TEXT PRIMARY KEY,
		claimed_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_claims_expires ON processing_claims (expires_at)`,
	`CREATE TABLE IF NOT EXISTS duplicate_index (
		fingerprint TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		summary     TEXT NOT NULL,
		tokens      TEXT NOT NULL,
		added_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_duplicate_added ON duplicate_index (added_at)`,
	`CREATE TABLE IF NOT EXISTS published_articles (
		id           TEXT PRIMARY KEY,
		source_link  TEXT NOT NULL,
		title        TEXT NOT NULL,
		summary      TEXT NOT NULL,
		url          TEXT NOT NULL,
		cover_image  TEXT NOT NULL,
		published_at INTEGER NOT NULL,
		run_id       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_published_at ON published_articles (published_at)`,
}

// Open initializes or connects to the SQLite database at path and applies
// the schema. Parent directories are created as needed.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	pragmas := url.Values{}
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "synchronous(NORMAL)")

	db, err := sql.Open("sqlite", "file:"+path+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if err := ExecWithRetry(ctx, db, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

// ExecWithRetry executes a statement, retrying while SQLite reports busy.
func ExecWithRetry(ctx context.Context, db *sql.DB, query string, args ...any) error {
	_, err := ExecResultWithRetry(ctx, db, query, args...)
	return err
}

// ExecResultWithRetry is ExecWithRetry returning the sql.Result.
func ExecResultWithRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op with bounded exponential backoff while SQLite reports
// busy. Any other error stops immediately.
func retryOnBusy(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = busyRetryInitialBackoff
	policy.MaxInterval = busyRetryMaxBackoff

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, busyRetryAttempts-1), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isSQLiteBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, retry)
}
