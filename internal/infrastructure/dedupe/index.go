package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/infrastructure/storage"
)

const (
	defaultThreshold = 0.6
	defaultWindow    = 500
)

// FingerprintIndex is a local duplicate detector backed by the
// duplicate_index table. Exists matches an identical fingerprint or a
// token-set similarity at or above the threshold among the newest entries.
type FingerprintIndex struct {
	db        *sql.DB
	threshold float64
	window    int
	now       func() time.Time
}

// NewFingerprintIndex wires a database opened with storage.Open.
func NewFingerprintIndex(db *sql.DB, threshold float64, window int) *FingerprintIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &FingerprintIndex{db: db, threshold: threshold, window: window, now: time.Now}
}

func (f *FingerprintIndex) Exists(ctx context.Context, title, summary string) (bool, error) {
	tokens := Tokens(title, summary)
	if len(tokens) == 0 {
		return false, nil
	}
	fingerprint := Fingerprint(title, summary)

	query, args, err := sq.Select("fingerprint", "tokens").
		From("duplicate_index").
		OrderBy("added_at DESC").
		Limit(uint64(f.window)).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select: %w", err)
	}

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("query duplicate index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stored, joined string
		if err := rows.Scan(&stored, &joined); err != nil {
			return false, fmt.Errorf("scan duplicate index: %w", err)
		}
		if stored == fingerprint {
			return true, nil
		}
		if Similarity(tokens, strings.Fields(joined)) >= f.threshold {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("rows iteration: %w", err)
	}
	return false, nil
}

// Add records the pair. Adding the same pair twice is a no-op.
func (f *FingerprintIndex) Add(ctx context.Context, title, summary string) error {
	tokens := Tokens(title, summary)
	query, args, err := sq.Insert("duplicate_index").
		Columns("fingerprint", "title", "summary", "tokens", "added_at").
		Values(Fingerprint(title, summary), title, summary, strings.Join(tokens, " "), f.now().UTC().UnixMilli()).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if err := storage.ExecWithRetry(ctx, f.db, query, args...); err != nil {
		return fmt.Errorf("add duplicate entry: %w", err)
	}
	return nil
}
