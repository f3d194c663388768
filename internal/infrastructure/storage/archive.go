package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/domain"
)

// ArchivedArticle is one row of the local publish history.
type ArchivedArticle struct {
	Article domain.PublishedArticle
	RunID   string
}

// Archive keeps a local audit trail of published articles.
type Archive struct {
	db *sql.DB
}

// NewArchive wires a sql.DB opened with Open.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// SavePublished upserts the published article snapshot.
func (a *Archive) SavePublished(ctx context.Context, runID string, article domain.PublishedArticle) error {
	if a.db == nil {
		return nil
	}

	query, args, err := sq.Insert("published_articles").
		Columns("id", "source_link", "title", "summary", "url", "cover_image", "published_at", "run_id").
		Values(article.ID, article.SourceLink, article.Title, article.Summary, article.URL,
			article.CoverImage, article.PublishedAt.UnixMilli(), runID).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			url = excluded.url,
			cover_image = excluded.cover_image`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if err := ExecWithRetry(ctx, a.db, query, args...); err != nil {
		return fmt.Errorf("upsert published: %w", err)
	}
	return nil
}

// Recent returns the latest published articles, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]ArchivedArticle, error) {
	if a.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query, args, err := sq.Select("id", "source_link", "title", "summary", "url", "cover_image", "published_at", "run_id").
		From("published_articles").
		OrderBy("published_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query published: %w", err)
	}
	defer rows.Close()

	var result []ArchivedArticle
	for rows.Next() {
		var (
			row         ArchivedArticle
			publishedAt int64
		)
		if err := rows.Scan(&row.Article.ID, &row.Article.SourceLink, &row.Article.Title, &row.Article.Summary,
			&row.Article.URL, &row.Article.CoverImage, &publishedAt, &row.RunID); err != nil {
			return nil, fmt.Errorf("scan published: %w", err)
		}
		row.Article.PublishedAt = time.UnixMilli(publishedAt).UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}
