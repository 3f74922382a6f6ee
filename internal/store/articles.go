package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsertArticle persists a normalized article. The unique indexes on
// content_hash and url_fingerprint make the insert a no-op for duplicates;
// the returned bool reports whether a row was actually written.
func (s *Store) InsertArticle(ctx context.Context, rec ArticleRecord) (bool, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return false, fmt.Errorf("article id required")
	}
	if strings.TrimSpace(rec.ContentHash) == "" || strings.TrimSpace(rec.URLFingerprint) == "" {
		return false, fmt.Errorf("article %s: content hash and url fingerprint required", rec.ID)
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO articles (id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT DO NOTHING
`, rec.ID, rec.Title, rec.BodyText, rec.SourceName, rec.OriginURL, rec.URLFingerprint, rec.ContentHash, rec.PublishedAt, rec.ScrapedAt)
	if err != nil {
		return false, fmt.Errorf("insert article %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article %s: rows affected: %w", rec.ID, err)
	}
	return n > 0, nil
}

// GetArticle fetches one article by id.
func (s *Store) GetArticle(ctx context.Context, id string) (ArticleRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at
FROM articles
WHERE id=$1
`, id)
	var rec ArticleRecord
	if err := row.Scan(&rec.ID, &rec.Title, &rec.BodyText, &rec.SourceName, &rec.OriginURL, &rec.URLFingerprint, &rec.ContentHash, &rec.PublishedAt, &rec.ScrapedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ArticleRecord{}, false, nil
		}
		return ArticleRecord{}, false, fmt.Errorf("get article %s: %w", id, err)
	}
	return rec, true, nil
}

// ListLatestArticles returns the most recently published articles.
func (s *Store) ListLatestArticles(ctx context.Context, limit int) ([]ArticleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at
FROM articles
ORDER BY published_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list latest articles: %w", err)
	}
	defer rows.Close()
	var out []ArticleRecord
	for rows.Next() {
		var rec ArticleRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.BodyText, &rec.SourceName, &rec.OriginURL, &rec.URLFingerprint, &rec.ContentHash, &rec.PublishedAt, &rec.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListUnresolvedArticles returns articles the resolver has not processed yet.
func (s *Store) ListUnresolvedArticles(ctx context.Context, limit int) ([]ArticleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, body_text, source_name, origin_url, url_fingerprint, content_hash, published_at, scraped_at
FROM articles
WHERE resolved_at IS NULL
ORDER BY scraped_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved articles: %w", err)
	}
	defer rows.Close()
	var out []ArticleRecord
	for rows.Next() {
		var rec ArticleRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.BodyText, &rec.SourceName, &rec.OriginURL, &rec.URLFingerprint, &rec.ContentHash, &rec.PublishedAt, &rec.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkArticleResolved stamps an article as processed by the resolver,
// including articles that produced zero mentions so they are not rescanned.
func (s *Store) MarkArticleResolved(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE articles SET resolved_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return fmt.Errorf("mark article %s resolved: %w", id, err)
	}
	return nil
}

// CountArticlesSince counts articles published inside the window. Feeds the
// news-share term of narrative velocity.
func (s *Store) CountArticlesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE published_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}
