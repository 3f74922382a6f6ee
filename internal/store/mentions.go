package store

import (
	"context"
	"fmt"
	"time"
)

// InsertMentions writes the resolver output for one article. Re-running the
// resolver over the same article is a no-op per ticker.
func (s *Store) InsertMentions(ctx context.Context, mentions []MentionRecord) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert mentions: begin: %w", err)
	}
	defer tx.Rollback()
	for _, m := range mentions {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ticker_mentions (article_id, ticker, relevance_score, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (article_id, ticker) DO NOTHING
`, m.ArticleID, m.Ticker, m.Relevance, m.CreatedAt); err != nil {
			return fmt.Errorf("insert mention %s/%s: %w", m.ArticleID, m.Ticker, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert mentions: commit: %w", err)
	}
	return nil
}

// ListMentionsByArticle returns the tickers resolved for an article.
func (s *Store) ListMentionsByArticle(ctx context.Context, articleID string) ([]MentionRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT article_id, ticker, relevance_score, created_at
FROM ticker_mentions
WHERE article_id=$1
ORDER BY relevance_score DESC, ticker ASC
`, articleID)
	if err != nil {
		return nil, fmt.Errorf("list mentions for %s: %w", articleID, err)
	}
	defer rows.Close()
	var out []MentionRecord
	for rows.Next() {
		var m MentionRecord
		if err := rows.Scan(&m.ArticleID, &m.Ticker, &m.Relevance, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListPendingSentimentPairs returns (article, ticker) pairs with no sentiment
// row and no skip marker, oldest first.
func (s *Store) ListPendingSentimentPairs(ctx context.Context, limit int) ([]MentionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT m.article_id, m.ticker, m.relevance_score, m.created_at
FROM ticker_mentions m
LEFT JOIN sentiment_records sr ON sr.article_id = m.article_id AND sr.ticker = m.ticker
LEFT JOIN skipped_pairs sp ON sp.article_id = m.article_id AND sp.ticker = m.ticker
WHERE sr.id IS NULL AND sp.article_id IS NULL
ORDER BY m.created_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending pairs: %w", err)
	}
	defer rows.Close()
	var out []MentionRecord
	for rows.Next() {
		var m MentionRecord
		if err := rows.Scan(&m.ArticleID, &m.Ticker, &m.Relevance, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending pair: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMentionsBetween counts mentions of a ticker whose article published
// inside [since, until). Used for velocity history.
func (s *Store) CountMentionsBetween(ctx context.Context, ticker string, since, until time.Time) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM ticker_mentions m
JOIN articles a ON a.id = m.article_id
WHERE m.ticker = $1 AND a.published_at >= $2 AND a.published_at < $3
`, ticker, since, until).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count mentions %s: %w", ticker, err)
	}
	return n, nil
}
