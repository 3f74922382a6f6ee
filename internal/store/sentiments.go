package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// InsertSentiment writes one inference result. The unique index over
// (article_id, ticker, model_used) makes replays a no-op; the returned bool
// reports whether the row was written.
func (s *Store) InsertSentiment(ctx context.Context, rec SentimentRecord) (bool, error) {
	if strings.TrimSpace(rec.ArticleID) == "" || strings.TrimSpace(rec.Ticker) == "" {
		return false, fmt.Errorf("sentiment record requires article id and ticker")
	}
	if strings.TrimSpace(rec.ModelUsed) == "" {
		return false, fmt.Errorf("sentiment %s/%s: model path required", rec.ArticleID, rec.Ticker)
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO sentiment_records (article_id, ticker, sentiment_score, confidence, impact_timeline, explanation, model_used, analyzed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (article_id, ticker, model_used) DO NOTHING
`, rec.ArticleID, rec.Ticker, rec.SentimentScore, rec.Confidence, rec.ImpactTimeline, nullableString(rec.Explanation), rec.ModelUsed, rec.AnalyzedAt)
	if err != nil {
		return false, fmt.Errorf("insert sentiment %s/%s: %w", rec.ArticleID, rec.Ticker, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sentiment %s/%s: rows affected: %w", rec.ArticleID, rec.Ticker, err)
	}
	return n > 0, nil
}

// ListSentimentsBetween returns a ticker's sentiment rows with analyzed_at in
// [since, until). Alpha computations pass their own computation timestamp as
// the upper bound so rows analyzed later never leak into an earlier window.
func (s *Store) ListSentimentsBetween(ctx context.Context, ticker string, since, until time.Time) ([]SentimentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, article_id, ticker, sentiment_score, confidence, impact_timeline, COALESCE(explanation,''), model_used, analyzed_at
FROM sentiment_records
WHERE ticker=$1 AND analyzed_at >= $2 AND analyzed_at < $3
ORDER BY analyzed_at ASC
`, ticker, since, until)
	if err != nil {
		return nil, fmt.Errorf("list sentiments %s: %w", ticker, err)
	}
	defer rows.Close()
	var out []SentimentRecord
	for rows.Next() {
		var rec SentimentRecord
		if err := rows.Scan(&rec.ID, &rec.ArticleID, &rec.Ticker, &rec.SentimentScore, &rec.Confidence, &rec.ImpactTimeline, &rec.Explanation, &rec.ModelUsed, &rec.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan sentiment: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListActiveTickers returns tickers with at least one sentiment row analyzed
// in [since, until). These are the tickers the alpha pass recomputes.
func (s *Store) ListActiveTickers(ctx context.Context, since, until time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT DISTINCT ticker
FROM sentiment_records
WHERE analyzed_at >= $1 AND analyzed_at < $2
ORDER BY ticker ASC
`, since, until)
	if err != nil {
		return nil, fmt.Errorf("list active tickers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertSkippedPair records a pair every inference path failed on. Duplicate
// skips collapse; the returned bool reports whether this call recorded it.
func (s *Store) InsertSkippedPair(ctx context.Context, rec SkippedPairRecord) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO skipped_pairs (article_id, ticker, reason, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (article_id, ticker) DO NOTHING
`, rec.ArticleID, rec.Ticker, rec.Reason, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert skipped pair %s/%s: %w", rec.ArticleID, rec.Ticker, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert skipped pair %s/%s: rows affected: %w", rec.ArticleID, rec.Ticker, err)
	}
	return n > 0, nil
}

// CountSkippedSince reports how many pairs were skipped after the given time.
func (s *Store) CountSkippedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM skipped_pairs WHERE created_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count skipped pairs: %w", err)
	}
	return n, nil
}
