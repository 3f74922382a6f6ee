package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertAlpha appends one metric snapshot and returns it with the generated id.
func (s *Store) InsertAlpha(ctx context.Context, rec AlphaRecord) (AlphaRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO alpha_metrics (ticker, window_hours, expectation_gap, narrative_velocity, sentiment_price_divergence, composite_score, signal, conviction, computed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, rec.Ticker, rec.WindowHours, rec.ExpectationGap, rec.NarrativeVelocity, nullableFloat(rec.Divergence), rec.CompositeScore, rec.Signal, rec.Conviction, rec.ComputedAt)
	if err := row.Scan(&rec.ID); err != nil {
		return AlphaRecord{}, fmt.Errorf("insert alpha %s: %w", rec.Ticker, err)
	}
	return rec, nil
}

// ListAlphaByTicker returns the newest metric snapshots for a ticker.
func (s *Store) ListAlphaByTicker(ctx context.Context, ticker string, limit int) ([]AlphaRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, ticker, window_hours, expectation_gap, narrative_velocity, sentiment_price_divergence, composite_score, signal, conviction, computed_at
FROM alpha_metrics
WHERE ticker=$1
ORDER BY computed_at DESC
LIMIT $2
`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("list alpha %s: %w", ticker, err)
	}
	defer rows.Close()
	var out []AlphaRecord
	for rows.Next() {
		rec, err := scanAlpha(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestAlpha returns the most recent snapshot for a ticker.
func (s *Store) LatestAlpha(ctx context.Context, ticker string) (AlphaRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, ticker, window_hours, expectation_gap, narrative_velocity, sentiment_price_divergence, composite_score, signal, conviction, computed_at
FROM alpha_metrics
WHERE ticker=$1
ORDER BY computed_at DESC
LIMIT 1
`, ticker)
	rec, err := scanAlpha(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AlphaRecord{}, false, nil
		}
		return AlphaRecord{}, false, err
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlpha(row rowScanner) (AlphaRecord, error) {
	var rec AlphaRecord
	var div sql.NullFloat64
	if err := row.Scan(&rec.ID, &rec.Ticker, &rec.WindowHours, &rec.ExpectationGap, &rec.NarrativeVelocity, &div, &rec.CompositeScore, &rec.Signal, &rec.Conviction, &rec.ComputedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AlphaRecord{}, err
		}
		return AlphaRecord{}, fmt.Errorf("scan alpha: %w", err)
	}
	if div.Valid {
		v := div.Float64
		rec.Divergence = &v
	}
	return rec, nil
}
