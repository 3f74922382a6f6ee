package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateResearchTask registers a new task in pending state.
func (s *Store) CreateResearchTask(ctx context.Context, rec ResearchTaskRecord) (ResearchTaskRecord, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return ResearchTaskRecord{}, fmt.Errorf("task id required")
	}
	if strings.TrimSpace(rec.Kind) == "" || strings.TrimSpace(rec.Target) == "" {
		return ResearchTaskRecord{}, fmt.Errorf("task %s: kind and target required", rec.ID)
	}
	rec.Status = TaskStatusPending
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO research_tasks (id, kind, target, status, stage)
VALUES ($1,$2,$3,$4,'')
RETURNING created_at, updated_at
`, rec.ID, rec.Kind, rec.Target, rec.Status)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ResearchTaskRecord{}, fmt.Errorf("create research task %s: %w", rec.ID, err)
	}
	return rec, nil
}

// GetResearchTask fetches one task by id.
func (s *Store) GetResearchTask(ctx context.Context, id string) (ResearchTaskRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, kind, target, status, stage, articles_found, articles_analyzed, pairs_skipped, result, COALESCE(error,''), created_at, updated_at
FROM research_tasks
WHERE id=$1
`, id)
	var rec ResearchTaskRecord
	var result []byte
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Target, &rec.Status, &rec.Stage, &rec.ArticlesFound, &rec.ArticlesAnalyzed, &rec.PairsSkipped, &result, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResearchTaskRecord{}, false, nil
		}
		return ResearchTaskRecord{}, false, fmt.Errorf("get research task %s: %w", id, err)
	}
	rec.Result = result
	return rec, true, nil
}

// ClaimResearchTask flips one pending task to running and returns it. The
// conditional update is the claim: a second worker gets ok=false.
func (s *Store) ClaimResearchTask(ctx context.Context, id string) (ResearchTaskRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
UPDATE research_tasks
SET status=$2, updated_at=NOW()
WHERE id=$1 AND status=$3
RETURNING id, kind, target, status, stage, articles_found, articles_analyzed, pairs_skipped, created_at, updated_at
`, id, TaskStatusRunning, TaskStatusPending)
	var rec ResearchTaskRecord
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Target, &rec.Status, &rec.Stage, &rec.ArticlesFound, &rec.ArticlesAnalyzed, &rec.PairsSkipped, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ResearchTaskRecord{}, false, nil
		}
		return ResearchTaskRecord{}, false, fmt.Errorf("claim research task %s: %w", id, err)
	}
	return rec, true, nil
}

// ListPendingResearchTasks returns pending tasks oldest first.
func (s *Store) ListPendingResearchTasks(ctx context.Context, limit int) ([]ResearchTaskRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, kind, target, status, stage, articles_found, articles_analyzed, pairs_skipped, created_at, updated_at
FROM research_tasks
WHERE status=$1
ORDER BY created_at ASC
LIMIT $2
`, TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending research tasks: %w", err)
	}
	defer rows.Close()
	var out []ResearchTaskRecord
	for rows.Next() {
		var rec ResearchTaskRecord
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Target, &rec.Status, &rec.Stage, &rec.ArticlesFound, &rec.ArticlesAnalyzed, &rec.PairsSkipped, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan research task: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AdvanceResearchStage records the current stage and progress counters. Stage
// labels only move forward; completed stage history is implied by the order.
func (s *Store) AdvanceResearchStage(ctx context.Context, id, stage string, found, analyzed, skipped int) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE research_tasks
SET stage=$2, articles_found=$3, articles_analyzed=$4, pairs_skipped=$5, updated_at=NOW()
WHERE id=$1
`, id, stage, found, analyzed, skipped)
	if err != nil {
		return fmt.Errorf("advance research task %s to %s: %w", id, stage, err)
	}
	return nil
}

// CompleteResearchTask finalises a successful run with its result document.
func (s *Store) CompleteResearchTask(ctx context.Context, id string, result []byte) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE research_tasks
SET status=$2, stage=$3, result=$4, updated_at=NOW()
WHERE id=$1
`, id, TaskStatusSuccess, StageDone, result)
	if err != nil {
		return fmt.Errorf("complete research task %s: %w", id, err)
	}
	return nil
}

// FailResearchTask records the first fatal error. The stage and counters are
// left as the last successful update so partial progress stays visible.
func (s *Store) FailResearchTask(ctx context.Context, id, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE research_tasks
SET status=$2, error=$3, updated_at=NOW()
WHERE id=$1
`, id, TaskStatusFailure, errMsg)
	if err != nil {
		return fmt.Errorf("fail research task %s: %w", id, err)
	}
	return nil
}
