package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/rish-kun/alphastream/internal/store"
)

// TaskStore persists research task state.
type TaskStore interface {
	CreateResearchTask(ctx context.Context, rec store.ResearchTaskRecord) (store.ResearchTaskRecord, error)
	ClaimResearchTask(ctx context.Context, id string) (store.ResearchTaskRecord, bool, error)
	ListPendingResearchTasks(ctx context.Context, limit int) ([]store.ResearchTaskRecord, error)
	AdvanceResearchStage(ctx context.Context, id, stage string, found, analyzed, skipped int) error
	CompleteResearchTask(ctx context.Context, id string, result []byte) error
	FailResearchTask(ctx context.Context, id, errMsg string) error
}

// Stages is the pipeline surface a research task drives.
type Stages interface {
	FetchSources(ctx context.Context) (int, error)
	DrainRaw(ctx context.Context, max int) (int, error)
	ResolvePending(ctx context.Context, limit int) (int, error)
	AnalyzePending(ctx context.Context, tickers []string, limit int) (int, int, error)
	ComputeMetrics(ctx context.Context, tickers []string) (int, error)
}

// TaskResult is the JSON stored on a completed task.
type TaskResult struct {
	ArticlesFound    int      `json:"articles_found"`
	MentionsResolved int      `json:"mentions_resolved"`
	PairsAnalyzed    int      `json:"pairs_analyzed"`
	PairsSkipped     int      `json:"pairs_skipped"`
	MetricsComputed  int      `json:"metrics_computed"`
	Tickers          []string `json:"tickers,omitempty"`
}

// Runner executes research tasks through the pipeline stages. Research
// work runs on its own lane so recurring jobs are never starved by it.
type Runner struct {
	tasks  TaskStore
	stages Stages
	pool   *Pool
	lane   chan struct{}
	logger *log.Logger
}

func NewRunner(tasks TaskStore, stages Stages, pool *Pool, laneSize int) *Runner {
	if laneSize <= 0 {
		laneSize = 2
	}
	return &Runner{
		tasks:  tasks,
		stages: stages,
		pool:   pool,
		lane:   make(chan struct{}, laneSize),
		logger: log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Submit creates a pending task and dispatches it. The record is returned
// immediately; progress is polled via the task status endpoint.
func (r *Runner) Submit(ctx context.Context, kind, target string) (store.ResearchTaskRecord, error) {
	switch kind {
	case store.TaskKindStock, store.TaskKindPortfolio, store.TaskKindTopic:
	default:
		return store.ResearchTaskRecord{}, fmt.Errorf("unknown task kind %q", kind)
	}
	if strings.TrimSpace(target) == "" {
		return store.ResearchTaskRecord{}, fmt.Errorf("task target required")
	}
	rec, err := r.tasks.CreateResearchTask(ctx, store.ResearchTaskRecord{
		ID:     uuid.NewString(),
		Kind:   kind,
		Target: target,
		Status: store.TaskStatusPending,
		Stage:  store.StageFetchingSources,
	})
	if err != nil {
		return store.ResearchTaskRecord{}, err
	}
	r.dispatch(ctx, rec.ID)
	return rec, nil
}

// DispatchPending claims tasks left pending (from a crashed worker or a
// submit on another process) and runs them.
func (r *Runner) DispatchPending(ctx context.Context) error {
	pending, err := r.tasks.ListPendingResearchTasks(ctx, 10)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range pending {
		r.dispatch(ctx, task.ID)
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, id string) {
	r.pool.Submit(ctx, "task:"+id, func(ctx context.Context) {
		select {
		case r.lane <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-r.lane }()
		r.execute(ctx, id)
	})
}

// execute drives one task through the stage sequence. The first fatal
// error fails the task with its stage preserved; completed stage counters
// are kept either way.
func (r *Runner) execute(ctx context.Context, id string) {
	task, ok, err := r.tasks.ClaimResearchTask(ctx, id)
	if err != nil {
		r.logger.Printf("claim task %s: %v", id, err)
		return
	}
	if !ok {
		return // claimed elsewhere or already finished
	}
	tickers := targetTickers(task)
	result := TaskResult{Tickers: tickers}

	fail := func(stage string, err error) {
		r.logger.Printf("task %s failed at %s: %v", id, stage, err)
		if ferr := r.tasks.FailResearchTask(ctx, id, err.Error()); ferr != nil {
			r.logger.Printf("record failure for %s: %v", id, ferr)
		}
	}

	if _, err := r.stages.FetchSources(ctx); err != nil {
		fail(store.StageFetchingSources, err)
		return
	}
	found, err := r.stages.DrainRaw(ctx, 0)
	if err != nil {
		fail(store.StageFetchingSources, err)
		return
	}
	result.ArticlesFound = found
	if err := r.tasks.AdvanceResearchStage(ctx, id, store.StageResolvingTickers, found, 0, 0); err != nil {
		fail(store.StageFetchingSources, err)
		return
	}

	mentions, err := r.stages.ResolvePending(ctx, 0)
	if err != nil {
		fail(store.StageResolvingTickers, err)
		return
	}
	result.MentionsResolved = mentions
	if err := r.tasks.AdvanceResearchStage(ctx, id, store.StageAnalyzingSentiment, found, 0, 0); err != nil {
		fail(store.StageResolvingTickers, err)
		return
	}

	analyzed, skipped, err := r.stages.AnalyzePending(ctx, tickers, 0)
	if err != nil {
		fail(store.StageAnalyzingSentiment, err)
		return
	}
	result.PairsAnalyzed = analyzed
	result.PairsSkipped = skipped
	if err := r.tasks.AdvanceResearchStage(ctx, id, store.StageComputingMetrics, found, analyzed, skipped); err != nil {
		fail(store.StageAnalyzingSentiment, err)
		return
	}

	computed, err := r.stages.ComputeMetrics(ctx, tickers)
	if err != nil {
		fail(store.StageComputingMetrics, err)
		return
	}
	result.MetricsComputed = computed

	payload, err := json.Marshal(result)
	if err != nil {
		fail(store.StageComputingMetrics, err)
		return
	}
	if err := r.tasks.CompleteResearchTask(ctx, id, payload); err != nil {
		fail(store.StageComputingMetrics, err)
		return
	}
	r.logger.Printf("task %s done: %d articles, %d analyzed, %d skipped", id, found, analyzed, skipped)
}

// targetTickers maps a task target to the tickers it narrows the pipeline
// to. Stock tasks name one ticker, portfolio tasks a comma-separated list;
// topic tasks run unfiltered.
func targetTickers(task store.ResearchTaskRecord) []string {
	switch task.Kind {
	case store.TaskKindStock:
		return []string{strings.ToUpper(strings.TrimSpace(task.Target))}
	case store.TaskKindPortfolio:
		var out []string
		for _, part := range strings.Split(task.Target, ",") {
			if t := strings.ToUpper(strings.TrimSpace(part)); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return nil
	}
}
