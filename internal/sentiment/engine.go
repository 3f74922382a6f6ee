package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/store"
)

// Sink is the persistence surface the engine needs.
type Sink interface {
	InsertSentiment(ctx context.Context, rec store.SentimentRecord) (bool, error)
	InsertSkippedPair(ctx context.Context, rec store.SkippedPairRecord) (bool, error)
}

// Engine walks the inference chain for a pair and persists the outcome.
// Remote paths run in configuration order; the local classifier terminates
// the chain. A judgment is stored exactly once per (article, ticker, path).
type Engine struct {
	remotes []Analyzer
	local   Analyzer
	sink    Sink
	met     *metrics.Set
	logger  *log.Logger
	now     func() time.Time
}

// NewEngine builds the chain. remotes may be empty; local must not be nil.
func NewEngine(remotes []Analyzer, local Analyzer, sink Sink, met *metrics.Set) *Engine {
	return &Engine{
		remotes: remotes,
		local:   local,
		sink:    sink,
		met:     met,
		logger:  log.New(log.Writer(), "[SENTIMENT] ", log.LstdFlags),
		now:     time.Now,
	}
}

// Process infers and persists sentiment for one pair.
//
// Every remote path reporting an exhausted key pool (empty, or every key
// cooling after 429s) means the pair should wait for capacity; it is deferred
// by returning ErrNoKeyAvailable so the caller leaves it pending for the next
// scan. Any other remote failure falls through to the next path and finally
// to the local classifier. If even the local path fails, the pair is recorded
// as skipped and never fabricated.
func (e *Engine) Process(ctx context.Context, article store.ArticleRecord, ticker string) (store.SentimentRecord, error) {
	noKey := 0
	for _, a := range e.remotes {
		j, err := a.Infer(ctx, article, ticker)
		if err != nil {
			if errors.Is(err, ErrNoKeyAvailable) {
				noKey++
			}
			e.logger.Printf("path %s failed for %s/%s: %v", a.Name(), article.ID, ticker, err)
			continue
		}
		return e.persist(ctx, article, ticker, j, a.Name())
	}
	if len(e.remotes) > 0 && noKey == len(e.remotes) {
		return store.SentimentRecord{}, fmt.Errorf("pair %s/%s deferred: %w", article.ID, ticker, ErrNoKeyAvailable)
	}

	j, err := e.local.Infer(ctx, article, ticker)
	if err != nil {
		e.logger.Printf("local path failed for %s/%s: %v", article.ID, ticker, err)
		return store.SentimentRecord{}, e.skip(ctx, article.ID, ticker)
	}
	if j.Confidence > localConfidenceCap {
		j.Confidence = localConfidenceCap
	}
	return e.persist(ctx, article, ticker, j, e.local.Name())
}

func (e *Engine) persist(ctx context.Context, article store.ArticleRecord, ticker string, j Judgment, model string) (store.SentimentRecord, error) {
	rec := store.SentimentRecord{
		ArticleID:      article.ID,
		Ticker:         ticker,
		SentimentScore: j.SentimentScore,
		Confidence:     j.Confidence,
		ImpactTimeline: j.ImpactTimeline,
		Explanation:    j.Explanation,
		ModelUsed:      model,
		AnalyzedAt:     e.now().UTC(),
	}
	inserted, err := e.sink.InsertSentiment(ctx, rec)
	if err != nil {
		return store.SentimentRecord{}, fmt.Errorf("persist sentiment %s/%s: %w", article.ID, ticker, err)
	}
	if inserted {
		e.met.IncSentiment(model)
	}
	return rec, nil
}

func (e *Engine) skip(ctx context.Context, articleID, ticker string) error {
	recorded, err := e.sink.InsertSkippedPair(ctx, store.SkippedPairRecord{
		ArticleID: articleID,
		Ticker:    ticker,
		Reason:    "all inference paths exhausted",
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record skipped pair %s/%s: %w", articleID, ticker, err)
	}
	if recorded {
		e.met.IncSkipped()
		e.logger.Printf("pair %s/%s skipped: all inference paths exhausted", articleID, ticker)
	}
	return fmt.Errorf("pair %s/%s: %w", articleID, ticker, ErrAllPathsExhausted)
}
