package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection. All pipeline state that survives a
// restart lives here; redis only carries in-flight hand-off.
type Store struct {
	DB *sql.DB
}

// Research task statuses.
const (
	TaskStatusPending = "pending"
	TaskStatusRunning = "running"
	TaskStatusSuccess = "success"
	TaskStatusFailure = "failure"
)

// Research task stages, in execution order.
const (
	StageFetchingSources    = "fetching_sources"
	StageResolvingTickers   = "resolving_tickers"
	StageAnalyzingSentiment = "analyzing_sentiment"
	StageComputingMetrics   = "computing_metrics"
	StageDone               = "done"
)

// Research task kinds.
const (
	TaskKindStock     = "stock"
	TaskKindPortfolio = "portfolio"
	TaskKindTopic     = "topic"
)

// Signal labels emitted by the alpha calculator.
const (
	SignalStrongBuy  = "strong_buy"
	SignalBuy        = "buy"
	SignalHold       = "hold"
	SignalSell       = "sell"
	SignalStrongSell = "strong_sell"
)

// Model path recorded when the local classifier produced the judgment.
const ModelLocalFallback = "local_fallback"

// ArticleRecord is one deduplicated article.
type ArticleRecord struct {
	ID             string
	Title          string
	BodyText       string
	SourceName     string
	OriginURL      string
	URLFingerprint string
	ContentHash    string
	PublishedAt    time.Time
	ScrapedAt      time.Time
}

// MentionRecord links an article to a resolved ticker.
type MentionRecord struct {
	ArticleID string
	Ticker    string
	Relevance float64
	CreatedAt time.Time
}

// SentimentRecord is one completed inference for an (article, ticker) pair.
type SentimentRecord struct {
	ID             int64
	ArticleID      string
	Ticker         string
	SentimentScore float64
	Confidence     float64
	ImpactTimeline string
	Explanation    string
	ModelUsed      string
	AnalyzedAt     time.Time
}

// AlphaRecord is one computed metric snapshot for a ticker.
type AlphaRecord struct {
	ID                int64
	Ticker            string
	WindowHours       int
	ExpectationGap    float64
	NarrativeVelocity float64
	Divergence        *float64
	CompositeScore    float64
	Signal            string
	Conviction        int
	ComputedAt        time.Time
}

// ResearchTaskRecord tracks an on-demand research run.
type ResearchTaskRecord struct {
	ID               string
	Kind             string
	Target           string
	Status           string
	Stage            string
	ArticlesFound    int
	ArticlesAnalyzed int
	PairsSkipped     int
	Result           []byte
	Error            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SkippedPairRecord marks an (article, ticker) pair every inference path
// failed on. Recorded once; never retried automatically.
type SkippedPairRecord struct {
	ArticleID string
	Ticker    string
	Reason    string
	CreatedAt time.Time
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// NewWithDSN opens the Postgres pool and verifies connectivity.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func nullableString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
