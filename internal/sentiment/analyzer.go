package sentiment

import (
	"context"
	"fmt"

	"github.com/rish-kun/alphastream/internal/store"
)

// Impact timelines a judgment may carry.
const (
	ImpactImmediate = "immediate"
	ImpactShortTerm = "short_term"
	ImpactLongTerm  = "long_term"
)

// Judgment is one model's structured read of an article for a ticker.
type Judgment struct {
	SentimentScore   float64  `json:"sentiment_score"`
	Confidence       float64  `json:"confidence"`
	Explanation      string   `json:"explanation"`
	ImpactTimeline   string   `json:"impact_timeline"`
	AffectedSectors  []string `json:"affected_sectors"`
	MentionedTickers []string `json:"mentioned_tickers"`
	KeyThemes        []string `json:"key_themes"`
}

// Analyzer produces a judgment for an (article, ticker) pair.
type Analyzer interface {
	// Name identifies the model path recorded in model_used.
	Name() string
	Infer(ctx context.Context, article store.ArticleRecord, ticker string) (Judgment, error)
}

// Validate checks the judgment contract. Out-of-range numbers or an unknown
// timeline mean the producing model cannot be trusted for this pair.
func (j Judgment) Validate() error {
	if j.SentimentScore < -1 || j.SentimentScore > 1 {
		return fmt.Errorf("%w: sentiment_score %v outside [-1,1]", ErrSchemaValidation, j.SentimentScore)
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaValidation, j.Confidence)
	}
	switch j.ImpactTimeline {
	case ImpactImmediate, ImpactShortTerm, ImpactLongTerm:
	default:
		return fmt.Errorf("%w: impact_timeline %q", ErrSchemaValidation, j.ImpactTimeline)
	}
	return nil
}
