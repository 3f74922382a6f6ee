package alpha

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/store"
)

// Reader is the slice of the store the calculator needs.
type Reader interface {
	ListSentimentsBetween(ctx context.Context, ticker string, since, until time.Time) ([]store.SentimentRecord, error)
	ListActiveTickers(ctx context.Context, since, until time.Time) ([]string, error)
	CountMentionsBetween(ctx context.Context, ticker string, since, until time.Time) (int, error)
	CountArticlesSince(ctx context.Context, since time.Time) (int, error)
	InsertAlpha(ctx context.Context, rec store.AlphaRecord) (store.AlphaRecord, error)
}

// PriceSource supplies the realised price change for a ticker over a window.
// ok=false means no quote is available; divergence is then omitted and the
// composite weights are renormalised over the remaining components.
type PriceSource interface {
	PriceChange(ctx context.Context, ticker string, window time.Duration) (change float64, ok bool, err error)
}

// Calculator turns stored sentiment into alpha metric snapshots.
type Calculator struct {
	reader Reader
	price  PriceSource
	cfg    config.AlphaConfig
	met    *metrics.Set
	logger *log.Logger
}

func NewCalculator(reader Reader, price PriceSource, cfg config.AlphaConfig, met *metrics.Set) *Calculator {
	return &Calculator{
		reader: reader,
		price:  price,
		cfg:    cfg,
		met:    met,
		logger: log.New(log.Writer(), "[ALPHA] ", log.LstdFlags),
	}
}

// ActiveTickers lists the tickers with sentiment inside the window ending
// at at, the set a full computation run covers.
func (c *Calculator) ActiveTickers(ctx context.Context, at time.Time) ([]string, error) {
	at = at.UTC()
	tickers, err := c.reader.ListActiveTickers(ctx, at.Add(-c.window()), at)
	if err != nil {
		return nil, fmt.Errorf("list active tickers: %w", err)
	}
	return tickers, nil
}

// ComputeTicker computes, stores, and returns one snapshot for a ticker.
// All reads are bounded by at so replaying a computation with the same
// timestamp sees the same rows regardless of later ingestion.
func (c *Calculator) ComputeTicker(ctx context.Context, ticker string, at time.Time) (store.AlphaRecord, error) {
	at = at.UTC()
	window := c.window()
	windowStart := at.Add(-window)
	baselineStart := at.Add(-time.Duration(c.cfg.BaselineDays) * 24 * time.Hour)

	current, err := c.reader.ListSentimentsBetween(ctx, ticker, windowStart, at)
	if err != nil {
		return store.AlphaRecord{}, fmt.Errorf("window sentiments %s: %w", ticker, err)
	}
	if len(current) == 0 {
		return store.AlphaRecord{}, fmt.Errorf("no sentiment in window for %s", ticker)
	}
	baseline, err := c.reader.ListSentimentsBetween(ctx, ticker, baselineStart, windowStart)
	if err != nil {
		return store.AlphaRecord{}, fmt.Errorf("baseline sentiments %s: %w", ticker, err)
	}

	curMean, confSum := meanAndConfidence(current)
	baseMean, _ := meanAndConfidence(baseline)
	gap := ExpectationGap(curMean, baseMean)

	velocity, err := c.velocity(ctx, ticker, windowStart, baselineStart, at, curMean)
	if err != nil {
		return store.AlphaRecord{}, err
	}

	var divergence *float64
	if c.price != nil {
		change, ok, err := c.price.PriceChange(ctx, ticker, window)
		if err != nil {
			c.logger.Printf("price change %s unavailable: %v", ticker, err)
		} else if ok {
			d := Divergence(curMean, change, c.cfg.PriceBand)
			divergence = &d
		}
	}

	composite := Composite(gap, velocity, divergence, c.cfg.Weights)
	rec := store.AlphaRecord{
		Ticker:            ticker,
		WindowHours:       c.cfg.WindowHours,
		ExpectationGap:    gap,
		NarrativeVelocity: velocity,
		Divergence:        divergence,
		CompositeScore:    composite,
		Signal:            SignalFor(composite, c.cfg.Thresholds),
		Conviction:        Conviction(composite, confSum),
		ComputedAt:        at,
	}
	stored, err := c.reader.InsertAlpha(ctx, rec)
	if err != nil {
		return store.AlphaRecord{}, err
	}
	c.met.IncAlpha()
	return stored, nil
}

func (c *Calculator) velocity(ctx context.Context, ticker string, windowStart, baselineStart, at time.Time, curMean float64) (float64, error) {
	windowMentions, err := c.reader.CountMentionsBetween(ctx, ticker, windowStart, at)
	if err != nil {
		return 0, fmt.Errorf("window mentions %s: %w", ticker, err)
	}
	histMentions, err := c.reader.CountMentionsBetween(ctx, ticker, baselineStart, windowStart)
	if err != nil {
		return 0, fmt.Errorf("baseline mentions %s: %w", ticker, err)
	}
	histHours := windowStart.Sub(baselineStart).Hours()

	var newsShare float64
	if histMentions == 0 || histHours < 24 {
		total, err := c.reader.CountArticlesSince(ctx, windowStart)
		if err != nil {
			return 0, fmt.Errorf("window article count: %w", err)
		}
		if total > 0 {
			newsShare = float64(windowMentions) / float64(total)
		}
	}
	return NarrativeVelocity(windowMentions, c.window().Hours(), histMentions, histHours, newsShare, curMean), nil
}

func (c *Calculator) window() time.Duration {
	h := c.cfg.WindowHours
	if h <= 0 {
		h = 24
	}
	return time.Duration(h) * time.Hour
}

func meanAndConfidence(recs []store.SentimentRecord) (mean, confSum float64) {
	if len(recs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, r := range recs {
		sum += r.SentimentScore
		confSum += r.Confidence
	}
	return sum / float64(len(recs)), confSum
}
