package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/alpha"
	"github.com/rish-kun/alphastream/internal/ingest"
	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/resolver"
	"github.com/rish-kun/alphastream/internal/sentiment"
	"github.com/rish-kun/alphastream/internal/store"
)

const (
	resolveBatch = 100
	pairBatch    = 50
	drainBatch   = 100

	// reclaimMinIdle is how long an unacked raw document sits in the
	// consumer group's pending list before a drain takes it over.
	reclaimMinIdle = 5 * time.Minute
)

// PipelineStore is the slice of the store the pipeline stages read and write.
type PipelineStore interface {
	GetArticle(ctx context.Context, id string) (store.ArticleRecord, bool, error)
	ListUnresolvedArticles(ctx context.Context, limit int) ([]store.ArticleRecord, error)
	MarkArticleResolved(ctx context.Context, id string, at time.Time) error
	InsertMentions(ctx context.Context, mentions []store.MentionRecord) error
	ListPendingSentimentPairs(ctx context.Context, limit int) ([]store.MentionRecord, error)
}

// RawConsumer drains the raw document stream.
type RawConsumer interface {
	Read(ctx context.Context, stream string, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
	AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
}

// Pipeline implements the four pipeline stages over the concrete
// components. Recurring jobs and research tasks both run through it; the
// per-pair leases keep the two from double-processing work.
type Pipeline struct {
	store    PipelineStore
	ingestor *ingest.Ingestor
	resolver *resolver.Resolver
	engine   *sentiment.Engine
	calc     *alpha.Calculator
	consumer RawConsumer
	pub      ingest.EventPublisher
	sources  config.SourcesConfig
	leases   *Pool
	met      *metrics.Set
	logger   *log.Logger
	now      func() time.Time
}

func NewPipeline(
	st PipelineStore,
	ingestor *ingest.Ingestor,
	res *resolver.Resolver,
	engine *sentiment.Engine,
	calc *alpha.Calculator,
	consumer RawConsumer,
	pub ingest.EventPublisher,
	sources config.SourcesConfig,
	leases *Pool,
	met *metrics.Set,
) *Pipeline {
	return &Pipeline{
		store:    st,
		ingestor: ingestor,
		resolver: res,
		engine:   engine,
		calc:     calc,
		consumer: consumer,
		pub:      pub,
		sources:  sources,
		leases:   leases,
		met:      met,
		logger:   log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		now:      time.Now,
	}
}

// FetchSources polls every configured source once. A failing source is
// logged and skipped so the rest still run; the per-source failure counter
// lives in the metrics set.
func (p *Pipeline) FetchSources(ctx context.Context) (int, error) {
	total := 0
	for _, src := range p.sources.Feeds {
		n, err := p.FetchFeed(ctx, src)
		if err != nil {
			p.logger.Printf("feed %s failed: %v", src.Name, err)
			continue
		}
		total += n
	}
	for _, src := range p.sources.ScrapePages {
		n, err := p.FetchPage(ctx, src)
		if err != nil {
			p.logger.Printf("page %s failed: %v", src.Name, err)
			continue
		}
		total += n
	}
	return total, nil
}

// FetchFeed collects one feed under its source lease. Recurring jobs and
// research tasks both enter here, so a fetch already in flight on the other
// lane is skipped rather than doubled.
func (p *Pipeline) FetchFeed(ctx context.Context, src config.FeedSource) (int, error) {
	key := "source:" + src.Name
	if !p.leases.Acquire(key) {
		return 0, nil
	}
	defer p.leases.Release(key)
	return p.ingestor.CollectFeed(ctx, src)
}

// FetchPage collects one scrape source under its source lease.
func (p *Pipeline) FetchPage(ctx context.Context, src config.ScrapeSource) (int, error) {
	key := "source:" + src.Name
	if !p.leases.Acquire(key) {
		return 0, nil
	}
	defer p.leases.Release(key)
	return p.ingestor.CollectPage(ctx, src)
}

// DrainRaw consumes up to max documents from the raw stream and admits
// them. Returns the number of new articles; duplicates are acked and
// dropped. XREADGROUP ">" never re-delivers an unacked entry, so each
// drain first reclaims what earlier consumers (this one included, after
// a transient store failure or a crash) left pending.
func (p *Pipeline) DrainRaw(ctx context.Context, max int) (int, error) {
	if p.consumer == nil {
		return 0, nil
	}
	if max <= 0 {
		max = drainBatch
	}
	admitted := 0
	reclaimed, _, err := p.consumer.AutoClaim(ctx, streams.StreamRawDocs, reclaimMinIdle, "0", int64(max))
	if err != nil {
		p.logger.Printf("reclaim raw stream: %v", err)
	} else {
		admitted += p.admitBatch(ctx, reclaimed)
	}

	msgs, err := p.consumer.Read(ctx, streams.StreamRawDocs, streams.WithCount(int64(max)))
	if err != nil {
		return admitted, fmt.Errorf("read raw stream: %w", err)
	}
	return admitted + p.admitBatch(ctx, msgs), nil
}

func (p *Pipeline) admitBatch(ctx context.Context, msgs []streams.Message) int {
	admitted := 0
	for _, msg := range msgs {
		var doc streams.RawDocument
		if err := json.Unmarshal(msg.Envelope.Data, &doc); err != nil {
			p.logger.Printf("malformed raw document %s dropped: %v", msg.ID, err)
			_ = p.consumer.Ack(ctx, streams.StreamRawDocs, msg.ID)
			continue
		}
		if _, err := p.ingestor.Process(ctx, doc); err != nil {
			if !errors.Is(err, ingest.ErrDuplicate) {
				p.logger.Printf("admit %s failed: %v", doc.URL, err)
				continue // left pending, reclaimed on a later drain
			}
		} else {
			admitted++
		}
		_ = p.consumer.Ack(ctx, streams.StreamRawDocs, msg.ID)
	}
	return admitted
}

// ResolvePending resolves tickers for unresolved articles, oldest first.
// Returns the number of mentions written. Articles with no mentions are
// still marked resolved so the scan terminates.
func (p *Pipeline) ResolvePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = resolveBatch
	}
	articles, err := p.store.ListUnresolvedArticles(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unresolved: %w", err)
	}
	total := 0
	for _, article := range articles {
		mentions := p.resolver.Resolve(article.Title, article.BodyText)
		if len(mentions) > 0 {
			recs := make([]store.MentionRecord, 0, len(mentions))
			for _, m := range mentions {
				recs = append(recs, store.MentionRecord{
					ArticleID: article.ID,
					Ticker:    m.Ticker,
					Relevance: m.Relevance,
					CreatedAt: p.now().UTC(),
				})
			}
			if err := p.store.InsertMentions(ctx, recs); err != nil {
				return total, fmt.Errorf("insert mentions for %s: %w", article.ID, err)
			}
			p.met.IncMentions(len(recs))
			total += len(recs)
		}
		if err := p.store.MarkArticleResolved(ctx, article.ID, p.now().UTC()); err != nil {
			return total, fmt.Errorf("mark resolved %s: %w", article.ID, err)
		}
	}
	return total, nil
}

// AnalyzePending runs sentiment inference over pending (article, ticker)
// pairs. tickers narrows the scan (nil = all). When every remote key is
// cooling the remaining pairs are deferred to the next tick rather than
// busy-waited. Returns (analyzed, skipped).
func (p *Pipeline) AnalyzePending(ctx context.Context, tickers []string, limit int) (int, int, error) {
	if limit <= 0 {
		limit = pairBatch
	}
	pairs, err := p.store.ListPendingSentimentPairs(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending pairs: %w", err)
	}
	want := tickerSet(tickers)
	var eligible []store.MentionRecord
	for _, pair := range pairs {
		if want == nil || want[pair.Ticker] {
			eligible = append(eligible, pair)
		}
	}
	analyzed, skipped := 0, 0
	for i, pair := range eligible {
		key := "pair:" + pair.ArticleID + ":" + pair.Ticker
		if !p.leases.Acquire(key) {
			continue
		}
		rec, err := p.processPair(ctx, pair)
		p.leases.Release(key)
		switch {
		case err == nil:
			analyzed++
			p.publishSentiment(ctx, rec)
		case errors.Is(err, sentiment.ErrNoKeyAvailable):
			p.logger.Printf("all keys cooling, deferring %d pending pairs", len(eligible)-i)
			return analyzed, skipped, nil
		case errors.Is(err, sentiment.ErrAllPathsExhausted):
			skipped++
		default:
			p.logger.Printf("pair %s/%s failed: %v", pair.ArticleID, pair.Ticker, err)
		}
	}
	return analyzed, skipped, nil
}

func (p *Pipeline) processPair(ctx context.Context, pair store.MentionRecord) (store.SentimentRecord, error) {
	article, ok, err := p.store.GetArticle(ctx, pair.ArticleID)
	if err != nil {
		return store.SentimentRecord{}, fmt.Errorf("load article %s: %w", pair.ArticleID, err)
	}
	if !ok {
		return store.SentimentRecord{}, fmt.Errorf("article %s missing", pair.ArticleID)
	}
	return p.engine.Process(ctx, article, pair.Ticker)
}

// ComputeMetrics runs the alpha calculator. tickers narrows the run (nil =
// every active ticker). Every computation, narrowed or not, goes through the
// per-ticker alpha lease so the recurring job and a research task never
// compute the same ticker concurrently. Each stored snapshot emits an
// alpha_update event; a per-ticker failure is logged and skipped so one bad
// ticker does not starve the rest.
func (p *Pipeline) ComputeMetrics(ctx context.Context, tickers []string) (int, error) {
	at := p.now().UTC()
	if len(tickers) == 0 {
		var err error
		tickers, err = p.calc.ActiveTickers(ctx, at)
		if err != nil {
			return 0, fmt.Errorf("list active tickers: %w", err)
		}
	}
	var recs []store.AlphaRecord
	for _, ticker := range tickers {
		key := "alpha:" + ticker
		if !p.leases.Acquire(key) {
			continue
		}
		rec, err := p.calc.ComputeTicker(ctx, ticker, at)
		p.leases.Release(key)
		if err != nil {
			p.logger.Printf("alpha %s failed: %v", ticker, err)
			continue
		}
		recs = append(recs, rec)
	}
	for _, rec := range recs {
		p.publishAlpha(ctx, rec)
	}
	return len(recs), nil
}

func (p *Pipeline) publishSentiment(ctx context.Context, rec store.SentimentRecord) {
	if p.pub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"article_id":      rec.ArticleID,
		"ticker":          rec.Ticker,
		"sentiment_score": rec.SentimentScore,
		"confidence":      rec.Confidence,
		"impact_timeline": rec.ImpactTimeline,
		"model_used":      rec.ModelUsed,
		"analyzed_at":     rec.AnalyzedAt,
	})
	event := streams.BroadcastEvent{Type: streams.EventSentimentUpdate, Tickers: []string{rec.Ticker}, Data: payload}
	if _, err := p.pub.PublishRaw(ctx, streams.StreamEvents, streams.EventSentimentUpdate, event); err != nil {
		p.logger.Printf("broadcast sentiment_update for %s failed: %v", rec.Ticker, err)
	}
}

func (p *Pipeline) publishAlpha(ctx context.Context, rec store.AlphaRecord) {
	if p.pub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"ticker":          rec.Ticker,
		"composite_score": rec.CompositeScore,
		"signal":          rec.Signal,
		"conviction":      rec.Conviction,
		"computed_at":     rec.ComputedAt,
	})
	event := streams.BroadcastEvent{Type: streams.EventAlphaUpdate, Tickers: []string{rec.Ticker}, Data: payload}
	if _, err := p.pub.PublishRaw(ctx, streams.StreamEvents, streams.EventAlphaUpdate, event); err != nil {
		p.logger.Printf("broadcast alpha_update for %s failed: %v", rec.Ticker, err)
	}
}

func tickerSet(tickers []string) map[string]bool {
	if len(tickers) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		set[t] = true
	}
	return set
}
