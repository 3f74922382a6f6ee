package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/store"
)

// ErrDuplicate reports that a document normalized to an article that is
// already stored. Callers treat it as control flow, not a failure.
var ErrDuplicate = errors.New("duplicate article")

// Sink is the slice of the store the ingestor writes to.
type Sink interface {
	InsertArticle(ctx context.Context, rec store.ArticleRecord) (bool, error)
}

// EventPublisher pushes envelopes onto a redis stream.
type EventPublisher interface {
	PublishRaw(ctx context.Context, stream, eventType string, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// Ingestor collects documents from sources and admits them into storage.
type Ingestor struct {
	feeds  *FeedFetcher
	pages  *PageFetcher
	sink   Sink
	pub    EventPublisher
	met    *metrics.Set
	logger *log.Logger
	now    func() time.Time
}

func New(cfg config.SourcesConfig, sink Sink, pub EventPublisher, met *metrics.Set) *Ingestor {
	return &Ingestor{
		feeds:  NewFeedFetcher(cfg.FetchTimeout, cfg.MaxPerFeed),
		pages:  NewPageFetcher(cfg.FetchTimeout, 0),
		sink:   sink,
		pub:    pub,
		met:    met,
		logger: log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
		now:    time.Now,
	}
}

// CollectFeed fetches one feed and hands its documents to the raw stream.
// Returns the number of documents published.
func (in *Ingestor) CollectFeed(ctx context.Context, src config.FeedSource) (int, error) {
	docs, err := in.feeds.Fetch(ctx, src)
	if err != nil {
		in.met.IncSourceFailure(src.Name)
		return 0, err
	}
	return in.publishDocs(ctx, src.Name, docs)
}

// CollectPage fetches one scrape source and hands the document to the raw
// stream.
func (in *Ingestor) CollectPage(ctx context.Context, src config.ScrapeSource) (int, error) {
	doc, err := in.pages.Fetch(ctx, src)
	if err != nil {
		in.met.IncSourceFailure(src.Name)
		return 0, err
	}
	return in.publishDocs(ctx, src.Name, []streams.RawDocument{doc})
}

func (in *Ingestor) publishDocs(ctx context.Context, source string, docs []streams.RawDocument) (int, error) {
	published := 0
	for _, doc := range docs {
		if _, err := in.pub.PublishRaw(ctx, streams.StreamRawDocs, streams.EventRawDocument, doc); err != nil {
			return published, fmt.Errorf("publish raw doc from %s: %w", source, err)
		}
		published++
	}
	in.logger.Printf("source %s produced %d documents", source, published)
	return published, nil
}

// Process normalizes and stores one raw document. A document whose content
// hash or URL fingerprint is already stored returns ErrDuplicate and
// produces no downstream work. New articles emit a news_update broadcast
// event.
func (in *Ingestor) Process(ctx context.Context, doc streams.RawDocument) (store.ArticleRecord, error) {
	rec, err := Normalize(doc, in.now())
	if err != nil {
		return store.ArticleRecord{}, err
	}
	inserted, err := in.sink.InsertArticle(ctx, rec)
	if err != nil {
		return store.ArticleRecord{}, fmt.Errorf("insert article %s: %w", rec.ID, err)
	}
	if !inserted {
		in.met.IncDuplicate()
		return store.ArticleRecord{}, fmt.Errorf("article %s: %w", rec.ID, ErrDuplicate)
	}
	in.met.IncIngested()

	if in.pub != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"article_id":   rec.ID,
			"title":        rec.Title,
			"source":       rec.SourceName,
			"url":          rec.OriginURL,
			"published_at": rec.PublishedAt,
		})
		event := streams.BroadcastEvent{Type: streams.EventNewsUpdate, Data: payload}
		if _, err := in.pub.PublishRaw(ctx, streams.StreamEvents, streams.EventNewsUpdate, event); err != nil {
			in.logger.Printf("broadcast news_update for %s failed: %v", rec.ID, err)
		}
	}
	return rec, nil
}
