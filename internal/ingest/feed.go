// Package ingest fetches documents from configured sources, normalizes
// them, and admits each exactly once into the article store.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/queue/streams"
)

// SourceKindFeed and SourceKindScrape tag raw documents with how they were
// fetched.
const (
	SourceKindFeed   = "feed"
	SourceKindScrape = "scrape"
)

// FeedFetcher pulls RSS/Atom feeds.
type FeedFetcher struct {
	parser *gofeed.Parser
	max    int
}

func NewFeedFetcher(timeout time.Duration, maxPerFeed int) *FeedFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxPerFeed <= 0 {
		maxPerFeed = 50
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	return &FeedFetcher{parser: parser, max: maxPerFeed}
}

// Fetch parses one feed and returns its newest items as raw documents.
// Items without a link are skipped; missing publish dates fall back to now.
func (f *FeedFetcher) Fetch(ctx context.Context, src config.FeedSource) ([]streams.RawDocument, error) {
	feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Name, err)
	}
	count := len(feed.Items)
	if count > f.max {
		count = f.max
	}
	docs := make([]streams.RawDocument, 0, count)
	for _, item := range feed.Items[:count] {
		if item.Link == "" {
			continue
		}
		body := item.Content
		if body == "" {
			body = item.Description
		}
		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			publishedAt = item.UpdatedParsed.UTC()
		}
		docs = append(docs, streams.RawDocument{
			SourceName:  src.Name,
			SourceKind:  SourceKindFeed,
			Title:       item.Title,
			Body:        body,
			URL:         item.Link,
			PublishedAt: publishedAt,
		})
	}
	return docs, nil
}
