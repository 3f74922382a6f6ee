package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rish-kun/alphastream/internal/helpers"
	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/store"
)

const articleIDLen = 24

// Normalize cleans one raw document into an article record. The ID is
// derived from the canonical URL and normalized title so the same story
// fetched through differing tracking URLs keys to the same row.
func Normalize(doc streams.RawDocument, now time.Time) (store.ArticleRecord, error) {
	title := helpers.SanitizeText(doc.Title)
	body := helpers.SanitizeText(doc.Body)
	if strings.TrimSpace(title) == "" {
		return store.ArticleRecord{}, fmt.Errorf("document from %s has no title", doc.SourceName)
	}

	canonical, err := helpers.CanonicalURL(doc.URL)
	if err != nil {
		return store.ArticleRecord{}, fmt.Errorf("canonicalize %q: %w", doc.URL, err)
	}
	fingerprint, err := helpers.URLFingerprint(doc.URL)
	if err != nil {
		return store.ArticleRecord{}, fmt.Errorf("fingerprint %q: %w", doc.URL, err)
	}

	publishedAt := doc.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = now
	}

	return store.ArticleRecord{
		ID:             articleID(canonical, title),
		Title:          title,
		BodyText:       body,
		SourceName:     doc.SourceName,
		OriginURL:      canonical,
		URLFingerprint: fingerprint,
		ContentHash:    helpers.ContentHash(title, body),
		PublishedAt:    publishedAt.UTC(),
		ScrapedAt:      now.UTC(),
	}, nil
}

func articleID(canonicalURL, title string) string {
	sum := sha256.Sum256([]byte(canonicalURL + "\n" + helpers.NormalizeText(title)))
	return hex.EncodeToString(sum[:])[:articleIDLen]
}
