package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/queue/streams"
)

const defaultScrapeTimeout = 30 * time.Second

// PageFetcher fetches single pages and extracts the article text with
// readability. Sources marked Rendered go through a headless browser so
// script-heavy pages produce their final DOM; the rest use a plain GET.
type PageFetcher struct {
	Timeout  time.Duration
	MaxChars int
	client   *http.Client
}

func NewPageFetcher(timeout time.Duration, maxChars int) *PageFetcher {
	if timeout <= 0 {
		timeout = defaultScrapeTimeout
	}
	if maxChars <= 0 {
		maxChars = 20000
	}
	return &PageFetcher{
		Timeout:  timeout,
		MaxChars: maxChars,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *PageFetcher) Fetch(ctx context.Context, src config.ScrapeSource) (streams.RawDocument, error) {
	if strings.TrimSpace(src.URL) == "" {
		return streams.RawDocument{}, fmt.Errorf("scrape source %s: url required", src.Name)
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	var html string
	var err error
	if src.Rendered {
		html, err = f.renderHTML(ctx, src.URL)
	} else {
		html, err = f.getHTML(ctx, src.URL)
	}
	if err != nil {
		return streams.RawDocument{}, fmt.Errorf("fetch %s: %w", src.Name, err)
	}

	parsed, err := url.Parse(src.URL)
	if err != nil {
		parsed = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return streams.RawDocument{}, fmt.Errorf("extract %s: %w", src.Name, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return streams.RawDocument{
		SourceName:  src.Name,
		SourceKind:  SourceKindScrape,
		Title:       strings.TrimSpace(article.Title),
		Body:        text,
		URL:         src.URL,
		PublishedAt: time.Now().UTC(),
	}, nil
}

func (f *PageFetcher) getHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *PageFetcher) renderHTML(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("alphastream/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
