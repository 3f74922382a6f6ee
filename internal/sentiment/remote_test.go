package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/store"
)

func testArticle() store.ArticleRecord {
	return store.ArticleRecord{
		ID:         "a1",
		Title:      "Reliance Q1 results beat estimates",
		BodyText:   "Reliance Industries reported a record quarterly profit.",
		SourceName: "MoneyControl",
	}
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestAnalyzer(url string, keys []string) *RemoteAnalyzer {
	return NewRemoteAnalyzer(config.RemoteServiceConfig{
		Name:              "primary",
		BaseURL:           url,
		Model:             "test-model",
		APIKeys:           keys,
		RequestsPerMinute: 6000,
	}, 5*time.Second)
}

func TestRemoteAnalyzerParsesFencedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization header = %q", got)
		}
		content := "Here is the analysis:\n```json\n" +
			`{"sentiment_score": 0.4, "confidence": 0.82, "explanation": "positive results", "impact_timeline": "short_term"}` +
			"\n```"
		fmt.Fprint(w, chatResponse(content))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL, []string{"key-1"})
	j, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if j.SentimentScore != 0.4 || j.Confidence != 0.82 || j.ImpactTimeline != ImpactShortTerm {
		t.Errorf("unexpected judgment: %+v", j)
	}
}

func TestRemoteAnalyzerRejectsOutOfBounds(t *testing.T) {
	cases := []string{
		`{"sentiment_score": 1.7, "confidence": 0.8, "impact_timeline": "short_term"}`,
		`{"sentiment_score": 0.2, "confidence": 1.4, "impact_timeline": "short_term"}`,
		`{"sentiment_score": 0.2, "confidence": 0.8, "impact_timeline": "unknown"}`,
		`not json at all`,
	}
	for _, body := range cases {
		body := body
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, chatResponse(body))
		}))
		a := newTestAnalyzer(srv.URL, []string{"key-1"})
		_, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
		srv.Close()
		if !errors.Is(err, ErrSchemaValidation) {
			t.Errorf("body %q: expected ErrSchemaValidation, got %v", body, err)
		}
	}
}

func TestRemoteAnalyzerRateLimitTriesNextKey(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		seen = append(seen, auth)
		if auth == "Bearer key-1" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatResponse(`{"sentiment_score": 0.3, "confidence": 0.7, "impact_timeline": "immediate"}`))
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL, []string{"key-1", "key-2"})
	j, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
	if err != nil {
		t.Fatalf("Infer should rotate past the rate-limited key: %v", err)
	}
	if j.SentimentScore != 0.3 || j.ImpactTimeline != ImpactImmediate {
		t.Errorf("unexpected judgment: %+v", j)
	}
	want := []string{"Bearer key-1", "Bearer key-2"}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Errorf("key order = %v, want %v", seen, want)
	}
}

func TestRemoteAnalyzerRateLimitCoolsKey(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// With the only key cooling mid-call, the retry claim fails and the
	// pair is deferred rather than demoted to the local path.
	a := newTestAnalyzer(srv.URL, []string{"key-1"})
	_, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
	if !errors.Is(err, ErrNoKeyAvailable) {
		t.Fatalf("expected ErrNoKeyAvailable once the pool is cooling, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single request before deferring, got %d", calls)
	}

	_, err = a.Infer(context.Background(), testArticle(), "RELIANCE")
	if !errors.Is(err, ErrNoKeyAvailable) {
		t.Fatalf("expected ErrNoKeyAvailable while the key cools, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cooling key must not be retried, got %d calls", calls)
	}
}

func TestRemoteAnalyzerNoKeys(t *testing.T) {
	a := newTestAnalyzer("http://unreachable.invalid", nil)
	_, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
	if !errors.Is(err, ErrNoKeyAvailable) {
		t.Fatalf("expected ErrNoKeyAvailable, got %v", err)
	}
}

func TestRemoteAnalyzerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAnalyzer(srv.URL, []string{"key-1"})
	_, err := a.Infer(context.Background(), testArticle(), "RELIANCE")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNoKeyAvailable) {
		t.Fatalf("500 should not map to a sentinel: %v", err)
	}
}
