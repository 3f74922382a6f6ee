package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/helpers"
	"github.com/rish-kun/alphastream/internal/store"
)

// promptBodyLimit bounds how much article text goes into one request.
const promptBodyLimit = 3000

const judgmentPrompt = `You are an institutional-grade financial analyst specializing in the Indian stock market (NSE/BSE).

Analyze the following news article with respect to %s and provide a structured JSON response:

Article: %s

Context (if any): %s

Respond ONLY with valid JSON in this exact format:
{
    "sentiment_score": <float between -1.0 and 1.0>,
    "confidence": <float between 0.0 and 1.0>,
    "explanation": "<2-3 sentence explanation of market impact>",
    "impact_timeline": "<one of: immediate, short_term, long_term>",
    "affected_sectors": [<list of affected sectors>],
    "mentioned_tickers": [<list of NSE ticker symbols>],
    "key_themes": [<list of key themes>]
}`

// RemoteAnalyzer calls a chat-completions style endpoint with a rotating key
// pool and a per-provider request-rate cap.
type RemoteAnalyzer struct {
	name    string
	baseURL string
	model   string
	pool    *KeyPool
	limiter *rate.Limiter
	client  *http.Client
	logger  *log.Logger
}

// NewRemoteAnalyzer builds an analyzer from one provider's config.
func NewRemoteAnalyzer(cfg config.RemoteServiceConfig, timeout time.Duration) *RemoteAnalyzer {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 15
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &RemoteAnalyzer{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		pool:    NewKeyPool(cfg.APIKeys),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		client:  &http.Client{Timeout: timeout},
		logger:  log.New(log.Writer(), "[SENTIMENT] ", log.LstdFlags),
	}
}

// Name returns the model identifier recorded in model_used.
func (r *RemoteAnalyzer) Name() string { return r.model }

// Infer asks the provider for a judgment. A claimed key that answers 429 is
// put on cooldown and the next available key is tried; only when every key
// is cooling does the claim fail with ErrNoKeyAvailable, so callers can
// defer the pair instead of falling back over a single transient 429.
func (r *RemoteAnalyzer) Infer(ctx context.Context, article store.ArticleRecord, ticker string) (Judgment, error) {
	body := helpers.Truncate(article.BodyText, promptBodyLimit)
	prompt := fmt.Sprintf(judgmentPrompt, ticker, article.Title+"\n\n"+body, "source: "+article.SourceName)

	for {
		key, err := r.pool.Claim()
		if err != nil {
			return Judgment{}, fmt.Errorf("%s: %w", r.name, err)
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return Judgment{}, fmt.Errorf("%s: rate wait: %w", r.name, err)
		}

		content, err := r.complete(ctx, key, prompt)
		if errors.Is(err, ErrRateLimited) {
			// complete cooled the key; rotate to the next idle one.
			continue
		}
		if err != nil {
			return Judgment{}, err
		}
		r.pool.MarkHealthy(key)

		j, err := parseJudgment(content)
		if err != nil {
			r.logger.Printf("%s returned invalid judgment for %s/%s: %v; raw: %s",
				r.name, article.ID, ticker, err, helpers.Truncate(content, 500))
			return Judgment{}, err
		}
		return j, nil
	}
}

func (r *RemoteAnalyzer) complete(ctx context.Context, key, prompt string) (string, error) {
	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	reqBody, err := json.Marshal(struct {
		Model    string    `json:"model"`
		Messages []chatMsg `json:"messages"`
	}{
		Model:    r.model,
		Messages: []chatMsg{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: do: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		r.pool.MarkRateLimited(key)
		return "", fmt.Errorf("%s: %w", r.name, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s: status %d: %s", r.name, resp.StatusCode, snippet)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode: %w", r.name, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", r.name)
	}
	return out.Choices[0].Message.Content, nil
}

// parseJudgment extracts the JSON object from the model reply. Models wrap
// JSON in prose or code fences often enough that a bare Unmarshal is not
// sufficient.
func parseJudgment(content string) (Judgment, error) {
	var j Judgment
	if err := json.Unmarshal([]byte(content), &j); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return Judgment{}, fmt.Errorf("%w: no JSON object in response", ErrSchemaValidation)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &j); err != nil {
			return Judgment{}, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
	}
	if err := j.Validate(); err != nil {
		return Judgment{}, err
	}
	return j, nil
}
