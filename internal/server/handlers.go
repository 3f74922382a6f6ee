package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rish-kun/alphastream/internal/store"
)

const (
	defaultNewsLimit      = 20
	maxNewsLimit          = 100
	defaultSentimentHours = 24
	maxSentimentHours     = 24 * 30
)

type topicRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleResearchStock(c echo.Context) error {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticker required")
	}
	return s.submitTask(c, store.TaskKindStock, ticker)
}

func (s *Server) handleResearchPortfolio(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "portfolio id required")
	}
	return s.submitTask(c, store.TaskKindPortfolio, id)
}

func (s *Server) handleResearchTopic(c echo.Context) error {
	var req topicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	return s.submitTask(c, store.TaskKindTopic, req.Topic)
}

func (s *Server) submitTask(c echo.Context, kind, target string) error {
	rec, err := s.runner.Submit(c.Request().Context(), kind, target)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusAccepted, taskResponse(rec))
}

func (s *Server) handleResearchStatus(c echo.Context) error {
	id := strings.TrimSpace(c.Param("task_id"))
	rec, ok, err := s.store.GetResearchTask(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, taskResponse(rec))
}

func (s *Server) handleLatestNews(c echo.Context) error {
	limit := queryInt(c, "limit", defaultNewsLimit, maxNewsLimit)
	articles, err := s.store.ListLatestArticles(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	out := make([]map[string]interface{}, 0, len(articles))
	for _, a := range articles {
		out = append(out, map[string]interface{}{
			"id":           a.ID,
			"title":        a.Title,
			"source":       a.SourceName,
			"url":          a.OriginURL,
			"published_at": a.PublishedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"articles": out, "count": len(out)})
}

func (s *Server) handleStockMetrics(c echo.Context) error {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	limit := queryInt(c, "limit", 20, 200)
	recs, err := s.store.ListAlphaByTicker(c.Request().Context(), ticker, limit)
	if err != nil {
		return err
	}
	out := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		entry := map[string]interface{}{
			"expectation_gap":    r.ExpectationGap,
			"narrative_velocity": r.NarrativeVelocity,
			"composite_score":    r.CompositeScore,
			"signal":             r.Signal,
			"conviction":         r.Conviction,
			"window_hours":       r.WindowHours,
			"computed_at":        r.ComputedAt,
		}
		if r.Divergence != nil {
			entry["sentiment_price_divergence"] = *r.Divergence
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"ticker": ticker, "metrics": out})
}

func (s *Server) handleStockSentiment(c echo.Context) error {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	hours := queryInt(c, "hours", defaultSentimentHours, maxSentimentHours)
	until := time.Now().UTC()
	since := until.Add(-time.Duration(hours) * time.Hour)
	recs, err := s.store.ListSentimentsBetween(c.Request().Context(), ticker, since, until)
	if err != nil {
		return err
	}
	out := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		out = append(out, map[string]interface{}{
			"article_id":      r.ArticleID,
			"sentiment_score": r.SentimentScore,
			"confidence":      r.Confidence,
			"impact_timeline": r.ImpactTimeline,
			"explanation":     r.Explanation,
			"model_used":      r.ModelUsed,
			"analyzed_at":     r.AnalyzedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ticker": ticker,
		"hours":  hours,
		"records": out,
	})
}

func taskResponse(rec store.ResearchTaskRecord) map[string]interface{} {
	resp := map[string]interface{}{
		"task_id":           rec.ID,
		"kind":              rec.Kind,
		"target":            rec.Target,
		"status":            rec.Status,
		"stage":             rec.Stage,
		"articles_found":    rec.ArticlesFound,
		"articles_analyzed": rec.ArticlesAnalyzed,
		"pairs_skipped":     rec.PairsSkipped,
		"created_at":        rec.CreatedAt,
		"updated_at":        rec.UpdatedAt,
	}
	if len(rec.Result) > 0 {
		resp["result"] = json.RawMessage(rec.Result)
	}
	if rec.Error != "" {
		resp["error"] = rec.Error
	}
	return resp
}

func queryInt(c echo.Context, name string, def, max int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// APIStore is the read surface the handlers need.
type APIStore interface {
	GetResearchTask(ctx context.Context, id string) (store.ResearchTaskRecord, bool, error)
	ListLatestArticles(ctx context.Context, limit int) ([]store.ArticleRecord, error)
	ListAlphaByTicker(ctx context.Context, ticker string, limit int) ([]store.AlphaRecord, error)
	ListSentimentsBetween(ctx context.Context, ticker string, since, until time.Time) ([]store.SentimentRecord, error)
}

// TaskSubmitter creates research tasks.
type TaskSubmitter interface {
	Submit(ctx context.Context, kind, target string) (store.ResearchTaskRecord, error)
}
