// Package metrics holds the prometheus instruments for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set groups every pipeline counter. One Set is built per process and shared
// across stages; a nil *Set disables instrumentation (tests).
type Set struct {
	ArticlesIngested  prometheus.Counter
	ArticlesDuplicate prometheus.Counter
	SourceFailures    *prometheus.CounterVec
	MentionsResolved  prometheus.Counter
	SentimentByPath   *prometheus.CounterVec
	PairsSkipped      prometheus.Counter
	AlphaComputed     prometheus.Counter
	EventsBroadcast   *prometheus.CounterVec
}

// New registers the pipeline instruments on reg. Pass
// prometheus.DefaultRegisterer for the promhttp default handler.
func New(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		ArticlesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_articles_ingested_total",
			Help: "Articles accepted by the deduplicator.",
		}),
		ArticlesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_articles_duplicate_total",
			Help: "Documents dropped as duplicates.",
		}),
		SourceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alphastream_source_failures_total",
			Help: "Fetch failures per source.",
		}, []string{"source"}),
		MentionsResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_mentions_resolved_total",
			Help: "Ticker mentions written by the resolver.",
		}),
		SentimentByPath: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alphastream_sentiment_records_total",
			Help: "Sentiment records stored, by model path.",
		}, []string{"model"}),
		PairsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_pairs_skipped_total",
			Help: "Pairs abandoned after every inference path failed.",
		}),
		AlphaComputed: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphastream_alpha_computations_total",
			Help: "Alpha metric snapshots appended.",
		}),
		EventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alphastream_events_broadcast_total",
			Help: "Events published to the websocket hub, by type.",
		}, []string{"type"}),
	}
}

// IncSentiment bumps the per-path sentiment counter, nil-safe.
func (s *Set) IncSentiment(model string) {
	if s != nil {
		s.SentimentByPath.WithLabelValues(model).Inc()
	}
}

// IncSkipped bumps the skipped-pair counter, nil-safe.
func (s *Set) IncSkipped() {
	if s != nil {
		s.PairsSkipped.Inc()
	}
}

// IncDuplicate bumps the duplicate counter, nil-safe.
func (s *Set) IncDuplicate() {
	if s != nil {
		s.ArticlesDuplicate.Inc()
	}
}

// IncIngested bumps the accepted-article counter, nil-safe.
func (s *Set) IncIngested() {
	if s != nil {
		s.ArticlesIngested.Inc()
	}
}

// IncSourceFailure bumps the per-source fetch failure counter, nil-safe.
func (s *Set) IncSourceFailure(source string) {
	if s != nil {
		s.SourceFailures.WithLabelValues(source).Inc()
	}
}

// IncMentions adds n resolved mentions, nil-safe.
func (s *Set) IncMentions(n int) {
	if s != nil && n > 0 {
		s.MentionsResolved.Add(float64(n))
	}
}

// IncAlpha bumps the alpha computation counter, nil-safe.
func (s *Set) IncAlpha() {
	if s != nil {
		s.AlphaComputed.Inc()
	}
}

// IncBroadcast bumps the per-type broadcast counter, nil-safe.
func (s *Set) IncBroadcast(eventType string) {
	if s != nil {
		s.EventsBroadcast.WithLabelValues(eventType).Inc()
	}
}
