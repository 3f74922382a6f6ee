package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/store"
)

func TestPipelineRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgUser := "alphastream"
	pgPassword := "alphastream"
	pgDB := "alphastream"

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase(pgDB),
		tcPostgres.WithUsername(pgUser),
		tcPostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	pgHost, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	pgPort, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	defer func() { _ = redisC.Terminate(ctx) }()

	redisHost, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	redisPort, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, pgHost, pgPort.Port(), pgDB)
	if err := store.Migrate("file://../../migrations", dsn, "up", 0); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer func() { _ = st.DB.Close() }()

	now := time.Now().UTC().Truncate(time.Second)

	article := store.ArticleRecord{
		ID:             "itest-article-1",
		Title:          "Reliance posts record quarterly profit",
		BodyText:       "Reliance Industries reported a record quarterly profit on refining margins.",
		SourceName:     "test-feed",
		OriginURL:      "https://example.com/reliance-q1",
		URLFingerprint: "fp-itest-1",
		ContentHash:    "hash-itest-1",
		PublishedAt:    now.Add(-time.Hour),
		ScrapedAt:      now,
	}
	inserted, err := st.InsertArticle(ctx, article)
	if err != nil {
		t.Fatalf("insert article: %v", err)
	}
	if !inserted {
		t.Fatalf("expected fresh article to be inserted")
	}

	// Same content hash must be rejected as a duplicate, not an error.
	dup := article
	dup.ID = "itest-article-dup"
	dup.URLFingerprint = "fp-itest-dup"
	inserted, err = st.InsertArticle(ctx, dup)
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate content hash to be dropped")
	}

	unresolved, err := st.ListUnresolvedArticles(ctx, 10)
	if err != nil {
		t.Fatalf("list unresolved: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].ID != article.ID {
		t.Fatalf("expected one unresolved article, got %+v", unresolved)
	}

	mention := store.MentionRecord{ArticleID: article.ID, Ticker: "RELIANCE", Relevance: 0.9}
	if err := st.InsertMentions(ctx, []store.MentionRecord{mention}); err != nil {
		t.Fatalf("insert mentions: %v", err)
	}
	if err := st.MarkArticleResolved(ctx, article.ID, now); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}

	pending, err := st.ListPendingSentimentPairs(ctx, 10)
	if err != nil {
		t.Fatalf("list pending pairs: %v", err)
	}
	if len(pending) != 1 || pending[0].Ticker != "RELIANCE" {
		t.Fatalf("expected one pending pair for RELIANCE, got %+v", pending)
	}

	sentiment := store.SentimentRecord{
		ArticleID:      article.ID,
		Ticker:         "RELIANCE",
		SentimentScore: 0.6,
		Confidence:     0.85,
		ImpactTimeline: "short_term",
		Explanation:    "record profit beat",
		ModelUsed:      "gemini-2.0-flash",
		AnalyzedAt:     now,
	}
	inserted, err = st.InsertSentiment(ctx, sentiment)
	if err != nil {
		t.Fatalf("insert sentiment: %v", err)
	}
	if !inserted {
		t.Fatalf("expected sentiment insert")
	}

	pending, err = st.ListPendingSentimentPairs(ctx, 10)
	if err != nil {
		t.Fatalf("list pending after analysis: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("analyzed pair still pending: %+v", pending)
	}

	active, err := st.ListActiveTickers(ctx, now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("list active tickers: %v", err)
	}
	if len(active) != 1 || active[0] != "RELIANCE" {
		t.Fatalf("expected RELIANCE active, got %v", active)
	}

	div := 0.25
	alpha := store.AlphaRecord{
		Ticker:            "RELIANCE",
		WindowHours:       24,
		ExpectationGap:    0.5,
		NarrativeVelocity: 0.34,
		Divergence:        &div,
		CompositeScore:    0.4,
		Signal:            store.SignalBuy,
		Conviction:        42,
		ComputedAt:        now,
	}
	saved, err := st.InsertAlpha(ctx, alpha)
	if err != nil {
		t.Fatalf("insert alpha: %v", err)
	}
	if saved.ID == 0 {
		t.Fatalf("expected alpha id assigned")
	}
	latest, ok, err := st.LatestAlpha(ctx, "RELIANCE")
	if err != nil {
		t.Fatalf("latest alpha: %v", err)
	}
	if !ok || latest.Signal != store.SignalBuy || latest.Divergence == nil {
		t.Fatalf("unexpected latest alpha: %+v ok=%v", latest, ok)
	}

	// Redis hand-off: publish a broadcast event and consume it through a group.
	redisClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port())})
	defer func() { _ = redisClient.Close() }()

	if err := streams.EnsureGroup(ctx, redisClient, streams.StreamEvents, streams.GroupBroadcast); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	publisher := streams.NewPublisher(redisClient)
	event := streams.BroadcastEvent{
		Type:    streams.EventAlphaUpdate,
		Tickers: []string{"RELIANCE"},
		Data:    json.RawMessage(`{"composite_score":0.4}`),
	}
	if _, err := publisher.PublishRaw(ctx, streams.StreamEvents, streams.EventAlphaUpdate, event); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	consumer := streams.NewConsumer(redisClient, streams.GroupBroadcast, "itest-consumer")
	msgs, err := consumer.Read(ctx, streams.StreamEvents, streams.WithBlock(2*time.Second), streams.WithCount(10))
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one event, got %d", len(msgs))
	}
	var got streams.BroadcastEvent
	if err := json.Unmarshal(msgs[0].Envelope.Data, &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.Type != streams.EventAlphaUpdate || len(got.Tickers) != 1 || got.Tickers[0] != "RELIANCE" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if err := consumer.Ack(ctx, streams.StreamEvents, msgs[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
}
