package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/rish-kun/alphastream/config"
	"github.com/rish-kun/alphastream/internal/alpha"
	"github.com/rish-kun/alphastream/internal/ingest"
	"github.com/rish-kun/alphastream/internal/metrics"
	"github.com/rish-kun/alphastream/internal/orchestrator"
	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/resolver"
	"github.com/rish-kun/alphastream/internal/sentiment"
	"github.com/rish-kun/alphastream/internal/server"
	"github.com/rish-kun/alphastream/internal/store"
)

// app holds the shared process wiring. serve and worker build the same
// graph; they differ only in which loops they run on top of it.
type app struct {
	cfg      *config.Config
	store    *store.Store
	rdb      *redis.Client
	met      *metrics.Set
	pub      *streams.Publisher
	ingestor *ingest.Ingestor
	pool     *orchestrator.Pool
	pipeline *orchestrator.Pipeline
	runner   *orchestrator.Runner
	hub      *server.Hub
}

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if err := streams.EnsureGroup(ctx, rdb, streams.StreamRawDocs, streams.GroupPipeline); err != nil {
		return nil, err
	}
	if err := streams.EnsureGroup(ctx, rdb, streams.StreamEvents, streams.GroupBroadcast); err != nil {
		return nil, err
	}

	met := metrics.New(prometheus.DefaultRegisterer)
	pub := streams.NewPublisher(rdb)
	ingestor := ingest.New(cfg.Sources, st, pub, met)
	res := resolver.New(&resolver.HeuristicTagger{})

	var remotes []sentiment.Analyzer
	if cfg.LLM.Primary.Configured() {
		remotes = append(remotes, sentiment.NewRemoteAnalyzer(cfg.LLM.Primary, cfg.LLM.Timeout))
	}
	if cfg.LLM.Secondary.Configured() {
		remotes = append(remotes, sentiment.NewRemoteAnalyzer(cfg.LLM.Secondary, cfg.LLM.Timeout))
	}
	engine := sentiment.NewEngine(remotes, &sentiment.LexiconClassifier{}, st, met)

	calc := alpha.NewCalculator(st, alpha.NewStaticPriceSource(), cfg.Alpha, met)

	pool := orchestrator.NewPool(cfg.Workers.PipelineConcurrency)
	consumer := streams.NewConsumer(rdb, streams.GroupPipeline, consumerName())
	pipeline := orchestrator.NewPipeline(st, ingestor, res, engine, calc, consumer, pub, cfg.Sources, pool, met)
	runner := orchestrator.NewRunner(st, pipeline, pool, cfg.Workers.ResearchConcurrency)
	hub := server.NewHub(cfg.Broadcast, met)

	return &app{
		cfg:      cfg,
		store:    st,
		rdb:      rdb,
		met:      met,
		pub:      pub,
		ingestor: ingestor,
		pool:     pool,
		pipeline: pipeline,
		runner:   runner,
		hub:      hub,
	}, nil
}

func (a *app) close() {
	a.pool.Wait()
	_ = a.rdb.Close()
	_ = a.store.DB.Close()
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "alphastream"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
