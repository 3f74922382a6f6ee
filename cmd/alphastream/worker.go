package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rish-kun/alphastream/internal/orchestrator"
)

const (
	defaultFeedInterval   = 5 * time.Minute
	defaultScrapeInterval = 15 * time.Minute
	defaultAlphaInterval  = 15 * time.Minute
)

func workerCMD() *cobra.Command {
	var cfgPath string
	worker := &cobra.Command{
		Use:   "worker",
		Short: "Run the recurring pipeline jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer app.close()

			sched, err := registerJobs(app)
			if err != nil {
				return err
			}
			sched.Run(ctx)
			return nil
		},
	}
	worker.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return worker
}

func registerJobs(app *app) (*orchestrator.Scheduler, error) {
	cfg := app.cfg
	sched := orchestrator.NewScheduler(cfg.Workers.TickInterval, app.pool, app.rdb)

	for _, src := range cfg.Sources.Feeds {
		src := src
		run := func(ctx context.Context) error {
			_, err := app.pipeline.FetchFeed(ctx, src)
			return err
		}
		if err := addJob(sched, "ingest:"+src.Name, src.Schedule, src.Interval, defaultFeedInterval, run); err != nil {
			return nil, err
		}
	}
	for _, src := range cfg.Sources.ScrapePages {
		src := src
		run := func(ctx context.Context) error {
			_, err := app.pipeline.FetchPage(ctx, src)
			return err
		}
		if err := addJob(sched, "ingest:"+src.Name, src.Schedule, src.Interval, defaultScrapeInterval, run); err != nil {
			return nil, err
		}
	}

	sched.Add("drain_raw", cfg.Workers.TickInterval, func(ctx context.Context) error {
		_, err := app.pipeline.DrainRaw(ctx, 0)
		return err
	})
	sched.Add("resolve_pending", cfg.Workers.TickInterval, func(ctx context.Context) error {
		_, err := app.pipeline.ResolvePending(ctx, 0)
		return err
	})
	sched.Add("sentiment_pending", time.Minute, func(ctx context.Context) error {
		_, _, err := app.pipeline.AnalyzePending(ctx, nil, 0)
		return err
	})
	if err := addJob(sched, "alpha_compute", cfg.Alpha.Schedule, cfg.Alpha.Interval, defaultAlphaInterval, func(ctx context.Context) error {
		_, err := app.pipeline.ComputeMetrics(ctx, nil)
		return err
	}); err != nil {
		return nil, err
	}
	sched.Add("dispatch_tasks", cfg.Workers.TickInterval, func(ctx context.Context) error {
		return app.runner.DispatchPending(ctx)
	})
	return sched, nil
}

// addJob registers run under a cron schedule when one is configured,
// otherwise on the interval (falling back when unset).
func addJob(sched *orchestrator.Scheduler, name, schedule string, interval, fallback time.Duration, run orchestrator.JobFunc) error {
	if schedule != "" {
		return sched.AddCron(name, schedule, run)
	}
	if interval <= 0 {
		interval = fallback
	}
	sched.Add(name, interval, run)
	return nil
}
