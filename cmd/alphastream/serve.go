package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rish-kun/alphastream/internal/queue/streams"
	"github.com/rish-kun/alphastream/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := buildApp(ctx, cfgPath)
			if err != nil {
				return err
			}
			defer app.close()

			relay := streams.NewConsumer(app.rdb, streams.GroupBroadcast, consumerName())
			go app.hub.RelayEvents(ctx, relay)

			srv := server.New(app.store, app.runner, app.hub, app.met)
			return srv.Run(ctx, app.cfg.Server)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return serve
}
