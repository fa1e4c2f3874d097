package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	app "github.com/hanpama/graphcms/internal/app"
	logging "github.com/hanpama/graphcms/internal/logging"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL service",
		Long: `Load the configuration, open the stores, compose the schema and serve it.

Environment variables override the file:
  GRAPHCMS_LISTEN            listen address (default :4000)
  GRAPHCMS_STORAGE_DRIVER    bolt or memory
  GRAPHCMS_STORAGE_PATH      data directory
  GRAPHCMS_NATS_URL          NATS server for uploaded files
  GRAPHCMS_UPLOAD_SECRET     upload policy signing secret
  GRAPHCMS_ADMIN_PASSWORD    seeds the admin account when set
  GRAPHCMS_LOG_LEVEL         debug, info, warn, error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging, os.Stdout)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stores, err := app.OpenStores(ctx, cfg)
			if err != nil {
				return err
			}
			a, err := app.New(ctx, cfg, stores, log)
			if err != nil {
				_ = stores.Close()
				return err
			}
			defer func() {
				if err := a.Close(context.Background()); err != nil {
					log.Error().Err(err).Msg("shutdown")
				}
			}()

			if err := a.Start(ctx); err != nil {
				log.Error().Err(err).Msg("startup failed")
				return err
			}
			return a.Serve(ctx)
		},
	}
}
