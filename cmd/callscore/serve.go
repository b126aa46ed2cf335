package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/callscore/internal/adapters/http/api"
	"github.com/okian/callscore/pkg/logger"
	"github.com/okian/callscore/pkg/tracing"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func serveCmd(rt *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled evaluator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := rt.log

			if rt.cfg.Tracing.Enabled {
				if err := tracing.Init(ctx, tracing.WithServiceName(rt.cfg.Tracing.ServiceName)); err != nil {
					return err
				}
				defer func() {
					if err := tracing.Shutdown(context.Background()); err != nil {
						log.Error(ctx, "tracing shutdown failed", logger.Error(err))
					}
				}()
			}

			svc := rt.service()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				svc.Stop(stopCtx)
			}()

			apiServer := api.NewServer(svc,
				api.WithMaxListLimit(rt.cfg.MaxListLimit),
				api.WithLogger(log.Named("api")))

			srv := &http.Server{
				Addr:              rt.cfg.Addr,
				Handler:           apiServer.Handler(),
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				IdleTimeout:       idleTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info(ctx, "starting HTTP server", logger.String("addr", rt.cfg.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			log.Info(ctx, "shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "server shutdown failed", logger.Error(err))
			}
			log.Info(ctx, "server stopped")
			return nil
		},
	}
}
