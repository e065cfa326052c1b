package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/talkvault/talkvault/app"
	"github.com/talkvault/talkvault/internal/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := app.NewContainer(ctx, cfg, log)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				_ = c.Stop(context.Background())
				return err
			}

			var srv *http.Server
			if cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler(c.Registry))
				srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("metrics server failed")
					}
				}()
			}

			<-ctx.Done()
			log.Info().Msg("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
			defer cancel()
			if srv != nil {
				_ = srv.Shutdown(shutdownCtx)
			}
			return c.Stop(shutdownCtx)
		},
	}
}
