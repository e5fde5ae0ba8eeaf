package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/praxamed/calsync/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service",
		Long: `Run calsync as a long-running service: a periodic scheduler that
synchronizes every enabled calendar account, a control API for account
settings and manual sync triggers, and a Prometheus metrics endpoint on a
separate port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			ctl := server.New(app.cfg.ListenAddr, app.store.Accounts(), app.scheduler, app.provider, app.store, app.logger)
			metrics := server.NewMetricsServer(app.cfg.MetricsAddr, app.logger)

			errCh := make(chan error, 2)
			go func() {
				if err := ctl.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			go func() {
				if err := metrics.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			go func() {
				app.logger.Info("starting scheduler", "interval", app.cfg.Sync.Interval.String())
				err := app.scheduler.RunEvery(ctx, app.cfg.Sync.Interval)
				if err != nil && !errors.Is(err, context.Canceled) {
					errCh <- err
				}
			}()

			var runErr error
			select {
			case <-ctx.Done():
			case runErr = <-errCh:
				stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := ctl.Shutdown(shutdownCtx); err != nil {
				app.logger.Error("control API shutdown failed", "error", err)
			}
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				app.logger.Error("metrics server shutdown failed", "error", err)
			}
			return runErr
		},
	}
	return cmd
}
