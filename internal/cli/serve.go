package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trading-journal/internal/api"
	"trading-journal/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and dashboard HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required to serve the dashboard API")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				sigchan := make(chan os.Signal, 1)
				signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigchan)
				select {
				case <-sigchan:
					a.log.Info("Shutdown signal received, gracefully shutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	handler := api.NewHandler(a.log, a.store, a.journal, a.metrics, a.auth, api.Options{
		Version:          a.cfg.Server.Version,
		RequestTimeout:   a.cfg.Server.RequestTimeout,
		WebhookRateLimit: a.cfg.Webhook.RateLimit,
		WebhookBurst:     a.cfg.Webhook.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler.NewRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	snapshots := scheduler.New(a.log, a.store, a.metrics, a.cfg.Journal.SnapshotInterval)
	stopSnapshots := runInBackground(ctx, snapshots.Run)
	defer stopSnapshots()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("version", a.cfg.Server.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	a.log.Info("Server has been shut down.")
	return nil
}

// runInBackground starts fn on its own goroutine. The returned stop cancels
// fn's context and blocks until fn has returned.
func runInBackground(ctx context.Context, fn func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
