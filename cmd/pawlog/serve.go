package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := a.server()
			if err != nil {
				return err
			}

			// No write timeout: view streams stay open for as long as the client listens.
			httpServer := &http.Server{
				Addr:              a.cfg.Addr(),
				Handler:           srv.Router(),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				a.logger.Info("pawlog running", "addr", httpServer.Addr, "local_mode", a.cfg.LocalMode(), "sync_mode", a.cfg.SyncMode)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return shutdown(shutdownCtx, httpServer, srv)
			})

			if a.cfg.ReconcileInterval > 0 {
				g.Go(func() error {
					srv.Reconciler().Loop(gctx, a.cfg.ReconcileInterval)
					return nil
				})
			}

			g.Go(func() error {
				return srv.BackupManager().Run(gctx, a.cfg.BackupInterval)
			})

			if relay := srv.Relay(); relay != nil {
				g.Go(func() error {
					if err := relay.Run(gctx); err != nil {
						a.logger.Error("change relay stopped; streams only see local writes", "error", err)
					}
					return nil
				})
			}

			if limiter := srv.RateLimiter(); limiter != nil {
				g.Go(func() error {
					limiter.Run(gctx)
					return nil
				})
			}

			return g.Wait()
		},
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the HTTP listener, then waits for sync jobs and closes the
// server's connections. The second step runs even when the first fails.
func shutdown(ctx context.Context, httpServer, srv shutdowner) error {
	var httpErr error
	if err := httpServer.Shutdown(ctx); err != nil {
		httpErr = fmt.Errorf("http shutdown: %w", err)
	}
	return errors.Join(httpErr, srv.Shutdown(ctx))
}
