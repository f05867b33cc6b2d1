package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/clock-auction/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the auction HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Server.AdminKey == "" {
				slog.Warn("AUCTIONSIM_ADMIN_KEY not set, market control endpoints will be disabled")
			}

			srv := &api.Server{
				Runner:   a.runner,
				Store:    a.store,
				Gatherer: a.registry,
				Port:     a.cfg.Server.Port,
				AdminKey: a.cfg.Server.AdminKey,
				Limiter:  api.NewRateLimiter(a.cfg.RateLimit.Requests, a.cfg.RateLimit.Window),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d/api/v1/auction\n", a.cfg.Server.Port)
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}

			// Let an in-flight run finish before the store closes.
			a.runner.Wait()
			slog.Info("stopped", "cause", context.Cause(ctx))
			return nil
		},
	}
}
