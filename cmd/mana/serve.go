package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/manaxbt/manaonsol/internal/api"
	"github.com/manaxbt/manaonsol/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and scheduled maintenance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error { return serve(cmd.Context(), a) })
		},
	})
}

func serve(ctx context.Context, a *app) error {
	logger := a.logger
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Prompts.Watch {
		go func() {
			if err := a.prompts.Watch(ctx); err != nil {
				logger.Warn("prompt watch stopped", zap.Error(err))
			}
		}()
	}

	if cronSpec := a.cfg.Maintenance.CleanupSchedule; cronSpec != "" {
		days := a.cfg.Ledger.RetentionDays
		sched, err := newSchedule(cronSpec, func(ctx context.Context) error {
			err := a.ledger.CleanupOldTweets(ctx, days)
			if errors.Is(err, ledger.ErrCleanupInProgress) {
				logger.Info("cleanup already running, skipping scheduled run")
				return nil
			}
			return err
		}, logger)
		if err != nil {
			return err
		}
		go sched.run(ctx)
		logger.Info("scheduled tweet cleanup", zap.String("schedule", cronSpec), zap.Int("retention_days", days))
	}

	handler := api.NewHandler(a.kb, a.ledger, a.assembler, a.generator, a.registry, logger).
		WithRetention(a.cfg.Ledger.RetentionDays)

	port := a.cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mana listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down mana")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
