// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

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
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/decrypt/api"
	"github.com/luxfi/decrypt/healthcheck"
	"github.com/luxfi/decrypt/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the decryption HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		logger.Info("Initializing decryptd", zap.String("version", version))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		registry := metrics.NewRegistry()
		svc, err := newService(ctx, logger, cfg, registry)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn("Failed to close service", zap.Error(err))
			}
		}()

		router := api.NewRouter(
			logger.Named("api"),
			svc.orchestrator,
			healthcheck.Path,
			healthcheck.NewHandler(healthcheck.StoreCheck(svc.store)),
		)
		servers := []*http.Server{{
			Addr:              fmt.Sprintf(":%d", cfg.APIPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}}
		if cfg.MetricsPort != 0 {
			servers = append(servers, metrics.NewServer(cfg.MetricsPort, registry))
		}

		logger.Info("Initialization complete",
			zap.Uint16("apiPort", cfg.APIPort),
			zap.Uint16("metricsPort", cfg.MetricsPort),
		)
		errGroup, ctx := errgroup.WithContext(ctx)
		for _, srv := range servers {
			errGroup.Go(func() error {
				return serve(ctx, srv)
			})
		}
		if err := errGroup.Wait(); err != nil {
			logger.Error("Exited with error", zap.Error(err))
			return err
		}
		logger.Info("Shut down")
		return nil
	},
}

// serve runs srv until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *http.Server) error {
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
