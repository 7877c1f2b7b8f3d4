package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/popharvest/api"
	"github.com/use-agent/popharvest/api/handler"
	"github.com/use-agent/popharvest/cache"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/schedule"
	"github.com/use-agent/popharvest/webhook"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API and, when enabled, the scheduled fetch runner.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("popharvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Engine.MaxPages,
	)

	// ── 3. Initialise engine (browser launched per fetch) ───────────
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	// ── 4. Initialise cache, webhook client and job store ───────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()

	wh := webhook.New(cfg.Webhook)
	jobs := handler.NewJobStore(eng, wh, cfg.Jobs)
	defer jobs.Stop()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 5. Scheduled runner ─────────────────────────────────────────
	if cfg.Schedule.Enabled {
		runner := schedule.New(eng, wh, cfg.Schedule)
		if err := runner.Start(ctx); err != nil {
			return err
		}
	}

	// ── 6. Setup router and start HTTP server ───────────────────────
	router := api.NewRouter(eng, jobs, cc, cfg, time.Now())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// Give in-flight requests 5 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("popharvest stopped")
	return nil
}
