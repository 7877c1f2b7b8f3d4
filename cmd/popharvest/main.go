package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/use-agent/popharvest/browser"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/population"
)

var rootCmd = &cobra.Command{
	Use:   "popharvest",
	Short: "popharvest collects grading-population tables with a headless browser.",
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newEngine wires the Rod browser manager into the population engine.
func newEngine(cfg *config.Config) (*population.Engine, error) {
	eng, err := population.NewEngine(browser.NewManager(cfg.Browser), cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise engine: %w", err)
	}
	return eng, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
