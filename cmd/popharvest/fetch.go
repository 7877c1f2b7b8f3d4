package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"github.com/use-agent/popharvest/population"
)

var (
	fetchMaxPages int
	fetchTimeout  time.Duration
	fetchOut      string
	fetchStats    bool
)

func init() {
	fetchCmd.Flags().IntVar(&fetchMaxPages, "max-pages", 0, "Override the page cap (0 keeps the configured value).")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 0, "Override the global fetch timeout.")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "Write the JSON result to a file instead of stdout.")
	fetchCmd.Flags().BoolVar(&fetchStats, "stats", false, "Print a summary to stderr.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Fetches one population page set and prints the records as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if fetchMaxPages > 0 {
			cfg.Engine.MaxPages = fetchMaxPages
		}
		if fetchTimeout > 0 {
			cfg.Engine.GlobalTimeout = fetchTimeout
		}

		// stdout carries the result.
		initLogger(cfg.Log, os.Stderr)

		eng, err := newEngine(cfg)
		if err != nil {
			return err
		}

		res := eng.FetchPopulation(cmd.Context(), args[0])

		var w io.Writer = os.Stdout
		if fetchOut != "" {
			f, err := os.Create(fetchOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}

		if fetchStats {
			printStats(os.Stderr, population.Summarize(res))
		}

		if models.JobStatusFor(res) == models.JobStatusFailed {
			if res != nil && res.Error != nil {
				return fmt.Errorf("fetch failed: %s: %s", res.Error.Code, res.Error.Message)
			}
			return fmt.Errorf("fetch failed")
		}
		return nil
	},
}

func printStats(w io.Writer, st population.Stats) {
	fmt.Fprintf(w, "records:      %d (%d unique, %d with spec id)\n", st.Total, st.Unique, st.WithSpecID)
	fmt.Fprintf(w, "pages:        %d\n", st.Pages)
	fmt.Fprintf(w, "population:   %d\n", st.Population)
	fmt.Fprintf(w, "success rate: %.1f%%\n", st.SuccessRate)

	labels := st.VariantLabels()
	if len(labels) == 0 {
		return
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", l, st.Variants[l]))
	}
	fmt.Fprintf(w, "variants:     %s\n", strings.Join(parts, ", "))
}
