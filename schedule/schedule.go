package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"github.com/use-agent/popharvest/webhook"
)

// Fetcher runs one population fetch.
type Fetcher interface {
	FetchPopulation(ctx context.Context, url string) *models.PopulationResult
}

// Deliverer posts a finished result somewhere.
type Deliverer interface {
	Deliver(ctx context.Context, url, secret string, event *webhook.Event) error
}

// Outcome summarises one URL of a scheduled pass.
type Outcome struct {
	URL     string
	Status  string
	Records int
	Err     error
}

// Runner fetches the configured URLs on a cron schedule and pushes each
// result to the configured webhook. Passes never overlap.
type Runner struct {
	fetch   Fetcher
	deliver Deliverer
	cfg     config.ScheduleConfig

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a Runner. deliver may be nil when no webhook is configured.
func New(fetch Fetcher, deliver Deliverer, cfg config.ScheduleConfig) *Runner {
	return &Runner{fetch: fetch, deliver: deliver, cfg: cfg}
}

// Start registers the cron entry and begins ticking. The runner stops
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if len(r.cfg.URLs) == 0 {
		return errors.New("schedule: no URLs configured")
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(r.cfg.Spec, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule: invalid spec %q: %w", r.cfg.Spec, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	slog.Info("schedule started", "spec", r.cfg.Spec, "urls", len(r.cfg.URLs))

	if r.cfg.RunOnStart {
		go r.RunOnce(ctx)
	}

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the cron and waits for a running pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	slog.Info("schedule stopped")
}

// RunOnce fetches every configured URL in order.
func (r *Runner) RunOnce(ctx context.Context) []Outcome {
	start := time.Now()
	outcomes := make([]Outcome, 0, len(r.cfg.URLs))

	for _, url := range r.cfg.URLs {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, r.runURL(ctx, url))
	}

	slog.Info("scheduled pass finished",
		"urls", len(outcomes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outcomes
}

func (r *Runner) runURL(ctx context.Context, url string) Outcome {
	res := r.fetch.FetchPopulation(ctx, url)
	status := models.JobStatusFor(res)

	out := Outcome{URL: url, Status: status}
	if res != nil {
		out.Records = len(res.Records)
	}

	slog.Info("scheduled fetch done",
		"url", url,
		"status", status,
		"records", out.Records,
	)

	if r.deliver == nil || r.cfg.WebhookURL == "" {
		return out
	}

	eventType := webhook.EventPopulationCompleted
	if status == models.JobStatusFailed {
		eventType = webhook.EventPopulationFailed
	}
	event := &webhook.Event{
		Type:      eventType,
		URL:       url,
		Timestamp: time.Now().Unix(),
		Data:      res,
	}
	if err := r.deliver.Deliver(ctx, r.cfg.WebhookURL, r.cfg.WebhookSecret, event); err != nil {
		slog.Error("scheduled delivery failed", "url", url, "error", err)
		out.Err = err
	}
	return out
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
