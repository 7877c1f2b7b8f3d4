package population

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
)

// Engine fetches population tables. It is safe for concurrent use; every
// FetchPopulation call opens and closes its own browser session.
type Engine struct {
	launcher Launcher
	cfg      config.EngineConfig
	sel      *Selectors

	navTimeout time.Duration
	opTimeout  time.Duration

	exit func()
}

// Option customises an Engine.
type Option func(*Engine)

// WithExitFunc replaces the action taken when the force-exit watchdog fires.
func WithExitFunc(fn func()) Option {
	return func(e *Engine) { e.exit = fn }
}

// NewEngine compiles the configured selectors and returns a ready engine.
func NewEngine(l Launcher, cfg *config.Config, opts ...Option) (*Engine, error) {
	sel, err := CompileSelectors(cfg.Selectors)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		launcher:   l,
		cfg:        cfg.Engine,
		sel:        sel,
		navTimeout: cfg.Browser.NavigationTimeout,
		opTimeout:  cfg.Browser.PageTimeout,
		exit:       forceExit,
	}
	if e.cfg.MaxPages <= 0 {
		slog.Warn("non-positive page cap, using default",
			"maxPages", e.cfg.MaxPages,
			"default", config.DefaultMaxPages,
		)
		e.cfg.MaxPages = config.DefaultMaxPages
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func forceExit() {
	slog.Error("force-exit timeout reached, terminating process")
	os.Exit(2)
}

// FetchPopulation scrapes every page of the population table at url and
// returns the deduplicated records. It always returns a result: launch
// failures, timeouts and unexpected faults produce a partial or empty
// result with Error set instead of an error value.
//
// Lifecycle:
//
//  1. Watchdogs      – global soft timeout (ctx) + force-exit timer
//  2. Open session   – launch/connect the browser
//  3. DEFER: close   – exactly once, on every exit path
//  4. Page 1         – arm, navigate, wait, fall back, resolve bounds
//  5. Pages 2..N     – bounded by min(ceil(total/size), MaxPages)
//  6. Finalize       – deduplicate and assemble
func (e *Engine) FetchPopulation(ctx context.Context, url string) (result *models.PopulationResult) {
	start := time.Now()
	state := &ScrapeState{}
	pages := 0

	// ── 1. Watchdogs ──────────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GlobalTimeout)
	defer cancel()

	watchdog := time.AfterFunc(e.cfg.ForceExitTimeout, e.exit)
	defer watchdog.Stop()

	slog.Info("population fetch starting",
		"url", url,
		"globalTimeout", e.cfg.GlobalTimeout,
		"maxPages", e.cfg.MaxPages,
	)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("population fetch panicked",
				"url", url,
				"panic", r,
				"currentPage", state.CurrentPage,
				"totalRecords", state.TotalRecords,
				"pageSize", state.PageSize,
				"collected", len(state.Collected),
				"stack", string(debug.Stack()),
			)
			result = e.assemble(state, pages, start,
				models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("unexpected fault: %v", r), nil))
		}
	}()

	// ── 2. Open session ───────────────────────────────────────────────
	session, err := e.launcher.Open(ctx)
	if err != nil {
		return e.assemble(state, pages, start, asScrapeError(err, models.ErrCodeLaunch, "failed to open browser session"))
	}

	// ── 3. CRITICAL DEFER: close the session exactly once ─────────────
	defer session.Close()

	page, err := session.NewPage(ctx)
	if err != nil {
		return e.assemble(state, pages, start, asScrapeError(err, models.ErrCodeLaunch, "failed to open page"))
	}

	r := e.newRun(page, state)
	defer r.icpt.Disarm()

	// ── 4. Page 1 ─────────────────────────────────────────────────────
	r.firstPage(ctx, url)
	pages = 1
	r.debug.Capture(ctx, page, "initial-load")

	bound := pageBound(state.TotalRecords, state.PageSize, len(state.Collected), e.cfg.MaxPages)
	slog.Info("page bound resolved",
		"totalRecords", state.TotalRecords,
		"pageSize", state.PageSize,
		"collected", len(state.Collected),
		"bound", bound,
	)

	// ── 5. Remaining pages ────────────────────────────────────────────
	pages += r.remainingPages(ctx, bound)

	// ── 6. Finalize ───────────────────────────────────────────────────
	var truncated *models.ScrapeError
	if ctx.Err() != nil {
		truncated = categorizeError(ctx.Err(), "fetch truncated by global timeout")
	}
	return e.assemble(state, pages, start, truncated)
}

// assemble deduplicates the collection and builds the caller-facing result.
func (e *Engine) assemble(state *ScrapeState, pages int, start time.Time, fault *models.ScrapeError) *models.PopulationResult {
	final := RemoveDuplicates(state.Collected)

	total := state.TotalRecords
	if total == 0 {
		total = len(final)
	}

	res := &models.PopulationResult{
		Records:         final,
		RecordsTotal:    total,
		RecordsFiltered: len(final),
		Pages:           pages,
		DurationMs:      time.Since(start).Milliseconds(),
	}
	if fault != nil {
		res.Error = fault.ToDetail()
		slog.Error("population fetch ended early",
			"error", fault,
			"collected", len(state.Collected),
		)
	}

	completion := 0.0
	if res.RecordsTotal > 0 {
		completion = float64(res.RecordsFiltered) / float64(res.RecordsTotal) * 100
	}
	slog.Info("population fetch finished",
		"recordsTotal", res.RecordsTotal,
		"recordsFiltered", res.RecordsFiltered,
		"pages", pages,
		"completionPct", fmt.Sprintf("%.1f", completion),
		"durationMs", res.DurationMs,
	)
	return res
}

// pageBound is the number of pages to visit: ceil(total/pageSize) when
// both are known, 1 when only page-1 data exists, 0 when nothing was
// found, never more than maxPages. A non-positive maxPages means the default
// cap, never an unbounded walk.
func pageBound(total, pageSize, collected, maxPages int) int {
	if maxPages <= 0 {
		maxPages = config.DefaultMaxPages
	}
	expected := 0
	switch {
	case total > 0 && pageSize > 0:
		expected = (total + pageSize - 1) / pageSize
	case collected > 0:
		expected = 1
	}
	if expected > maxPages {
		slog.Info("limiting pages", "expected", expected, "maxPages", maxPages)
		expected = maxPages
	}
	return expected
}

// asScrapeError keeps an existing ScrapeError or wraps err with code.
func asScrapeError(err error, code, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return categorizeError(err, msg)
	}
	return models.NewScrapeError(code, msg, err)
}

// categorizeError maps context errors to the timeout code.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "fetch canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
