package population

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/use-agent/popharvest/models"
)

// run drives one fetch over a single page handle. It is used by exactly
// one goroutine, which is also the only writer of state.
type run struct {
	e     *Engine
	page  Page
	state *ScrapeState
	icpt  *Interceptor
	dom   *DOMExtractor
	debug *Debugger
}

func (e *Engine) newRun(page Page, state *ScrapeState) *run {
	dbg := NewDebugger(e.cfg.DebugDir, e.opTimeout)
	return &run{
		e:     e,
		page:  page,
		state: state,
		icpt:  NewInterceptor(e.cfg.Endpoint),
		dom:   NewDOMExtractor(e.sel, e.cfg.DOMWaitTimeout, e.opTimeout, dbg),
		debug: dbg,
	}
}

// firstPage loads url, harvests page 1 and resolves the total record
// count and page size from whatever sources are available.
func (r *run) firstPage(ctx context.Context, url string) {
	if err := r.visit(ctx, 1, url); err != nil {
		slog.Error("page 1 failed", "url", url, "error", err)
	}

	if r.state.TotalRecords == 0 {
		if n := r.dom.TotalRecords(ctx, r.page); r.state.SetTotal(n) {
			slog.Info("total records read from table info", "totalRecords", n)
		} else {
			slog.Warn("total records unknown, fetch may be incomplete")
		}
	}

	if r.state.PageSize == 0 {
		r.resolvePageSize(ctx)
	}
}

// resolvePageSize infers the page size when the first data response did
// not carry one. Sources are tried in order: the page-1 record count when
// it fits within the known total, the length control, the intercepted
// count, the collected count, and finally the configured default.
func (r *run) resolvePageSize(ctx context.Context) {
	collected := len(r.state.Collected)
	total := r.state.TotalRecords

	var size int
	var source string
	switch {
	case collected > 0 && total > 0 && collected <= total:
		size, source = collected, "page-1 records"
	case collected > 0:
		if n := r.dom.PageSize(ctx, r.page); n > 0 {
			size, source = n, "length control"
		} else if r.state.InterceptedCount > 0 {
			size, source = r.state.InterceptedCount, "intercepted count"
		} else {
			size, source = collected, "collected count"
		}
	default:
		size, source = r.e.cfg.DefaultPageSize, "default"
	}

	if r.state.SetPageSize(size) {
		slog.Info("page size resolved", "pageSize", size, "source", source)
	}
}

// remainingPages visits pages 2..bound and returns how many were attempted.
// A failed page is logged and skipped; the global timeout stops the loop.
func (r *run) remainingPages(ctx context.Context, bound int) int {
	r.state.CurrentPage = 1
	if bound <= 1 {
		slog.Info("no further pages to fetch")
		return 0
	}

	visited := 0
	for n := 2; n <= bound; n++ {
		if ctx.Err() != nil {
			slog.Warn("global timeout reached, truncating pagination",
				"nextPage", n,
				"bound", bound,
				"collected", len(r.state.Collected),
			)
			break
		}

		slog.Info("processing page", "page", n, "bound", bound)
		visited++
		if err := r.visit(ctx, n, ""); err != nil {
			slog.Error("page skipped", "page", n, "error", err)
		}
		slog.Info("page done", "page", n, "collected", len(r.state.Collected))

		if n < bound {
			_ = sleepWithContext(ctx, r.e.cfg.InterPageDelay)
		}
	}
	return visited
}

// visit runs the per-page state machine:
//
//  1. Reset counters     – InterceptedCount = 0, PendingResponse = true
//  2. Arm interceptor    – fresh channel for this page only
//  3. Navigate           – URL load for page 1, pagination control after
//  4. Await response     – bounded; a timeout is not fatal
//  5. Challenge check    – wait once, then fail the page
//  6. DOM fallback       – only when nothing was intercepted
//  7. Verify indicator   – a mismatch is logged, not fatal
func (r *run) visit(ctx context.Context, n int, url string) error {
	// ── 1. Reset per-page counters ────────────────────────────────────
	r.state.beginPage()

	// ── 2. Arm interceptor ────────────────────────────────────────────
	ch, err := r.icpt.Arm(r.page, n)
	if err != nil {
		slog.Warn("interception unavailable, relying on DOM", "page", n, "error", err)
	}

	// ── 3. Navigate ───────────────────────────────────────────────────
	if err := r.navigate(ctx, n, url); err != nil {
		if n > 1 {
			r.state.PendingResponse = false
			return err
		}
		// Page 1 may have rendered enough to extract despite the error.
		slog.Error("initial navigation failed, continuing", "url", url, "error", err)
	}

	// ── 4. Await the data response ────────────────────────────────────
	r.awaitResponse(ctx, ch, n)

	// ── 5. Challenge check ────────────────────────────────────────────
	if r.challenged(ctx, n) {
		r.drain(ch)
		return models.NewScrapeError(models.ErrCodeChallenge,
			fmt.Sprintf("challenge persisted on page %d", n), nil)
	}
	r.drain(ch)

	// ── 6. DOM fallback ───────────────────────────────────────────────
	if r.state.InterceptedCount == 0 && ctx.Err() == nil {
		slog.Warn("no intercepted data, falling back to DOM", "page", n)
		if recs := r.dom.ExtractData(ctx, r.page, n); len(recs) > 0 {
			r.state.Append(recs)
		} else {
			slog.Warn("DOM fallback yielded no data", "page", n)
		}
	}

	// ── 7. Verify the page indicator ──────────────────────────────────
	if ctx.Err() == nil {
		if shown := r.dom.CurrentPage(ctx, r.page); shown != n {
			slog.Error("page indicator mismatch", "expected", n, "shown", shown)
			r.debug.Capture(ctx, r.page, fmt.Sprintf("page-mismatch-page%d", n))
		}
	}

	r.state.CurrentPage = n
	return nil
}

// navigate loads url for page 1. For later pages it clicks "next" when the
// table sits on the previous page, otherwise it selects the page number
// directly. Navigation is skipped when the indicator already shows n.
func (r *run) navigate(ctx context.Context, n int, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.e.navTimeout)
	defer cancel()

	if n == 1 {
		if err := r.page.Navigate(navCtx, url); err != nil {
			return categorizeError(err, "navigation to population page failed")
		}
		return nil
	}

	current := r.dom.CurrentPage(ctx, r.page)
	if current == n {
		slog.Info("already on target page, skipping navigation", "page", n)
		return nil
	}

	sel := r.e.sel.cfg
	clicked := false
	if current == n-1 {
		ok, err := r.page.Click(navCtx, sel.Next)
		if err != nil {
			slog.Warn("next button click failed", "page", n, "error", err)
		}
		clicked = ok
	}
	if !clicked {
		ok, err := r.page.SelectValue(navCtx, sel.PageIndicator, strconv.Itoa(n))
		if err != nil {
			return categorizeError(err, fmt.Sprintf("pagination to page %d failed", n))
		}
		if !ok {
			return models.NewScrapeError(models.ErrCodeNavigation,
				fmt.Sprintf("no pagination control for page %d", n), nil)
		}
	}

	if err := r.page.WaitSettled(navCtx); err != nil {
		slog.Debug("page did not settle, proceeding with current DOM", "page", n, "error", err)
	}
	return sleepWithContext(ctx, r.e.cfg.SettleDelay)
}

// awaitResponse blocks until the first data response for page n arrives,
// the response timeout elapses, or ctx is done. PendingResponse is always
// cleared on return.
func (r *run) awaitResponse(ctx context.Context, ch <-chan Intercepted, n int) {
	defer func() { r.state.PendingResponse = false }()
	if ch == nil {
		return
	}

	timeout := r.e.cfg.PendingResponseTimeout
	if n == 1 {
		timeout = r.e.cfg.InitialResponseTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		r.apply(msg)
	case <-timer.C:
		slog.Warn("data response did not arrive in time", "page", n, "timeout", timeout)
	case <-ctx.Done():
		slog.Warn("stopped waiting for data response", "page", n, "error", ctx.Err())
	}
}

// drain applies any further responses already queued for this page.
func (r *run) drain(ch <-chan Intercepted) {
	if ch == nil {
		return
	}
	for {
		select {
		case msg := <-ch:
			r.apply(msg)
		default:
			return
		}
	}
}

// apply folds one intercepted response into state. Fields are updated
// before PendingResponse is cleared.
func (r *run) apply(msg Intercepted) {
	if msg.Err != nil {
		slog.Warn("unusable data response", "page", msg.Page, "error", msg.Err)
		r.state.PendingResponse = false
		return
	}

	if r.state.SetTotal(msg.RecordsTotal) {
		slog.Info("total records from data response", "totalRecords", msg.RecordsTotal)
	}
	if msg.Page == 1 && r.state.SetPageSize(msg.PageSize) {
		slog.Info("page size from data response", "pageSize", msg.PageSize)
	}

	recs := FormatResponseData(msg.Items)
	r.state.Append(recs)
	r.state.InterceptedCount += len(recs)

	slog.Info("intercepted data response",
		"page", msg.Page,
		"items", len(msg.Items),
		"records", len(recs),
		"skipped", msg.Skipped,
	)
	r.state.PendingResponse = false
}

// challenged reports whether page n is stuck behind a challenge. A
// challenge gets one extended wait before the page is given up.
func (r *run) challenged(ctx context.Context, n int) bool {
	if ctx.Err() != nil || !r.dom.ChallengePresent(ctx, r.page) {
		return false
	}

	slog.Warn("challenge page detected, waiting", "page", n, "wait", r.e.cfg.ChallengeWait)
	r.debug.Capture(ctx, r.page, fmt.Sprintf("challenge-page%d", n))
	if err := sleepWithContext(ctx, r.e.cfg.ChallengeWait); err != nil {
		return true
	}

	if r.dom.ChallengePresent(ctx, r.page) {
		slog.Error("challenge persisted after waiting", "page", n)
		return true
	}
	slog.Info("challenge cleared", "page", n)
	return false
}

// sleepWithContext pauses for d unless ctx finishes first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
