package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"github.com/use-agent/popharvest/population"
	"github.com/ysmood/gson"
)

// navigationHeaders are sent with every request so the first load looks
// like a user-typed navigation.
var navigationHeaders = map[string]string{
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Upgrade-Insecure-Requests": "1",
}

// Page wraps a rod page. Each call binds ctx to the underlying page and
// falls back to the configured per-operation timeout when ctx has no
// deadline of its own.
type Page struct {
	page *rod.Page
	cfg  config.BrowserConfig
}

// NewPage opens a tab configured with viewport, user agent, locale and
// navigation headers. With Stealth enabled the go-rod/stealth evasions
// are installed before any navigation.
//
// Setup order:
//
//  1. Create target  – stealth.Page injects its script on new documents
//  2. Viewport + UA  – Accept-Language rides on the UA override
//  3. Extra headers  – Sec-Fetch-* navigation headers
//  4. Network domain – enabled up front for response observation
func (s *Session) NewPage(ctx context.Context) (population.Page, error) {
	b := s.browser.Context(ctx)

	// ── 1. Create target ──────────────────────────────────────────────
	var (
		rp  *rod.Page
		err error
	)
	if s.cfg.Stealth {
		rp, err = stealth.Page(b)
	} else {
		rp, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to create page", err)
	}
	rp = rp.Context(context.Background())
	s.track(rp)

	// ── 2. Viewport + user agent ──────────────────────────────────────
	if err := rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to set viewport", err)
	}
	if s.cfg.UserAgent != "" {
		if err := rp.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      s.cfg.UserAgent,
			AcceptLanguage: s.cfg.AcceptLanguage,
		}); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to set user agent", err)
		}
	}

	// ── 3. Extra headers ──────────────────────────────────────────────
	headers := make(map[string]string, len(navigationHeaders)+1)
	for k, v := range navigationHeaders {
		headers[k] = v
	}
	if s.cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = s.cfg.AcceptLanguage
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(rp)

	// ── 4. Network domain ─────────────────────────────────────────────
	if err := (proto.NetworkEnable{}).Call(rp); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to enable network events", err)
	}

	return &Page{page: rp, cfg: s.cfg}, nil
}

// with binds ctx to the page, applying PageTimeout when ctx has no deadline.
func (p *Page) with(ctx context.Context) (*rod.Page, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && p.cfg.PageTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, p.cfg.PageTimeout)
		return p.page.Context(ctx), cancel
	}
	return p.page.Context(ctx), func() {}
}

// Navigate loads url and waits for the load event. It uses the navigation
// timeout rather than the per-operation one.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if _, ok := ctx.Deadline(); !ok && p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}
	rp := p.page.Context(ctx)
	if err := rp.Navigate(url); err != nil {
		return err
	}
	return rp.WaitLoad()
}

// HTML returns the rendered document.
func (p *Page) HTML(ctx context.Context) (string, error) {
	rp, cancel := p.with(ctx)
	defer cancel()
	return rp.HTML()
}

// WaitSettled waits for the DOM to stop changing.
func (p *Page) WaitSettled(ctx context.Context) error {
	rp, cancel := p.with(ctx)
	defer cancel()
	return rp.WaitDOMStable(300*time.Millisecond, 0.1)
}

// Screenshot captures the full page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	rp, cancel := p.with(ctx)
	defer cancel()
	return rp.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
