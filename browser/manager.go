package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"github.com/use-agent/popharvest/population"
)

// Manager opens one browser session per fetch. It is safe for concurrent use.
type Manager struct {
	cfg config.BrowserConfig
}

// NewManager creates a Manager. No browser is started until Open.
func NewManager(cfg config.BrowserConfig) *Manager {
	return &Manager{cfg: cfg}
}

// Open launches (or connects to) a browser, bounded by LaunchTimeout.
// The launcher runs under a launch-scoped context, so a timeout or cancel
// also aborts a pending binary download. A browser that comes up after
// Open gave up is killed and its profile removed.
func (m *Manager) Open(ctx context.Context) (population.Session, error) {
	if m.cfg.ControlURL != "" {
		return m.connect(ctx, m.cfg.ControlURL, nil)
	}

	launchCtx, cancel := context.WithTimeout(ctx, m.cfg.LaunchTimeout)
	defer cancel()

	l := m.newLauncher().Context(launchCtx)

	done := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		done <- launched{u, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			l.Kill()
			return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to launch browser", res.err)
		}
		slog.Info("browser launched", "controlURL", res.url)
		return m.connect(ctx, res.url, l)
	case <-launchCtx.Done():
		l.Kill()
		go reapLate(l, done)
		if ctx.Err() != nil {
			return nil, models.NewScrapeError(models.ErrCodeLaunch, "browser launch canceled", ctx.Err())
		}
		return nil, models.NewScrapeError(models.ErrCodeLaunch,
			fmt.Sprintf("browser launch timed out after %s", m.cfg.LaunchTimeout), launchCtx.Err())
	}
}

// launched is the outcome of one Launch call.
type launched struct {
	url string
	err error
}

// reapLate waits for an abandoned Launch and kills whatever it started.
func reapLate(l *launcher.Launcher, done <-chan launched) {
	if res := <-done; res.err == nil {
		slog.Warn("browser came up after launch was abandoned, killing it", "controlURL", res.url)
		l.Kill()
		l.Cleanup()
	}
}

func (m *Manager) newLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.Proxy != "" {
		l = l.Proxy(m.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-accelerated-2d-canvas"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight))

	return l
}

// connect attaches to controlURL. l is nil when the browser is not ours
// to kill.
func (m *Manager) connect(ctx context.Context, controlURL string, l *launcher.Launcher) (population.Session, error) {
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, models.NewScrapeError(models.ErrCodeLaunch, "failed to connect to browser", err)
	}
	return &Session{
		browser:  b.Context(context.Background()),
		launcher: l,
		cfg:      m.cfg,
	}, nil
}

// Session is one browser process (or one remote connection) and the
// pages opened on it.
type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig

	mu    sync.Mutex
	pages []*rod.Page
	once  sync.Once
}

// Close shuts the session down once. The browser's own close races
// CloseTimeout; errors and timeouts are logged and never returned.
func (s *Session) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		pages := s.pages
		s.pages = nil
		s.mu.Unlock()

		done := make(chan error, 1)
		go func() {
			if s.launcher == nil {
				// Remote browser: close our tabs, keep the process.
				var errs []error
				for _, p := range pages {
					errs = append(errs, p.Close())
				}
				done <- errors.Join(errs...)
				return
			}
			done <- s.browser.Close()
		}()

		timer := time.NewTimer(s.cfg.CloseTimeout)
		defer timer.Stop()

		select {
		case err := <-done:
			if err != nil {
				slog.Warn("browser close reported an error", "error", err)
			} else {
				slog.Info("browser closed")
			}
		case <-timer.C:
			slog.Error("browser close timed out", "timeout", s.cfg.CloseTimeout)
		}

		if s.launcher != nil {
			s.launcher.Kill()
			go s.launcher.Cleanup()
		}
	})
}

func (s *Session) track(p *rod.Page) {
	s.mu.Lock()
	s.pages = append(s.pages, p)
	s.mu.Unlock()
}
