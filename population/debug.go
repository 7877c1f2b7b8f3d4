package population

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Debugger writes checkpoint screenshots to a directory. A nil Debugger or
// one with an empty directory does nothing.
type Debugger struct {
	dir     string
	timeout time.Duration
}

// NewDebugger returns a Debugger writing into dir, or nil when dir is empty.
func NewDebugger(dir string, timeout time.Duration) *Debugger {
	if dir == "" {
		return nil
	}
	return &Debugger{dir: dir, timeout: timeout}
}

// Capture saves a screenshot named <name>-<unix>.png. Failures are logged
// and never returned.
func (d *Debugger) Capture(ctx context.Context, page Page, name string) {
	if d == nil || page == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	png, err := page.Screenshot(ctx)
	if err != nil {
		slog.Warn("debug screenshot failed", "name", name, "error", err)
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		slog.Warn("debug screenshot dir unavailable", "dir", d.dir, "error", err)
		return
	}
	path := filepath.Join(d.dir, fmt.Sprintf("%s-%d.png", name, time.Now().Unix()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		slog.Warn("debug screenshot write failed", "path", path, "error", err)
		return
	}
	slog.Debug("debug screenshot saved", "path", path)
}
