package population

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type shotPage struct {
	*fakePage
	png []byte
}

func (p *shotPage) Screenshot(ctx context.Context) ([]byte, error) { return p.png, nil }

func TestDebugger_Disabled(t *testing.T) {
	if d := NewDebugger("", time.Second); d != nil {
		t.Fatal("empty dir should disable the debugger")
	}
	var d *Debugger
	d.Capture(context.Background(), newFakePage(nil), "noop")
}

func TestDebugger_Capture(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	d := NewDebugger(dir, time.Second)

	d.Capture(context.Background(), &shotPage{fakePage: newFakePage(nil), png: []byte("png")}, "initial-load")

	matches, err := filepath.Glob(filepath.Join(dir, "initial-load-*.png"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one screenshot, found %d", len(matches))
	}
	b, err := os.ReadFile(matches[0])
	if err != nil || string(b) != "png" {
		t.Errorf("screenshot content = %q, %v", b, err)
	}
}

func TestDebugger_ScreenshotFailureIgnored(t *testing.T) {
	dir := t.TempDir()
	d := NewDebugger(dir, time.Second)

	d.Capture(context.Background(), newFakePage(nil), "broken")

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("failed capture wrote %d files", len(entries))
	}
}
