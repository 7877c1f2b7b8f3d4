package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Engine.GlobalTimeout != 3*time.Minute || cfg.Engine.ForceExitTimeout != 10*time.Minute {
		t.Errorf("unexpected watchdog defaults: %v / %v", cfg.Engine.GlobalTimeout, cfg.Engine.ForceExitTimeout)
	}
	if cfg.Engine.MaxPages != 10 || cfg.Engine.DefaultPageSize != 300 {
		t.Errorf("unexpected pagination defaults: %d / %d", cfg.Engine.MaxPages, cfg.Engine.DefaultPageSize)
	}
	if cfg.Engine.Endpoint != "/Pop/GetSetItems" {
		t.Errorf("Endpoint = %q", cfg.Engine.Endpoint)
	}
	if cfg.Browser.InterceptRequests {
		t.Error("request hijacking must be off by default")
	}
	if cfg.Schedule.Enabled || cfg.Schedule.Spec != "0 0 * * *" {
		t.Errorf("unexpected schedule defaults %+v", cfg.Schedule)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POP_MAX_PAGES", "4")
	t.Setenv("POP_GLOBAL_TIMEOUT", "90s")
	t.Setenv("POP_HEADLESS", "false")
	t.Setenv("POP_RATE_RPS", "2.5")
	t.Setenv("POP_API_KEYS", " a, ,b ")
	t.Setenv("POP_CHALLENGE_TITLES", "Just a moment,Attention Required")
	t.Setenv("POP_DEFAULT_PAGE_SIZE", "not-a-number")

	cfg := Load()

	if cfg.Engine.MaxPages != 4 {
		t.Errorf("MaxPages = %d, want 4", cfg.Engine.MaxPages)
	}
	if cfg.Engine.GlobalTimeout != 90*time.Second {
		t.Errorf("GlobalTimeout = %v, want 90s", cfg.Engine.GlobalTimeout)
	}
	if cfg.Browser.Headless {
		t.Error("Headless should be false")
	}
	if cfg.RateLimit.RequestsPerSecond != 2.5 {
		t.Errorf("RequestsPerSecond = %v, want 2.5", cfg.RateLimit.RequestsPerSecond)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cfg.Auth.APIKeys); diff != "" {
		t.Errorf("APIKeys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Just a moment", "Attention Required"}, cfg.Selectors.ChallengeTitles); diff != "" {
		t.Errorf("ChallengeTitles mismatch (-want +got):\n%s", diff)
	}
	if cfg.Engine.DefaultPageSize != 300 {
		t.Errorf("malformed override should fall back, got %d", cfg.Engine.DefaultPageSize)
	}
}

func TestLoad_MaxPagesCannotDisableCap(t *testing.T) {
	for _, v := range []string{"0", "-3"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("POP_MAX_PAGES", v)
			if got := Load().Engine.MaxPages; got != DefaultMaxPages {
				t.Errorf("MaxPages = %d, want %d", got, DefaultMaxPages)
			}
		})
	}
}
