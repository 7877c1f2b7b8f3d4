package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Engine    EngineConfig
	Selectors SelectorConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Jobs      JobsConfig
	Webhook   WebhookConfig
	Schedule  ScheduleConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser session opened for every fetch.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string

	// Proxy is the proxy URL handed to the launcher.
	Proxy string

	// Stealth injects the go-rod/stealth evasions into every page.
	Stealth bool // default: true

	// InterceptRequests mounts a pass-through hijack router on every page.
	InterceptRequests bool // default: false

	UserAgent      string
	AcceptLanguage string // default: "en-US,en;q=0.9"
	ViewportWidth  int    // default: 1920
	ViewportHeight int    // default: 1080

	LaunchTimeout     time.Duration // default: 60s
	NavigationTimeout time.Duration // default: 90s
	PageTimeout       time.Duration // default: 30s
	CloseTimeout      time.Duration // default: 5s
}

// DefaultMaxPages is the page cap applied when none, or a non-positive
// one, is configured.
const DefaultMaxPages = 10

// EngineConfig controls the population fetch loop.
type EngineConfig struct {
	// GlobalTimeout truncates pagination and returns a partial result.
	GlobalTimeout time.Duration // default: 3m

	// ForceExitTimeout terminates the process if a fetch hangs past it.
	ForceExitTimeout time.Duration // default: 10m

	// InitialResponseTimeout bounds the wait for the first page's data response.
	InitialResponseTimeout time.Duration // default: 10s

	// PendingResponseTimeout bounds the wait for every later page's response.
	PendingResponseTimeout time.Duration // default: 15s

	// DOMWaitTimeout bounds the wait for table rows before DOM extraction.
	DOMWaitTimeout time.Duration // default: 10s

	// ChallengeWait is how long a challenge page is given to clear.
	ChallengeWait time.Duration // default: 15s

	// SettleDelay is slept after every pagination action.
	SettleDelay time.Duration // default: 3s

	// InterPageDelay spaces consecutive page navigations.
	InterPageDelay time.Duration // default: 2s

	// MaxPages caps the number of pages visited per fetch. Non-positive
	// values fall back to DefaultMaxPages; the cap cannot be disabled.
	MaxPages int // default: 10

	// DefaultPageSize is used when no page size can be inferred.
	DefaultPageSize int // default: 300

	// Endpoint is the URL substring identifying the table's data request.
	Endpoint string // default: "/Pop/GetSetItems"

	// DebugDir receives checkpoint screenshots. Empty disables them.
	DebugDir string
}

// SelectorConfig locates the DataTables widgets on the population page.
type SelectorConfig struct {
	Info            string   // default: ".dataTables_info"
	Length          string   // default: "select[name='tablePSA_length']"
	Rows            string   // default: "#tablePSA tbody tr"
	PageIndicator   string   // default: "select.paginate_input"
	Next            string   // default: "a#tablePSA_next"
	ChallengeMarker string   // default: "#challenge-running"
	ChallengeTitles []string // default: ["Just a moment"]
	FooterMarkers   []string // default: ["TOTAL POPULATION"]
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the population result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 200
}

// JobsConfig controls background population jobs.
type JobsConfig struct {
	// MaxConcurrent is the number of fetches allowed to run at once.
	MaxConcurrent int // default: 2

	// TTL is how long finished jobs stay queryable.
	TTL time.Duration // default: 1h
}

// WebhookConfig controls result delivery.
type WebhookConfig struct {
	Timeout        time.Duration // default: 10s
	MaxRetries     int           // default: 3
	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // default: 30s
}

// ScheduleConfig controls the periodic fetch runner.
type ScheduleConfig struct {
	Enabled bool
	URLs    []string

	// Spec is a standard 5-field cron expression.
	Spec string // default: "0 0 * * *"

	// RunOnStart triggers one pass immediately when the runner starts.
	RunOnStart bool

	WebhookURL    string
	WebhookSecret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("POP_HOST", "0.0.0.0"),
			Port: envIntOr("POP_PORT", 8080),
			Mode: envOr("POP_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("POP_HEADLESS", true),
			NoSandbox:         envBoolOr("POP_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("POP_BROWSER_BIN"),
			ControlURL:        os.Getenv("POP_CDP_URL"),
			Proxy:             os.Getenv("POP_PROXY"),
			Stealth:           envBoolOr("POP_STEALTH", true),
			InterceptRequests: envBoolOr("POP_INTERCEPT_REQUESTS", false),
			UserAgent: envOr("POP_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"),
			AcceptLanguage:    envOr("POP_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			ViewportWidth:     envIntOr("POP_VIEWPORT_WIDTH", 1920),
			ViewportHeight:    envIntOr("POP_VIEWPORT_HEIGHT", 1080),
			LaunchTimeout:     envDurationOr("POP_LAUNCH_TIMEOUT", 60*time.Second),
			NavigationTimeout: envDurationOr("POP_NAV_TIMEOUT", 90*time.Second),
			PageTimeout:       envDurationOr("POP_PAGE_TIMEOUT", 30*time.Second),
			CloseTimeout:      envDurationOr("POP_CLOSE_TIMEOUT", 5*time.Second),
		},
		Engine: EngineConfig{
			GlobalTimeout:          envDurationOr("POP_GLOBAL_TIMEOUT", 3*time.Minute),
			ForceExitTimeout:       envDurationOr("POP_FORCE_EXIT_TIMEOUT", 10*time.Minute),
			InitialResponseTimeout: envDurationOr("POP_INITIAL_RESPONSE_TIMEOUT", 10*time.Second),
			PendingResponseTimeout: envDurationOr("POP_PENDING_RESPONSE_TIMEOUT", 15*time.Second),
			DOMWaitTimeout:         envDurationOr("POP_DOM_WAIT_TIMEOUT", 10*time.Second),
			ChallengeWait:          envDurationOr("POP_CHALLENGE_WAIT", 15*time.Second),
			SettleDelay:            envDurationOr("POP_SETTLE_DELAY", 3*time.Second),
			InterPageDelay:         envDurationOr("POP_INTER_PAGE_DELAY", 2*time.Second),
			MaxPages:               envPositiveIntOr("POP_MAX_PAGES", DefaultMaxPages),
			DefaultPageSize:        envIntOr("POP_DEFAULT_PAGE_SIZE", 300),
			Endpoint:               envOr("POP_ENDPOINT", "/Pop/GetSetItems"),
			DebugDir:               os.Getenv("POP_DEBUG_DIR"),
		},
		Selectors: DefaultSelectors(),
		Auth: AuthConfig{
			Enabled: envBoolOr("POP_AUTH_ENABLED", true),
			APIKeys: envSliceOr("POP_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("POP_RATE_RPS", 1.0),
			Burst:             envIntOr("POP_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("POP_CACHE_MAX_ENTRIES", 200),
		},
		Jobs: JobsConfig{
			MaxConcurrent: envIntOr("POP_JOBS_MAX_CONCURRENT", 2),
			TTL:           envDurationOr("POP_JOBS_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			Timeout:        envDurationOr("POP_WEBHOOK_TIMEOUT", 10*time.Second),
			MaxRetries:     envIntOr("POP_WEBHOOK_RETRIES", 3),
			InitialBackoff: envDurationOr("POP_WEBHOOK_BACKOFF", time.Second),
			MaxBackoff:     envDurationOr("POP_WEBHOOK_MAX_BACKOFF", 30*time.Second),
		},
		Schedule: ScheduleConfig{
			Enabled:       envBoolOr("POP_SCHEDULE_ENABLED", false),
			URLs:          envSliceOr("POP_SCHEDULE_URLS", nil),
			Spec:          envOr("POP_SCHEDULE_SPEC", "0 0 * * *"),
			RunOnStart:    envBoolOr("POP_SCHEDULE_RUN_ON_START", false),
			WebhookURL:    os.Getenv("POP_SCHEDULE_WEBHOOK"),
			WebhookSecret: os.Getenv("POP_SCHEDULE_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("POP_LOG_LEVEL", "info"),
			Format: envOr("POP_LOG_FORMAT", "json"),
		},
	}
}

// DefaultSelectors returns the DataTables selectors, overridable per field.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Info:            envOr("POP_SEL_INFO", ".dataTables_info"),
		Length:          envOr("POP_SEL_LENGTH", "select[name='tablePSA_length']"),
		Rows:            envOr("POP_SEL_ROWS", "#tablePSA tbody tr"),
		PageIndicator:   envOr("POP_SEL_PAGE", "select.paginate_input"),
		Next:            envOr("POP_SEL_NEXT", "a#tablePSA_next"),
		ChallengeMarker: envOr("POP_SEL_CHALLENGE", "#challenge-running"),
		ChallengeTitles: envSliceOr("POP_CHALLENGE_TITLES", []string{"Just a moment"}),
		FooterMarkers:   envSliceOr("POP_FOOTER_MARKERS", []string{"TOTAL POPULATION"}),
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envPositiveIntOr is envIntOr that also rejects values below 1.
func envPositiveIntOr(key string, fallback int) int {
	if i := envIntOr(key, fallback); i > 0 {
		return i
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
