package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/pkg/shared/normalize"
)

type Config struct {
	Addr         string
	LogLevel     string
	LogFile      string
	LogMaxSizeMB int

	// Capture/correlation timing. Tolerance defaults to twice the screenshot
	// throttle so at least one capture opportunity falls inside the window on
	// each side of a response.
	ScreenshotThrottle time.Duration
	Tolerance          time.Duration
	SweepInterval      time.Duration
	BufferCap          int

	// Fingerprint normalization ruleset. Schema-dependent, so both halves are
	// configuration inputs rather than constants.
	VolatileKeys  []string
	FingerprintJQ string

	// Payload field names carrying bet size and outcome.
	BetKeys     []string
	OutcomeKeys []string

	// Analysis thresholds.
	CorrelationMethod string // "pearson" | "spearman"
	MinSamples        int
	Significance      float64
	TopCombos         int
	AnalyzeOnClose    bool

	DupIndexSize int

	SpoolDir       string
	SpoolMaxSizeMB int

	// Websocket feed of the interception/screenshot collaborators. Empty means
	// the in-process transport is used.
	FeedURL string

	LayoutFile string
}

func FromEnv() Config {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := Config{
		Addr:         getEnv("ADDR", ":9410"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFile:      getEnv("LOG_FILE", ""),
		LogMaxSizeMB: getEnvInt("LOG_MAX_SIZE_MB", 50),
	}

	throttleMs := getEnvInt("SCREENSHOT_THROTTLE_MS", 500)
	if throttleMs < 100 {
		throttleMs = 100
	}
	cfg.ScreenshotThrottle = time.Duration(throttleMs) * time.Millisecond
	cfg.Tolerance = time.Duration(getEnvInt("CORRELATE_TOLERANCE_MS", 2*throttleMs)) * time.Millisecond
	cfg.SweepInterval = time.Duration(getEnvInt("SWEEP_INTERVAL_MS", int(cfg.Tolerance/time.Millisecond))) * time.Millisecond
	cfg.BufferCap = getEnvInt("CORRELATE_BUFFER_CAP", 100)

	cfg.VolatileKeys = normalize.DefaultVolatileKeys
	if v := strings.TrimSpace(os.Getenv("FINGERPRINT_VOLATILE_KEYS")); v != "" {
		cfg.VolatileKeys = splitCSV(v)
	}
	cfg.FingerprintJQ = getEnv("FINGERPRINT_JQ", "")

	cfg.BetKeys = splitCSV(getEnv("BET_KEYS", "bet,bet_size,stake"))
	cfg.OutcomeKeys = splitCSV(getEnv("OUTCOME_KEYS", "outcome,win,payout"))

	cfg.CorrelationMethod = strings.ToLower(getEnv("ANALYZE_CORRELATION", "pearson"))
	if cfg.CorrelationMethod != "spearman" {
		cfg.CorrelationMethod = "pearson"
	}
	cfg.MinSamples = getEnvInt("ANALYZE_MIN_SAMPLES", 30)
	cfg.Significance = getEnvFloat("ANALYZE_SIGNIFICANCE", 0.05)
	cfg.TopCombos = getEnvInt("ANALYZE_TOP_COMBOS", 10)
	cfg.AnalyzeOnClose = getEnvBool("ANALYZE_ON_CLOSE", true)

	cfg.DupIndexSize = getEnvInt("DUP_INDEX_SIZE", 4096)

	cfg.SpoolDir = getEnv("SPOOL_DIR", "./sessions")
	cfg.SpoolMaxSizeMB = getEnvInt("SPOOL_MAX_SIZE_MB", 100)

	cfg.FeedURL = getEnv("FEED_URL", "")
	cfg.LayoutFile = getEnv("LAYOUT_FILE", "")
	return cfg
}

// LoadLayout reads a game layout description from the configured JSON file.
// Without one, a 5x3 grid with an unknown symbol distribution is assumed.
func (c Config) LoadLayout() (domain.GameLayout, error) {
	if c.LayoutFile == "" {
		return domain.GameLayout{Reels: 5, Rows: 3}, nil
	}
	b, err := os.ReadFile(c.LayoutFile)
	if err != nil {
		return domain.GameLayout{}, err
	}
	var layout domain.GameLayout
	if err := json.Unmarshal(b, &layout); err != nil {
		return domain.GameLayout{}, err
	}
	return layout, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return def
}

// splitCSV splits comma-separated tokens trimming whitespace and skipping empties.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
