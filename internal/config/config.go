package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scraper and its control API.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Feed page settings
	BaseURL           string
	TabURLFilter      string
	ContainerSelector string

	// Engine tuning
	ScrollStepPx        int
	NoProgressThreshold int
	SettleWaitMS        int
	SettleRetries       int
	EvalTimeoutMS       int

	// Browser launch
	LaunchBrowser bool
	BrowserPath   string
	Headless      bool

	// Output
	OutputDir string
	DumpDir   string
	DumpHTML  bool

	// Control API
	BindAddr string

	// Logging
	LogLevel string
	LogFile  string

	// Notifications; empty disables them.
	NtfyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:          getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BaseURL:             getEnvOrDefault("SCRAPER_BASE_URL", "https://outlierdb.com"),
		TabURLFilter:        getEnvOrDefault("SCRAPER_TAB_URL_FILTER", "outlierdb.com"),
		ContainerSelector:   getEnvOrDefault("SCRAPER_CONTAINER_SELECTOR", "main"),
		ScrollStepPx:        getEnvIntOrDefault("SCRAPER_SCROLL_STEP_PX", 300),
		NoProgressThreshold: getEnvIntOrDefault("SCRAPER_NO_PROGRESS_THRESHOLD", 10),
		SettleWaitMS:        getEnvIntOrDefault("SCRAPER_SETTLE_WAIT_MS", 2000),
		SettleRetries:       getEnvIntOrDefault("SCRAPER_SETTLE_RETRIES", 3),
		EvalTimeoutMS:       getEnvIntOrDefault("SCRAPER_EVAL_TIMEOUT_MS", 5000),
		LaunchBrowser:       getEnvBoolOrDefault("SCRAPER_LAUNCH_BROWSER", true),
		BrowserPath:         getEnvOrDefault("SCRAPER_BROWSER_PATH", ""),
		Headless:            getEnvBoolOrDefault("SCRAPER_HEADLESS", false),
		OutputDir:           getEnvOrDefault("SCRAPER_OUTPUT_DIR", "./output"),
		DumpDir:             getEnvOrDefault("SCRAPER_DUMP_DIR", "./debug_html"),
		DumpHTML:            getEnvBoolOrDefault("SCRAPER_DUMP_HTML", false),
		BindAddr:            getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8288"),
		LogLevel:            strings.ToLower(getEnvOrDefault("SCRAPER_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("SCRAPER_LOG_FILE", "logs/odb_scraper.log"),
		NtfyEndpoint:        getEnvOrDefault("SCRAPER_NTFY_ENDPOINT", ""),
	}

	// Clamp values the engine cannot run with.
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.ScrollStepPx < 1 {
		cfg.ScrollStepPx = 300
	}
	if cfg.NoProgressThreshold < 1 {
		cfg.NoProgressThreshold = 10
	}
	if cfg.SettleRetries < 1 {
		cfg.SettleRetries = 1
	}

	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
