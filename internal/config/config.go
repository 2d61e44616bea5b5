package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// AppConfig is the fully-parsed application configuration.
type AppConfig struct {
	// Cache layout and freshness.
	CacheDir      string
	CacheValidity time.Duration
	FrameCount    int

	// Background loops.
	RefreshInterval time.Duration // 1-60 minutes
	StartupDelay    time.Duration
	StaggerDelay    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration

	// Static ETA fallback parameters.
	TileRenderWait   time.Duration
	PerFrameOverhead time.Duration
	BaseOverhead     time.Duration

	// Timestamp interpretation for folder names and page captions.
	Timezone *time.Location

	// Optional settings with defaults.
	Port            string
	Concurrency     int
	BrowserAgentURL string
	Debug           bool
	DisabledSteps   []string
	MetricsWindow   int
	HTTPTimeout     time.Duration
}

// requiredEnv mirrors the settings that must be present in the environment.
// None of them has a silent default: a missing value fails startup.
type requiredEnv struct {
	CacheDir                string `validate:"required"`
	CacheValidityMinutes    string `validate:"required"`
	RefreshIntervalMinutes  string `validate:"required"`
	StartupDelaySeconds     string `validate:"required"`
	StaggerSeconds          string `validate:"required"`
	RetentionHours          string `validate:"required"`
	CleanupIntervalHours    string `validate:"required"`
	FrameCount              string `validate:"required"`
	TileRenderWaitSeconds   string `validate:"required"`
	PerFrameOverheadSeconds string `validate:"required"`
	BaseOverheadSeconds     string `validate:"required"`
	Timezone                string `validate:"required"`
}

// Load reads configuration from the environment. Required settings missing
// or malformed abort startup with an error.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	raw := requiredEnv{
		CacheDir:                os.Getenv("CACHE_DIR"),
		CacheValidityMinutes:    os.Getenv("CACHE_VALIDITY_MINUTES"),
		RefreshIntervalMinutes:  os.Getenv("REFRESH_INTERVAL_MINUTES"),
		StartupDelaySeconds:     os.Getenv("STARTUP_DELAY_SECONDS"),
		StaggerSeconds:          os.Getenv("LOCATION_STAGGER_SECONDS"),
		RetentionHours:          os.Getenv("RETENTION_HOURS"),
		CleanupIntervalHours:    os.Getenv("CLEANUP_INTERVAL_HOURS"),
		FrameCount:              os.Getenv("FRAME_COUNT"),
		TileRenderWaitSeconds:   os.Getenv("TILE_RENDER_WAIT_SECONDS"),
		PerFrameOverheadSeconds: os.Getenv("PER_FRAME_OVERHEAD_SECONDS"),
		BaseOverheadSeconds:     os.Getenv("BASE_OVERHEAD_SECONDS"),
		Timezone:                os.Getenv("TIMEZONE"),
	}
	if err := validate.Struct(raw); err != nil {
		return nil, fmt.Errorf("missing required configuration: %w", err)
	}

	cfg := &AppConfig{CacheDir: raw.CacheDir}

	var err error
	if cfg.CacheValidity, err = minutes("CACHE_VALIDITY_MINUTES", raw.CacheValidityMinutes); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = minutes("REFRESH_INTERVAL_MINUTES", raw.RefreshIntervalMinutes); err != nil {
		return nil, err
	}
	if m := int(cfg.RefreshInterval.Minutes()); m < 1 || m > 60 {
		return nil, fmt.Errorf("REFRESH_INTERVAL_MINUTES must be between 1 and 60, got %d", m)
	}
	if cfg.StartupDelay, err = seconds("STARTUP_DELAY_SECONDS", raw.StartupDelaySeconds); err != nil {
		return nil, err
	}
	if cfg.StaggerDelay, err = seconds("LOCATION_STAGGER_SECONDS", raw.StaggerSeconds); err != nil {
		return nil, err
	}
	if cfg.Retention, err = hours("RETENTION_HOURS", raw.RetentionHours); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = hours("CLEANUP_INTERVAL_HOURS", raw.CleanupIntervalHours); err != nil {
		return nil, err
	}
	if cfg.FrameCount, err = positiveInt("FRAME_COUNT", raw.FrameCount); err != nil {
		return nil, err
	}
	if cfg.TileRenderWait, err = seconds("TILE_RENDER_WAIT_SECONDS", raw.TileRenderWaitSeconds); err != nil {
		return nil, err
	}
	if cfg.PerFrameOverhead, err = seconds("PER_FRAME_OVERHEAD_SECONDS", raw.PerFrameOverheadSeconds); err != nil {
		return nil, err
	}
	if cfg.BaseOverhead, err = seconds("BASE_OVERHEAD_SECONDS", raw.BaseOverheadSeconds); err != nil {
		return nil, err
	}
	if cfg.Timezone, err = time.LoadLocation(raw.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", raw.Timezone, err)
	}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Concurrency = getenvInt("ACQUISITION_CONCURRENCY", 1)
	cfg.BrowserAgentURL = getenvDefault("BROWSER_AGENT_URL", "http://localhost:8900")
	cfg.Debug = getenvDefault("DEBUG_MODE", "false") == "true"
	cfg.MetricsWindow = getenvInt("METRICS_WINDOW", 20)

	if v := os.Getenv("DISABLED_STEPS"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.DisabledSteps = append(cfg.DisabledSteps, name)
			}
		}
	}

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	if cfg.HTTPTimeout, err = time.ParseDuration(timeoutStr); err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func minutes(key, v string) (time.Duration, error) {
	n, err := positiveInt(key, v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}

func seconds(key, v string) (time.Duration, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}

func hours(key, v string) (time.Duration, error) {
	n, err := positiveInt(key, v)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Hour, nil
}

func positiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
