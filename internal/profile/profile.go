package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/plugin/review"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where recall stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// Timezone names the location used for calendar-day bucketing.
	Timezone string

	// Scheduling
	MaxIntervalDays           int     // RECALL_MAX_INTERVAL_DAYS (default: 365)
	TargetRetention           float64 // RECALL_TARGET_RETENTION (default: 0.9)
	MasteredThreshold         float64 // RECALL_MASTERED_THRESHOLD (default: 2.5)
	LearningThreshold         float64 // RECALL_LEARNING_THRESHOLD (default: 1.5)
	SubmitMaxRetries          int     // RECALL_SUBMIT_MAX_RETRIES (default: 3)
	DeviationThresholdPercent float64 // RECALL_DEVIATION_THRESHOLD_PERCENT (default: 10)
	MinSampleSize             int     // RECALL_MIN_SAMPLE_SIZE (default: 30)
	RetentionWindowDays       int     // RECALL_RETENTION_WINDOW_DAYS (default: 30)

	// Batch jobs
	StatsCron        string // RECALL_STATS_CRON (default: "@every 15m")
	RetentionCron    string // RECALL_RETENTION_CRON (default: "0 3 * * *")
	BatchConcurrency int    // RECALL_BATCH_CONCURRENCY (default: 4)

	// Cache
	CacheRedisAddr     string // RECALL_CACHE_REDIS_ADDR (empty disables L2)
	CacheRedisPassword string // RECALL_CACHE_REDIS_PASSWORD
	CacheRedisDB       int    // RECALL_CACHE_REDIS_DB

	// Notifications
	WebhookURL string // RECALL_WEBHOOK_URL (empty disables the webhook channel)

	// Rate limiting for review submissions, per owner.
	RateLimitPerSecond float64 // RECALL_RATE_LIMIT_PER_SECOND (default: 5)
	RateLimitBurst     int     // RECALL_RATE_LIMIT_BURST (default: 10)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring invalid integer env", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getFloatEnv(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring invalid float env", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

// FromEnv loads the scheduling, batch, cache and notification settings from RECALL_*
// environment variables. Server settings come from flags.
func (p *Profile) FromEnv() {
	p.Timezone = getEnvOrDefault("RECALL_TIMEZONE", "UTC")

	p.MaxIntervalDays = getIntEnv("RECALL_MAX_INTERVAL_DAYS", review.DefaultMaxIntervalDays)
	p.TargetRetention = getFloatEnv("RECALL_TARGET_RETENTION", review.DefaultTargetRetention)
	defaults := review.DefaultThresholds()
	p.MasteredThreshold = getFloatEnv("RECALL_MASTERED_THRESHOLD", defaults.Mastered)
	p.LearningThreshold = getFloatEnv("RECALL_LEARNING_THRESHOLD", defaults.Learning)
	p.SubmitMaxRetries = getIntEnv("RECALL_SUBMIT_MAX_RETRIES", 3)
	p.DeviationThresholdPercent = getFloatEnv("RECALL_DEVIATION_THRESHOLD_PERCENT", 10)
	p.MinSampleSize = getIntEnv("RECALL_MIN_SAMPLE_SIZE", 30)
	p.RetentionWindowDays = getIntEnv("RECALL_RETENTION_WINDOW_DAYS", 30)

	p.StatsCron = getEnvOrDefault("RECALL_STATS_CRON", "@every 15m")
	p.RetentionCron = getEnvOrDefault("RECALL_RETENTION_CRON", "0 3 * * *")
	p.BatchConcurrency = getIntEnv("RECALL_BATCH_CONCURRENCY", 4)

	p.CacheRedisAddr = os.Getenv("RECALL_CACHE_REDIS_ADDR")
	p.CacheRedisPassword = os.Getenv("RECALL_CACHE_REDIS_PASSWORD")
	p.CacheRedisDB = getIntEnv("RECALL_CACHE_REDIS_DB", 0)

	p.WebhookURL = os.Getenv("RECALL_WEBHOOK_URL")

	p.RateLimitPerSecond = getFloatEnv("RECALL_RATE_LIMIT_PER_SECOND", 5)
	p.RateLimitBurst = getIntEnv("RECALL_RATE_LIMIT_BURST", 10)
}

// EngineConfig returns the scheduling engine configuration.
func (p *Profile) EngineConfig() review.Config {
	return review.Config{
		MaxIntervalDays: p.MaxIntervalDays,
		TargetRetention: p.TargetRetention,
	}
}

// Thresholds returns the mastery thresholds.
func (p *Profile) Thresholds() review.Thresholds {
	return review.Thresholds{
		Mastered: p.MasteredThreshold,
		Learning: p.LearningThreshold,
	}
}

// Location returns the configured timezone, UTC when unset.
func (p *Profile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects inconsistent scheduling settings.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "recall")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/recall"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("recall_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if err := p.validateScheduling(); err != nil {
		return errors.Wrap(err, "invalid scheduling configuration")
	}
	return nil
}

func (p *Profile) validateScheduling() error {
	if _, err := review.NewEngine(p.EngineConfig()); err != nil {
		return err
	}
	if err := p.Thresholds().Validate(); err != nil {
		return err
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return errors.Wrapf(err, "unknown timezone %q", p.Timezone)
		}
	}
	if p.SubmitMaxRetries < 0 {
		return errors.Errorf("submit retries must not be negative, got %d", p.SubmitMaxRetries)
	}
	if p.MinSampleSize < 1 {
		return errors.Errorf("min sample size must be positive, got %d", p.MinSampleSize)
	}
	if p.DeviationThresholdPercent < 0 {
		return errors.Errorf("deviation threshold must not be negative, got %v", p.DeviationThresholdPercent)
	}
	if p.RetentionWindowDays < 1 {
		return errors.Errorf("retention window must be positive, got %d", p.RetentionWindowDays)
	}
	if p.BatchConcurrency < 1 {
		p.BatchConcurrency = 1
	}
	return nil
}
