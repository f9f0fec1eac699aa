// Package config loads settings from defaults, an optional YAML file named
// by PAGEWATCH_CONFIG, and environment variables (highest precedence).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr        string // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir      string // logs directory
	LogLevel    string // debug, info, warn, error
	DatabaseURL string // empty means file or in-memory registry

	RegistryPath string // JSON registry; empty keeps sites in memory
	OutputDir    string // default session root for new sites

	DefaultInterval time.Duration
	DefaultDuration time.Duration

	RetryAttempts  int           // fetch attempts per poll
	RetryBackoff   time.Duration // first backoff, doubled per attempt
	FetchTimeout   time.Duration // per attempt
	HealthTimeout  time.Duration
	SlowThreshold  time.Duration
	IterationRetry time.Duration // extra wait after a failed iteration
	ActiveWindow   time.Duration // mtime window for "actively monitoring"

	SlackWebhookURL string
	AlertPoll       time.Duration
	AlertCooldown   time.Duration
	AlertOnRecovery bool

	AllowedOrigins []string
	PreviewRPM     int
	PreviewBurst   int
}

func defaults(v *viper.Viper) {
	v.SetDefault("ADDR", "127.0.0.1:8080")
	v.SetDefault("LOG_DIR", "logs")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REGISTRY_PATH", "monitored_urls.json")
	v.SetDefault("OUTPUT_DIR", "WebMonitor_Output")
	v.SetDefault("DEFAULT_INTERVAL_SECONDS", 30)
	v.SetDefault("DEFAULT_DURATION_MINUTES", 60)
	v.SetDefault("RETRY_ATTEMPTS", 5)
	v.SetDefault("RETRY_BACKOFF_MS", 1000)
	v.SetDefault("FETCH_TIMEOUT_MS", 10000)
	v.SetDefault("HEALTH_TIMEOUT_MS", 5000)
	v.SetDefault("SLOW_THRESHOLD_MS", 3000)
	v.SetDefault("ITERATION_RETRY_DELAY_MS", 5000)
	v.SetDefault("ACTIVE_WINDOW_SECONDS", 60)
	v.SetDefault("SLACK_WEBHOOK_URL", "")
	v.SetDefault("ALERT_POLL_MS", 15000)
	v.SetDefault("ALERT_COOLDOWN_MS", 10*60*1000)
	v.SetDefault("ALERT_ON_RECOVERY", true)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("PREVIEW_RPM", 30)
	v.SetDefault("PREVIEW_BURST", 5)
}

// FromEnv never fails: an unreadable config file is ignored and invalid
// numbers fall back to their defaults.
func FromEnv() Config {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()
	if path := v.GetString("PAGEWATCH_CONFIG"); path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	return Config{
		Addr:        v.GetString("ADDR"),
		LogDir:      v.GetString("LOG_DIR"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL: v.GetString("DATABASE_URL"),

		RegistryPath: v.GetString("REGISTRY_PATH"),
		OutputDir:    v.GetString("OUTPUT_DIR"),

		DefaultInterval: positive(v, "DEFAULT_INTERVAL_SECONDS", time.Second),
		DefaultDuration: positive(v, "DEFAULT_DURATION_MINUTES", time.Minute),

		RetryAttempts:  positiveInt(v, "RETRY_ATTEMPTS"),
		RetryBackoff:   nonNegative(v, "RETRY_BACKOFF_MS", time.Millisecond),
		FetchTimeout:   positive(v, "FETCH_TIMEOUT_MS", time.Millisecond),
		HealthTimeout:  positive(v, "HEALTH_TIMEOUT_MS", time.Millisecond),
		SlowThreshold:  positive(v, "SLOW_THRESHOLD_MS", time.Millisecond),
		IterationRetry: nonNegative(v, "ITERATION_RETRY_DELAY_MS", time.Millisecond),
		ActiveWindow:   positive(v, "ACTIVE_WINDOW_SECONDS", time.Second),

		SlackWebhookURL: v.GetString("SLACK_WEBHOOK_URL"),
		AlertPoll:       positive(v, "ALERT_POLL_MS", time.Millisecond),
		AlertCooldown:   nonNegative(v, "ALERT_COOLDOWN_MS", time.Millisecond),
		AlertOnRecovery: v.GetBool("ALERT_ON_RECOVERY"),

		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		PreviewRPM:     v.GetInt("PREVIEW_RPM"),
		PreviewBurst:   positiveInt(v, "PREVIEW_BURST"),
	}
}

// positiveInt falls back to the registered default for values < 1 or
// values that do not parse.
func positiveInt(v *viper.Viper, key string) int {
	n := v.GetInt(key)
	if n < 1 {
		return defaultOf(key)
	}
	return n
}

func positive(v *viper.Viper, key string, unit time.Duration) time.Duration {
	return time.Duration(positiveInt(v, key)) * unit
}

func nonNegative(v *viper.Viper, key string, unit time.Duration) time.Duration {
	n := v.GetInt(key)
	if n < 0 || (n == 0 && strings.TrimSpace(v.GetString(key)) != "0") {
		n = defaultOf(key)
	}
	return time.Duration(n) * unit
}

func defaultOf(key string) int {
	d := viper.New()
	defaults(d)
	return d.GetInt(key)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
