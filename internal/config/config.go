// Package config loads the export proxy configuration.
//
// Priority: CLI flags > environment variables > YAML file > defaults.
// A .env file, when present, is loaded into the environment first and never
// overrides variables that are already set.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DOCAPI_"

// Config holds all configuration for the export proxy.
type Config struct {
	// HTTP server
	ListenAddr      string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Remote document API
	BaseURL           string // may contain the {tenant} placeholder
	UserAgent         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // 0 disables the outbound throttle
	Burst             int

	// Strategy page sizes
	ScrollPageSize int
	WindowPageSize int
	SearchPageSize int

	// Optional Redis for shared rate limiting and the schema cache
	RedisURL       string
	SchemaCacheTTL time.Duration

	// Inbound quotas
	ExportMaxRequests int
	PageMaxRequests   int
	RateWindow        time.Duration

	// Logging
	LogLevel  string
	LogPretty bool
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr:        ":8080",
		ShutdownTimeout:   15 * time.Second,
		UserAgent:         "docapi-export/0.1.0",
		RequestTimeout:    30 * time.Second,
		RequestsPerSecond: 20,
		Burst:             5,
		ScrollPageSize:    1000,
		WindowPageSize:    1000,
		SearchPageSize:    1000,
		SchemaCacheTTL:    5 * time.Minute,
		ExportMaxRequests: 30,
		PageMaxRequests:   120,
		RateWindow:        time.Minute,
		LogLevel:          "info",
	}
}

// yamlConfig mirrors Config for the YAML file. Zero values mean "not set".
type yamlConfig struct {
	ListenAddr        string   `yaml:"listen_addr"`
	ShutdownTimeout   string   `yaml:"shutdown_timeout"`
	CORSOrigins       []string `yaml:"cors_origins"`
	BaseURL           string   `yaml:"base_url"`
	UserAgent         string   `yaml:"user_agent"`
	RequestTimeout    string   `yaml:"request_timeout"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
	ScrollPageSize    int      `yaml:"scroll_page_size"`
	WindowPageSize    int      `yaml:"window_page_size"`
	SearchPageSize    int      `yaml:"search_page_size"`
	RedisURL          string   `yaml:"redis_url"`
	SchemaCacheTTL    string   `yaml:"schema_cache_ttl"`
	ExportMaxRequests int      `yaml:"export_max_requests"`
	PageMaxRequests   int      `yaml:"page_max_requests"`
	RateWindow        string   `yaml:"rate_window"`
	LogLevel          string   `yaml:"log_level"`
	LogPretty         *bool    `yaml:"log_pretty"`
}

// Load builds the configuration from args (without the program name).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("export-proxy", flag.ContinueOnError)

	configFile := fs.String("config-file", "export-proxy.yaml", "Config file path")
	envFile := fs.String("env-file", ".env", "Dotenv file path")
	listenAddr := fs.String("listen", "", "HTTP listen address (default :8080)")
	baseURL := fs.String("base-url", "", "Remote document API base URL, may contain {tenant}")
	userAgent := fs.String("user-agent", "", "User-Agent sent to the remote API")
	requestTimeout := fs.Duration("request-timeout", 0, "Per remote call timeout (default 30s)")
	rps := fs.Float64("requests-per-second", -1, "Outbound requests per second, 0 disables (default 20)")
	burst := fs.Int("burst", 0, "Outbound burst (default 5)")
	scrollSize := fs.Int("scroll-page-size", 0, "Scroll page size (default 1000)")
	windowSize := fs.Int("window-page-size", 0, "Windowed search page size (default 1000)")
	searchSize := fs.Int("search-page-size", 0, "Paged search page size (default 1000)")
	redisURL := fs.String("redis-url", "", "Redis URL, enables shared rate limiting and schema cache")
	cacheTTL := fs.Duration("schema-cache-ttl", 0, "Schema cache TTL (default 5m)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed CORS origins")
	exportMax := fs.Int("export-max-requests", 0, "Export requests per window and client (default 30)")
	pageMax := fs.Int("page-max-requests", 0, "Page requests per window and client (default 120)")
	rateWindow := fs.Duration("rate-window", 0, "Rate limit window (default 1m)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	logPretty := fs.Bool("log-pretty", false, "Human readable console logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()

	if *configFile != "" {
		if err := loadFromYAML(cfg, *configFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	// CLI flags (highest priority), only those explicitly given
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "base-url":
			cfg.BaseURL = *baseURL
		case "user-agent":
			cfg.UserAgent = *userAgent
		case "request-timeout":
			cfg.RequestTimeout = *requestTimeout
		case "requests-per-second":
			cfg.RequestsPerSecond = *rps
		case "burst":
			cfg.Burst = *burst
		case "scroll-page-size":
			cfg.ScrollPageSize = *scrollSize
		case "window-page-size":
			cfg.WindowPageSize = *windowSize
		case "search-page-size":
			cfg.SearchPageSize = *searchSize
		case "redis-url":
			cfg.RedisURL = *redisURL
		case "schema-cache-ttl":
			cfg.SchemaCacheTTL = *cacheTTL
		case "cors-origins":
			cfg.CORSOrigins = splitList(*corsOrigins)
		case "export-max-requests":
			cfg.ExportMaxRequests = *exportMax
		case "page-max-requests":
			cfg.PageMaxRequests = *pageMax
		case "rate-window":
			cfg.RateWindow = *rateWindow
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-pretty":
			cfg.LogPretty = *logPretty
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	probe := strings.ReplaceAll(c.BaseURL, "{tenant}", "tenant")
	if u, err := url.Parse(probe); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base-url must be an absolute URL, got %q", c.BaseURL)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests-per-second must be >= 0")
	}
	if c.ScrollPageSize <= 0 || c.WindowPageSize <= 0 || c.SearchPageSize <= 0 {
		return fmt.Errorf("page sizes must be > 0")
	}
	if c.ExportMaxRequests <= 0 || c.PageMaxRequests <= 0 {
		return fmt.Errorf("rate limit quotas must be > 0")
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("rate-window must be > 0")
	}
	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("redis-url is invalid: %w", err)
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// loadFromYAML loads configuration from a YAML file.
func loadFromYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return err
	}

	if y.ListenAddr != "" {
		cfg.ListenAddr = y.ListenAddr
	}
	if len(y.CORSOrigins) > 0 {
		cfg.CORSOrigins = y.CORSOrigins
	}
	if y.BaseURL != "" {
		cfg.BaseURL = y.BaseURL
	}
	if y.UserAgent != "" {
		cfg.UserAgent = y.UserAgent
	}
	if y.RequestsPerSecond != nil {
		cfg.RequestsPerSecond = *y.RequestsPerSecond
	}
	if y.Burst > 0 {
		cfg.Burst = y.Burst
	}
	if y.ScrollPageSize > 0 {
		cfg.ScrollPageSize = y.ScrollPageSize
	}
	if y.WindowPageSize > 0 {
		cfg.WindowPageSize = y.WindowPageSize
	}
	if y.SearchPageSize > 0 {
		cfg.SearchPageSize = y.SearchPageSize
	}
	if y.RedisURL != "" {
		cfg.RedisURL = y.RedisURL
	}
	if y.ExportMaxRequests > 0 {
		cfg.ExportMaxRequests = y.ExportMaxRequests
	}
	if y.PageMaxRequests > 0 {
		cfg.PageMaxRequests = y.PageMaxRequests
	}
	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogPretty != nil {
		cfg.LogPretty = *y.LogPretty
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"shutdown_timeout", y.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"request_timeout", y.RequestTimeout, &cfg.RequestTimeout},
		{"schema_cache_ttl", y.SchemaCacheTTL, &cfg.SchemaCacheTTL},
		{"rate_window", y.RateWindow, &cfg.RateWindow},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// loadFromEnv loads configuration from DOCAPI_* environment variables.
func loadFromEnv(cfg *Config) error {
	if val := getEnv("LISTEN_ADDR"); val != "" {
		cfg.ListenAddr = val
	}
	if val := getEnv("CORS_ORIGINS"); val != "" {
		cfg.CORSOrigins = splitList(val)
	}
	if val := getEnv("BASE_URL"); val != "" {
		cfg.BaseURL = val
	}
	if val := getEnv("USER_AGENT"); val != "" {
		cfg.UserAgent = val
	}
	if val := getEnv("REDIS_URL"); val != "" {
		cfg.RedisURL = val
	}
	if val := getEnv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	if val := getEnv("LOG_PRETTY"); val != "" {
		cfg.LogPretty = val == "true" || val == "1"
	}
	if val := getEnv("REQUESTS_PER_SECOND"); val != "" {
		rps, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%sREQUESTS_PER_SECOND: %w", EnvPrefix, err)
		}
		cfg.RequestsPerSecond = rps
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"BURST", &cfg.Burst},
		{"SCROLL_PAGE_SIZE", &cfg.ScrollPageSize},
		{"WINDOW_PAGE_SIZE", &cfg.WindowPageSize},
		{"SEARCH_PAGE_SIZE", &cfg.SearchPageSize},
		{"EXPORT_MAX_REQUESTS", &cfg.ExportMaxRequests},
		{"PAGE_MAX_REQUESTS", &cfg.PageMaxRequests},
	}
	for _, i := range ints {
		val := getEnv(i.key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, i.key, err)
		}
		*i.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"SCHEMA_CACHE_TTL", &cfg.SchemaCacheTTL},
		{"RATE_WINDOW", &cfg.RateWindow},
	}
	for _, d := range durations {
		val := getEnv(d.key)
		if val == "" {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
