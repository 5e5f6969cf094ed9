package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the LifeLedger server and CLI.
type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Orchestrator OrchestratorConfig
	Jobs         JobsConfig
	Events       EventsConfig
	Agents       AgentsConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	LogLevel string
}

type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty URL keeps events and rate limits in-process.
type RedisConfig struct {
	URL string
}

// Enabled reports whether a Redis URL was configured.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

type OrchestratorConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	ParallelAgents bool
	ID             string
}

type JobsConfig struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxAttempts int
}

type EventsConfig struct {
	StreamBlock time.Duration
}

type AgentsConfig struct {
	SentimentAnalyzer string
	ContentClassifier string
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

var validDrivers = map[string]bool{
	DriverPostgres: true,
	DriverMemory:   true,
}

var validSentimentAnalyzers = map[string]bool{
	"neutral": true,
}

var validContentClassifiers = map[string]bool{
	"none": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with variables looked up through getenv, so callers such
// as the CLI can layer flags over the environment.
func LoadFrom(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	cfg := &Config{
		Server: ServerConfig{
			Port:     e.getInt("LIFELEDGER_PORT", 8080),
			Env:      e.getString("LIFELEDGER_ENV", "development"),
			LogLevel: strings.ToLower(e.getString("LOG_LEVEL", "info")),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(e.getString("STORE_DRIVER", DriverPostgres)),
		},
		Database: DatabaseConfig{
			URL:             getenv("DATABASE_URL"),
			MaxOpenConns:    e.getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: getenv("REDIS_URL"),
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:   e.getDuration("ORCHESTRATOR_POLL_INTERVAL", 5*time.Second),
			BatchSize:      e.getInt("ORCHESTRATOR_BATCH_SIZE", 10),
			ParallelAgents: e.getBool("ORCHESTRATOR_PARALLEL_AGENTS", false),
			ID:             e.getString("ORCHESTRATOR_ID", hostname()),
		},
		Jobs: JobsConfig{
			BackoffBase: e.getDuration("JOB_BACKOFF_BASE", time.Second),
			BackoffMax:  e.getDuration("JOB_BACKOFF_MAX", 5*time.Minute),
			MaxAttempts: e.getInt("JOB_MAX_ATTEMPTS", 3),
		},
		Events: EventsConfig{
			StreamBlock: e.getDuration("EVENT_STREAM_BLOCK", time.Second),
		},
		Agents: AgentsConfig{
			SentimentAnalyzer: strings.ToLower(e.getString("SENTIMENT_ANALYZER", "neutral")),
			ContentClassifier: strings.ToLower(e.getString("CONTENT_CLASSIFIER", "none")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, memory; got %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Orchestrator.PollInterval <= 0 {
		return fmt.Errorf("ORCHESTRATOR_POLL_INTERVAL must be positive")
	}
	if c.Orchestrator.BatchSize <= 0 {
		return fmt.Errorf("ORCHESTRATOR_BATCH_SIZE must be positive, got %d", c.Orchestrator.BatchSize)
	}

	if c.Jobs.MaxAttempts <= 0 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be positive, got %d", c.Jobs.MaxAttempts)
	}
	if c.Jobs.BackoffBase <= 0 || c.Jobs.BackoffMax < c.Jobs.BackoffBase {
		return fmt.Errorf("JOB_BACKOFF_BASE must be positive and not exceed JOB_BACKOFF_MAX")
	}

	if !validSentimentAnalyzers[c.Agents.SentimentAnalyzer] {
		return fmt.Errorf("SENTIMENT_ANALYZER must be neutral; got %q", c.Agents.SentimentAnalyzer)
	}
	if !validContentClassifiers[c.Agents.ContentClassifier] {
		return fmt.Errorf("CONTENT_CLASSIFIER must be none; got %q", c.Agents.ContentClassifier)
	}

	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog.Level.
func (s ServerConfig) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "orchestrator"
	}
	return h
}

// env resolves typed values, falling back to the default when a variable
// is unset or does not parse.
type env func(string) string

func (e env) getString(key, defaultVal string) string {
	if v := e(key); v != "" {
		return v
	}
	return defaultVal
}

func (e env) getInt(key string, defaultVal int) int {
	v := e(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (e env) getBool(key string, defaultVal bool) bool {
	v := e(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (e env) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := e(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
