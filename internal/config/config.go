// Package config loads server settings from env files, the environment and flags
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/thereayou/planning-poker/internal/jira"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	PersistTimeout time.Duration
	AllowedOrigins []string
	LogLevel       slog.Level
	LogFormat      string
	GinMode        string
	Jira           jira.Config
}

// Load reads the env file (or .env.local then .env), the process
// environment and finally the command line flags in args.
func Load(args []string) (*Config, error) {
	var port, envFile, logLevel string

	flags := pflag.NewFlagSet("planning-poker", pflag.ContinueOnError)
	flags.StringVar(&port, "port", "", "HTTP listen port (overrides PORT)")
	flags.StringVar(&envFile, "env-file", "", "env file to load instead of .env.local / .env")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := loadEnvFiles(envFile); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		PersistTimeout: getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		GinMode:        getEnv("GIN_MODE", "release"),
		Jira: jira.Config{
			BaseURL:          getEnv("JIRA_BASE_URL", ""),
			Email:            getEnv("JIRA_EMAIL", ""),
			APIToken:         getEnv("JIRA_API_TOKEN", ""),
			StoryPointsField: getEnv("JIRA_STORY_POINTS_FIELD", ""),
			CacheTTL:         getEnvDuration("JIRA_CACHE_TTL", time.Hour),
		},
	}

	if port != "" {
		cfg.Port = port
	}
	if logLevel == "" {
		logLevel = getEnv("LOG_LEVEL", "info")
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}

	return cfg, nil
}

// Logger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func loadEnvFiles(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		err := godotenv.Load(name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	// no env file, the process environment is used as is
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	// bare numbers are seconds
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
