// Package config loads ledger configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	Store      StoreConfig
	Capture    CaptureConfig
	Recurrence RecurrenceConfig
	Reminders  ReminderConfig
	BigQuery   BigQueryConfig
	Port       string
	LogLevel   string
	LogFormat  string
}

// StoreConfig locates the SQLite ledger and the bbolt job store.
type StoreConfig struct {
	DBPath     string
	JobsDBPath string
}

// CaptureConfig tunes the auto-capture pipeline.
type CaptureConfig struct {
	AutoPostThreshold float64
	RulesPath         string
}

// RecurrenceConfig tunes the background expander.
type RecurrenceConfig struct {
	Interval   time.Duration
	MaxCatchUp int
}

// ReminderConfig sizes the delayed job queue.
type ReminderConfig struct {
	Workers     int
	QueueBuffer int
}

// BigQueryConfig configures the analytics mirror. An empty Project disables it.
type BigQueryConfig struct {
	Project string
	Dataset string
	Table   string
}

// Enabled reports whether the mirror is configured.
func (b BigQueryConfig) Enabled() bool {
	return b.Project != ""
}

// Load loads configuration from environment variables.
// It loads .env from the current directory when present, or envPath[0] when given.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	threshold, err := parseFloatEnv("CAPTURE_AUTOPOST_THRESHOLD", 0.85)
	if err != nil {
		return nil, err
	}
	interval, err := parseDurationEnv("RECURRENCE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	maxCatchUp, err := parseIntEnv("RECURRENCE_MAX_CATCHUP", 120)
	if err != nil {
		return nil, err
	}
	workers, err := parseIntEnv("REMINDER_WORKERS", 5)
	if err != nil {
		return nil, err
	}
	buffer, err := parseIntEnv("REMINDER_QUEUE_BUFFER", 100)
	if err != nil {
		return nil, err
	}

	return &Config{
		Store: StoreConfig{
			DBPath:     getEnvOrDefault("LEDGER_DB_PATH", "./data/ledger.db"),
			JobsDBPath: getEnvOrDefault("LEDGER_JOBS_DB_PATH", "./data/jobs.db"),
		},
		Capture: CaptureConfig{
			AutoPostThreshold: threshold,
			RulesPath:         os.Getenv("CAPTURE_RULES_PATH"),
		},
		Recurrence: RecurrenceConfig{
			Interval:   interval,
			MaxCatchUp: maxCatchUp,
		},
		Reminders: ReminderConfig{
			Workers:     workers,
			QueueBuffer: buffer,
		},
		BigQuery: BigQueryConfig{
			Project: os.Getenv("BQ_PROJECT"),
			Dataset: getEnvOrDefault("BQ_DATASET", "finance"),
			Table:   getEnvOrDefault("BQ_TABLE", "ledger_transactions"),
		},
		Port:      getEnvOrDefault("PORT", "8080"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "console"),
	}, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Capture.AutoPostThreshold < 0 || c.Capture.AutoPostThreshold > 1 {
		problems = append(problems, "CAPTURE_AUTOPOST_THRESHOLD must be within [0,1]")
	}
	if c.Recurrence.Interval <= 0 {
		problems = append(problems, "RECURRENCE_INTERVAL must be positive")
	}
	if c.Recurrence.MaxCatchUp <= 0 {
		problems = append(problems, "RECURRENCE_MAX_CATCHUP must be positive")
	}
	if c.Reminders.Workers <= 0 {
		problems = append(problems, "REMINDER_WORKERS must be positive")
	}
	if c.Reminders.QueueBuffer < 0 {
		problems = append(problems, "REMINDER_QUEUE_BUFFER must not be negative")
	}
	if c.Store.DBPath == "" {
		problems = append(problems, "LEDGER_DB_PATH must be set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return parsed, nil
}
