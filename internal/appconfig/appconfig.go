// internal/appconfig/appconfig.go
// Package appconfig defines the application configuration and its defaults.
// The config file and flags are merged by viper in the command layer.
package appconfig

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultModel is the grading model used when neither the config nor the flags name one.
	DefaultModel = "openai/gpt-3.5-turbo"
	// DefaultBaseURL points at the OpenAI-compatible OpenRouter API.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultAPIKeyEnv is the environment variable holding the grading API key.
	DefaultAPIKeyEnv = "OPENROUTER_API_KEY"
	// DefaultOutputFolder is where results.toml and results.html are written.
	DefaultOutputFolder = "results"

	defaultConcurrency        = 5
	defaultCheckpointEvery    = 10
	defaultCheckpointInterval = 5 * time.Second
	defaultRetryBaseDelay     = 1 * time.Second
	// defaultRequestTimeout is the default timeout for grading requests.
	defaultRequestTimeout = 600 * time.Second
)

// Config represents the top-level application configuration.
type Config struct {
	Models                    []string `json:"models" mapstructure:"models"`
	Concurrency               int      `json:"concurrency" mapstructure:"concurrency"`
	Output                    string   `json:"output,omitempty" mapstructure:"output"`
	CheckpointEvery           int      `json:"checkpointEvery,omitempty" mapstructure:"checkpointEvery"`
	CheckpointIntervalSeconds int      `json:"checkpointIntervalSeconds,omitempty" mapstructure:"checkpointIntervalSeconds"`
	RetryBaseDelayMs          int      `json:"retryBaseDelayMs,omitempty" mapstructure:"retryBaseDelayMs"`
	TimeoutSeconds            int      `json:"timeout,omitempty" mapstructure:"timeout"`
	BaseURL                   string   `json:"baseURL,omitempty" mapstructure:"baseURL"`
	APIKeyEnv                 string   `json:"apiKeyEnv,omitempty" mapstructure:"apiKeyEnv"`
	RequestsPerSecond         float64  `json:"requestsPerSecond,omitempty" mapstructure:"requestsPerSecond"`
	Verbose                   bool     `json:"verbose" mapstructure:"verbose"`
	Debug                     bool     `json:"debug" mapstructure:"debug"`
	LogFile                   string   `json:"logFile,omitempty" mapstructure:"logFile"`
	MetricsAddr               string   `json:"metricsAddr,omitempty" mapstructure:"metricsAddr"`
	ConfigPath                string   `json:"-" mapstructure:"-"`
}

// RequestTimeout returns the timeout duration for grading requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CheckpointInterval returns the time threshold between checkpoints.
func (c Config) CheckpointInterval() time.Duration {
	if c.CheckpointIntervalSeconds <= 0 {
		return defaultCheckpointInterval
	}
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

// CheckpointCount returns how many completed samples trigger a checkpoint.
func (c Config) CheckpointCount() int {
	if c.CheckpointEvery <= 0 {
		return defaultCheckpointEvery
	}
	return c.CheckpointEvery
}

// RetryBaseDelay returns the base backoff between grading attempts.
func (c Config) RetryBaseDelay() time.Duration {
	if c.RetryBaseDelayMs <= 0 {
		return defaultRetryBaseDelay
	}
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// ConcurrencyLimit returns the number of samples allowed in flight at once.
func (c Config) ConcurrencyLimit() int {
	if c.Concurrency <= 0 {
		return defaultConcurrency
	}
	return c.Concurrency
}

// ModelList returns the trimmed, non-empty model names, or the default model.
func (c Config) ModelList() []string {
	var models []string
	for _, m := range c.Models {
		for _, part := range strings.Split(m, ",") {
			if part = strings.TrimSpace(part); part != "" {
				models = append(models, part)
			}
		}
	}
	if len(models) == 0 {
		return []string{DefaultModel}
	}
	return models
}

// OutputFolder returns the results folder, applying a default if not set.
func (c Config) OutputFolder() string {
	if out := strings.TrimSpace(c.Output); out != "" {
		return out
	}
	return DefaultOutputFolder
}

// APIBaseURL returns the grading endpoint base URL.
func (c Config) APIBaseURL() string {
	if u := strings.TrimSpace(c.BaseURL); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultBaseURL
}

// APIKeyVariable returns the name of the environment variable that holds the API key.
func (c Config) APIKeyVariable() string {
	if v := strings.TrimSpace(c.APIKeyEnv); v != "" {
		return v
	}
	return DefaultAPIKeyEnv
}

// APIKey reads the grading API key from the environment.
func (c Config) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.APIKeyVariable()))
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "aibff.log"
}

// Validate reports configuration values that cannot be defaulted away.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must be a positive number, got %d", c.Concurrency)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requestsPerSecond must not be negative, got %v", c.RequestsPerSecond)
	}
	return nil
}
