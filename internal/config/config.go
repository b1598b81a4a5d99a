// Package config loads the relay configuration from defaults, an optional
// config.yaml and the environment using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/hpn/hpn-ask-relay/internal/adapter"
	"github.com/hpn/hpn-ask-relay/internal/domain"
)

// Configuration holds all application configuration values. It is loaded once in
// main and passed to the components that need it.
type Configuration struct {
	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Primary is the default provider for chat and vision (Gemini).
	Primary domain.Provider `json:"primary" mapstructure:"primary"`

	// Secondary is only used once the primary is exhausted (OpenAI).
	Secondary domain.Provider `json:"secondary" mapstructure:"secondary"`

	// Retry bounds the primary retry loop.
	Retry RetryConfig `json:"retry" mapstructure:"retry"`

	// Images configures the image store.
	Images ImagesConfig `json:"images" mapstructure:"images"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	ReadTimeoutSeconds     int    `json:"read_timeout_seconds" mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `json:"write_timeout_seconds" mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WriteTimeout returns WriteTimeoutSeconds as a duration. Zero means no limit.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// askDeadlineMargin is left between an ask's deadline and the write deadline
// so the apology can still be written.
const askDeadlineMargin = 5 * time.Second

// RetryConfig holds the default retry policy for asks.
type RetryConfig struct {
	// Attempts is the number of primary attempts before the fallback.
	Attempts int `json:"attempts" mapstructure:"attempts"`

	// DelaySeconds is the pause between primary attempts.
	DelaySeconds float64 `json:"delay_seconds" mapstructure:"delay_seconds"`
}

// Delay returns DelaySeconds as a duration.
func (r RetryConfig) Delay() time.Duration {
	return time.Duration(r.DelaySeconds * float64(time.Second))
}

// ImagesConfig holds image store configuration.
type ImagesConfig struct {
	// Dir is where downloaded images are written.
	Dir string `json:"dir" mapstructure:"dir"`

	// Extension is appended to every identifier.
	Extension string `json:"extension" mapstructure:"extension"`

	// DownloadTimeoutSeconds bounds a download; zero means no limit.
	DownloadTimeoutSeconds int `json:"download_timeout_seconds" mapstructure:"download_timeout_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `json:"level" mapstructure:"level"`

	// Format is the log format (json, text).
	Format string `json:"format" mapstructure:"format"`

	// OutputPath is the file path for log output (empty for stdout).
	OutputPath string `json:"output_path" mapstructure:"output_path"`
}

// Validate checks the configuration and returns a ValidationError listing every problem.
// API keys are not checked; a missing key surfaces as a provider failure.
func (c *Configuration) Validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		validationErrors = append(validationErrors, "server.port must be between 1 and 65535")
	}

	providers := []struct {
		name string
		p    domain.Provider
	}{{"primary", c.Primary}, {"secondary", c.Secondary}}
	for _, entry := range providers {
		name, p := entry.name, entry.p
		if !p.Type.IsValid() {
			validationErrors = append(validationErrors, fmt.Sprintf(
				"%s.type '%s' is invalid, must be one of: google, openai", name, p.Type,
			))
		}
		if p.BaseURL == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.base_url is required", name))
		}
		if p.ChatModel == "" {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.chat_model is required", name))
		}
		if p.TimeoutSeconds < 0 {
			validationErrors = append(validationErrors, fmt.Sprintf("%s.timeout_seconds cannot be negative", name))
		}
	}
	if c.Primary.Type.IsValid() && c.Primary.Type != domain.ProviderGoogle {
		validationErrors = append(validationErrors, "primary.type must be google, the only provider with a vision endpoint")
	}
	if c.Primary.VisionModel == "" {
		validationErrors = append(validationErrors, "primary.vision_model is required")
	}

	if c.Retry.Attempts < 1 {
		validationErrors = append(validationErrors, "retry.attempts must be at least 1")
	}
	if c.Retry.DelaySeconds < 0 {
		validationErrors = append(validationErrors, "retry.delay_seconds cannot be negative")
	}

	if budget := c.AskBudget(); budget > 0 && c.Server.WriteTimeoutSeconds > 0 && c.Server.WriteTimeout() <= budget+askDeadlineMargin {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"server.write_timeout_seconds (%s) must exceed the worst-case ask time (%s) plus %s",
			c.Server.WriteTimeout(), budget, askDeadlineMargin,
		))
	}

	if c.Images.Dir == "" {
		validationErrors = append(validationErrors, "images.dir is required")
	}

	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.level '%s' is invalid, must be one of: debug, info, warn, error",
			c.Logging.Level,
		))
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.format '%s' is invalid, must be one of: json, text",
			c.Logging.Format,
		))
	}

	if len(validationErrors) > 0 {
		return &ValidationError{Errors: validationErrors}
	}

	return nil
}

// isValidLogLevel checks if the log level is valid.
func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// AskBudget is the longest a single ask can take with the configured retry policy:
// every primary attempt runs into its timeout, every delay is slept, then the
// secondary runs into its timeout.
func (c *Configuration) AskBudget() time.Duration {
	attempts := c.Retry.Attempts
	if attempts < 1 {
		return 0
	}
	return time.Duration(attempts)*ProviderTimeout(c.Primary) +
		time.Duration(attempts-1)*c.Retry.Delay() +
		ProviderTimeout(c.Secondary)
}

// AskDeadline bounds every ask served over HTTP so the reply is written before the
// server's write deadline. Zero means asks are not bounded.
func (c *Configuration) AskDeadline() time.Duration {
	wt := c.Server.WriteTimeout()
	if wt <= 0 {
		return 0
	}
	if wt <= askDeadlineMargin {
		return wt / 2
	}
	return wt - askDeadlineMargin
}

// ProviderTimeout is the HTTP client timeout used for p; zero falls back to the adapter default.
func ProviderTimeout(p domain.Provider) time.Duration {
	if p.TimeoutSeconds > 0 {
		return time.Duration(p.TimeoutSeconds) * time.Second
	}
	return adapter.DefaultTimeout
}

// PrimaryKeys returns the primary provider's keys split from the comma-separated setting.
func (c *Configuration) PrimaryKeys() []string {
	return domain.ParseKeys(c.Primary.APIKey)
}

// Secrets returns every configured API key, for log redaction.
func (c *Configuration) Secrets() []string {
	return append(c.PrimaryKeys(), domain.ParseKeys(c.Secondary.APIKey)...)
}
