package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultConfigName = "config"
	defaultConfigType = "yaml"
	envPrefix         = "HPN_RELAY"

	// EnvGoogleAPIKey holds the primary provider key(s), comma-separated.
	EnvGoogleAPIKey = "GOOGLE_API_KEY"

	// EnvOpenAIAPIKey holds the secondary provider key.
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Load reads the configuration once. Priority, highest first:
//  1. GOOGLE_API_KEY / OPENAI_API_KEY for the provider keys
//  2. HPN_RELAY_* environment variables (e.g. HPN_RELAY_RETRY_ATTEMPTS)
//  3. the config file at configPath, or config.yaml on the search path
//  4. defaults
func Load(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hpn-ask-relay")
		v.AddConfigPath("$HOME/.hpn-ask-relay")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// The provider keys keep their conventional names.
	if err := v.BindEnv("primary.api_key", EnvGoogleAPIKey); err != nil {
		return nil, &ConfigError{Op: "bind_env", Err: err}
	}
	if err := v.BindEnv("secondary.api_key", EnvOpenAIAPIKey); err != nil {
		return nil, &ConfigError{Op: "bind_env", Err: err}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
		fmt.Fprintf(os.Stderr, "[CONFIG] No config file found, using defaults and environment\n")
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 180)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("primary.type", "google")
	v.SetDefault("primary.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("primary.api_key", "")
	v.SetDefault("primary.chat_model", "gemini-pro")
	v.SetDefault("primary.vision_model", "gemini-pro-vision")
	v.SetDefault("primary.timeout_seconds", 30)
	v.SetDefault("primary.key_cooldown_seconds", 60)

	v.SetDefault("secondary.type", "openai")
	v.SetDefault("secondary.base_url", "https://api.openai.com/v1")
	v.SetDefault("secondary.api_key", "")
	v.SetDefault("secondary.chat_model", "gpt-3.5-turbo")
	v.SetDefault("secondary.timeout_seconds", 30)

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay_seconds", 1.0)

	v.SetDefault("images.dir", "images")
	v.SetDefault("images.extension", ".jpg")
	v.SetDefault("images.download_timeout_seconds", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "")
}
