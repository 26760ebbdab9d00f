package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables. The
// returned Config is treated as immutable: components receive it by
// reference at construction and never write to it.
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/kagemask/")
	viper.AddConfigPath("$HOME/.kagemask/")

	viper.SetEnvPrefix("KAGEMASK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Running on pure defaults is fine; anything else is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Pipeline.MinTextLength < 1 {
		return fmt.Errorf("invalid min_text_length: %d (must be at least 1)", config.Pipeline.MinTextLength)
	}

	if config.Pipeline.MaxTextLength < config.Pipeline.MinTextLength {
		return fmt.Errorf("invalid max_text_length: %d (must be >= min_text_length %d)",
			config.Pipeline.MaxTextLength, config.Pipeline.MinTextLength)
	}

	if config.Pipeline.MaskToken == "" {
		return fmt.Errorf("mask_token must not be empty")
	}

	if config.Tokenizer.Backend != "segmenter" && config.Tokenizer.Backend != "kagome" {
		return fmt.Errorf("invalid tokenizer backend: %s (must be segmenter or kagome)", config.Tokenizer.Backend)
	}

	if config.NER.Backend != "dictionary" && config.NER.Backend != "onnx" {
		return fmt.Errorf("invalid ner backend: %s (must be dictionary or onnx)", config.NER.Backend)
	}

	if config.NER.ConfidenceThreshold < 0 || config.NER.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid ner confidence_threshold: %f (must be in [0,1])", config.NER.ConfidenceThreshold)
	}

	if config.Cache.Backend != "memory" && config.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", config.Cache.Backend)
	}

	if config.Risk.BaseScore < 0 || config.Risk.SinglePersonWeight < 0 ||
		config.Risk.MultiPersonWeight < 0 || config.Risk.RegexTypeWeight < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			return
		}

		if err := validateConfig(newConfig); err != nil {
			return
		}

		callback(newConfig)
	})

	return nil
}
