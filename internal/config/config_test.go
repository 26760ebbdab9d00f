package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Pipeline.MinTextLength != 1 || cfg.Pipeline.MaxTextLength != 1024 {
		t.Errorf("default text bounds = [%d,%d], want [1,1024]",
			cfg.Pipeline.MinTextLength, cfg.Pipeline.MaxTextLength)
	}
	if cfg.Pipeline.MaskToken != "<MASK>" {
		t.Errorf("default mask token = %q, want <MASK>", cfg.Pipeline.MaskToken)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("default cache TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.NER.ConfidenceThreshold != 0.5 {
		t.Errorf("default confidence threshold = %f, want 0.5", cfg.NER.ConfidenceThreshold)
	}
	if cfg.Risk.BaseScore != 0.2 || cfg.Risk.SinglePersonWeight != 0.4 ||
		cfg.Risk.MultiPersonWeight != 0.7 || cfg.Risk.RegexTypeWeight != 0.1 {
		t.Errorf("default risk weights = %+v", cfg.Risk)
	}
	if cfg.Events.Channel != "pii-risk-queue" {
		t.Errorf("default events channel = %q, want pii-risk-queue", cfg.Events.Channel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
pipeline:
  max_text_length: 2048
  mask_token: "[HIDDEN]"
cache:
  backend: redis
  ttl: 1h
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxTextLength != 2048 {
		t.Errorf("max_text_length = %d, want 2048", cfg.Pipeline.MaxTextLength)
	}
	if cfg.Pipeline.MaskToken != "[HIDDEN]" {
		t.Errorf("mask_token = %q, want [HIDDEN]", cfg.Pipeline.MaskToken)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("cache backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("cache ttl = %v, want 1h", cfg.Cache.TTL)
	}

	// Values absent from the file keep their defaults
	if cfg.Pipeline.MinTextLength != 1 {
		t.Errorf("min_text_length = %d, want default 1", cfg.Pipeline.MinTextLength)
	}
	if cfg.NER.Backend != "dictionary" {
		t.Errorf("ner backend = %q, want default dictionary", cfg.NER.Backend)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero min length", func(c *Config) { c.Pipeline.MinTextLength = 0 }},
		{"max below min", func(c *Config) { c.Pipeline.MaxTextLength = 0 }},
		{"empty mask token", func(c *Config) { c.Pipeline.MaskToken = "" }},
		{"unknown tokenizer backend", func(c *Config) { c.Tokenizer.Backend = "mecab" }},
		{"unknown ner backend", func(c *Config) { c.NER.Backend = "bert" }},
		{"threshold above one", func(c *Config) { c.NER.ConfidenceThreshold = 1.5 }},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"negative risk weight", func(c *Config) { c.Risk.BaseScore = -0.1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		if err := validateConfig(GetDefaults()); err != nil {
			t.Errorf("defaults failed validation: %v", err)
		}
	})
}
