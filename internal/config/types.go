package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Patterns  PatternsConfig  `yaml:"patterns" mapstructure:"patterns"`
	Tokenizer TokenizerConfig `yaml:"tokenizer" mapstructure:"tokenizer"`
	NER       NERConfig       `yaml:"ner" mapstructure:"ner"`
	Risk      RiskConfig      `yaml:"risk" mapstructure:"risk"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// PipelineConfig contains masking pipeline configuration
type PipelineConfig struct {
	MinTextLength  int           `yaml:"min_text_length" mapstructure:"min_text_length"`
	MaxTextLength  int           `yaml:"max_text_length" mapstructure:"max_text_length"`
	MaskToken      string        `yaml:"mask_token" mapstructure:"mask_token"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// PatternsConfig locates the regex pattern definitions
type PatternsConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// TokenizerConfig selects the tokenizer backend
type TokenizerConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // segmenter or kagome
}

// NERConfig contains named entity recognition configuration
type NERConfig struct {
	Backend             string  `yaml:"backend" mapstructure:"backend"` // dictionary or onnx
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	ModelPath           string  `yaml:"model_path" mapstructure:"model_path"`
	VocabPath           string  `yaml:"vocab_path" mapstructure:"vocab_path"`
	MaxSequenceLength   int     `yaml:"max_sequence_length" mapstructure:"max_sequence_length"`
	IntraOpThreads      int     `yaml:"intra_op_threads" mapstructure:"intra_op_threads"`
}

// RiskConfig contains risk scoring weights
type RiskConfig struct {
	BaseScore          float64 `yaml:"base_score" mapstructure:"base_score"`
	SinglePersonWeight float64 `yaml:"single_person_weight" mapstructure:"single_person_weight"`
	MultiPersonWeight  float64 `yaml:"multi_person_weight" mapstructure:"multi_person_weight"`
	RegexTypeWeight    float64 `yaml:"regex_type_weight" mapstructure:"regex_type_weight"`
}

// CacheConfig contains result cache configuration
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" mapstructure:"backend"` // memory or redis
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	OpTimeout time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

// EventsConfig contains risk telemetry queue configuration
type EventsConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	Channel        string        `yaml:"channel" mapstructure:"channel"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	PublishTimeout time.Duration `yaml:"publish_timeout" mapstructure:"publish_timeout"`
}

// WebSocketConfig contains live event stream configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// AnalyticsConfig contains risk event persistence configuration
type AnalyticsConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	ExportPath      string        `yaml:"export_path" mapstructure:"export_path"`
}

// SecurityConfig contains request throttling configuration
type SecurityConfig struct {
	RateLimitEnabled  bool `yaml:"rate_limit_enabled" mapstructure:"rate_limit_enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string     `yaml:"level" mapstructure:"level"`
	Format string     `yaml:"format" mapstructure:"format"` // json or console
	File   FileConfig `yaml:"file" mapstructure:"file"`
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			MinTextLength:  1,
			MaxTextLength:  1024,
			MaskToken:      "<MASK>",
			RequestTimeout: 120 * time.Millisecond,
		},
		Patterns: PatternsConfig{
			File: "config/patterns.yaml",
		},
		Tokenizer: TokenizerConfig{
			Backend: "segmenter",
		},
		NER: NERConfig{
			Backend:             "dictionary",
			ConfidenceThreshold: 0.5,
			ModelPath:           "models/distilbert-jp-int8.onnx",
			VocabPath:           "models/vocab.txt",
			MaxSequenceLength:   256,
			IntraOpThreads:      4,
		},
		Risk: RiskConfig{
			BaseScore:          0.2,
			SinglePersonWeight: 0.4,
			MultiPersonWeight:  0.7,
			RegexTypeWeight:    0.1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Backend:   "memory",
			TTL:       24 * time.Hour,
			KeyPrefix: "mask",
			RedisURL:  "redis://localhost:6379/0",
			OpTimeout: 2 * time.Second,
		},
		Events: EventsConfig{
			Enabled:        false,
			Channel:        "pii-risk-queue",
			RedisURL:       "redis://localhost:6379/0",
			PublishTimeout: 2 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Analytics: AnalyticsConfig{
			DatabaseURL:     "",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			BatchSize:       100,
			FlushInterval:   5 * time.Second,
			ExportPath:      "risk_events.parquet",
		},
		Security: SecurityConfig{
			RateLimitEnabled:  true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			File: FileConfig{
				Enabled: false,
				Path:    "logs/maskd.log",
			},
		},
	}
}
