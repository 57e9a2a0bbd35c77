// Package config provides application configuration with multi-source
// priority.
//
// Sources, highest to lowest:
//  1. Environment variables (HAVEN_ prefix, runtime override)
//  2. Config file (~/.haven/config.yaml or ./config.yaml)
//  3. Defaults
//
// Validation uses sentinel errors so callers can branch with
// errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPort indicates the listen port is out of range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrInvalidRetry indicates a retry policy value is out of range.
	ErrInvalidRetry = errors.New("invalid retry configuration")

	// ErrInvalidBreaker indicates a circuit breaker value is out of range.
	ErrInvalidBreaker = errors.New("invalid breaker configuration")

	// ErrInvalidGate indicates an admission gate value is out of range.
	ErrInvalidGate = errors.New("invalid gate configuration")

	// ErrInvalidDuration indicates a timeout or interval is not positive.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrInvalidRateLimit indicates the per-IP rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogLevel indicates an unrecognized log level name.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// TrustProxy enables X-Real-IP / X-Forwarded-For for client IPs.
	// Only set behind a reverse proxy.
	TrustProxy bool `mapstructure:"trust_proxy"`
	// RatePerMinute is the per-IP request budget; RateBurst the
	// instantaneous allowance.
	RatePerMinute int `mapstructure:"rate_per_minute"`
	RateBurst     int `mapstructure:"rate_burst"`
}

// AIConfig selects the upstream models.
type AIConfig struct {
	// Model is the Genkit model name, e.g. "googleai/gemini-2.5-flash".
	Model string `mapstructure:"model"`
	// TTSModel is the speech model, e.g. "gemini-2.5-flash-preview-tts".
	TTSModel string `mapstructure:"tts_model"`
	// Voice is the prebuilt voice name for synthesis.
	Voice string `mapstructure:"voice"`
	// Simulate replaces both providers with deterministic local ones.
	// Forced on when GEMINI_API_KEY is absent.
	Simulate bool `mapstructure:"simulate"`
}

// ResilienceConfig tunes the per-dependency protection stack.
type ResilienceConfig struct {
	RetryMaxAttempts  int           `mapstructure:"retry_max_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`

	BreakerFailureThreshold int           `mapstructure:"breaker_failure_threshold"`
	BreakerSuccessThreshold int           `mapstructure:"breaker_success_threshold"`
	BreakerResetTimeout     time.Duration `mapstructure:"breaker_reset_timeout"`
	BreakerCallTimeout      time.Duration `mapstructure:"breaker_call_timeout"`

	GateMaxConcurrent int `mapstructure:"gate_max_concurrent"`
	GatePerMinute     int `mapstructure:"gate_per_minute"`
	GateQueueLimit    int `mapstructure:"gate_queue_limit"`
}

// CacheConfig tunes the TTL cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// SessionConfig tunes the conversation session store.
type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ObservabilityConfig configures trace export. An empty endpoint
// disables export entirely.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level     string `mapstructure:"level"` // debug, info, warn, error
	JSON      bool   `mapstructure:"json"`
	AddSource bool   `mapstructure:"add_source"`
}

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	AI            AIConfig            `mapstructure:"ai"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Session       SessionConfig       `mapstructure:"session"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Log           LogConfig           `mapstructure:"log"`
}

// Load reads configuration from file, environment and defaults, then
// validates it.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".haven")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	// HAVEN_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("HAVEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Without a key the real providers cannot run; fall back to the
	// simulated ones rather than failing startup.
	if os.Getenv("GEMINI_API_KEY") == "" {
		cfg.AI.Simulate = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.rate_per_minute", 120)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("ai.model", "googleai/gemini-2.5-flash")
	v.SetDefault("ai.tts_model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("ai.voice", "Kore")
	v.SetDefault("ai.simulate", false)

	v.SetDefault("resilience.retry_max_attempts", 3)
	v.SetDefault("resilience.retry_initial_delay", "500ms")
	v.SetDefault("resilience.retry_max_delay", "10s")
	v.SetDefault("resilience.breaker_failure_threshold", 5)
	v.SetDefault("resilience.breaker_success_threshold", 2)
	v.SetDefault("resilience.breaker_reset_timeout", "30s")
	v.SetDefault("resilience.breaker_call_timeout", "30s")
	v.SetDefault("resilience.gate_max_concurrent", 4)
	v.SetDefault("resilience.gate_per_minute", 60)
	v.SetDefault("resilience.gate_queue_limit", 32)

	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.sweep_interval", "5m")

	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.sweep_interval", "5m")

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.service_name", "haven")
	v.SetDefault("observability.environment", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.add_source", false)
}
