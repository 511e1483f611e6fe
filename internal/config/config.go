package config

import (
	"time"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Relay          RelayConfig          `mapstructure:"relay"`
	Access         AccessConfig         `mapstructure:"access"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	EnableSwagger  bool          `mapstructure:"enable_swagger"`
}

type RelayConfig struct {
	// WebhookURL may be empty; requests then fail with 500 instead of startup failing.
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

type AccessConfig struct {
	SharedSecret    string   `mapstructure:"shared_secret"`
	RequireAPIKey   bool     `mapstructure:"require_api_key"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowedReferers []string `mapstructure:"allowed_referers"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"` // "memory" or "redis"
	Quota           int           `mapstructure:"quota"`
	Window          time.Duration `mapstructure:"window"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	OnStoreError    string        `mapstructure:"on_store_error"` // "allow" or "deny"
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
