package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hookrelay/internal/constants"
)

// LoadConfig builds the configuration from defaults, an optional YAML file,
// an optional .env file and the process environment, in increasing priority.
func LoadConfig(configFile string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env file: %w", err)
}

func setDefaults() {
	viper.SetDefault("server.port", constants.DefaultPort)
	viper.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	viper.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)
	viper.SetDefault("server.enable_swagger", false)

	viper.SetDefault("relay.webhook_url", "")
	viper.SetDefault("relay.webhook_timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("relay.max_body_bytes", constants.DefaultMaxBodyBytes)

	viper.SetDefault("access.shared_secret", "")
	viper.SetDefault("access.require_api_key", true)

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.backend", constants.RateLimitBackendMemory)
	viper.SetDefault("rate_limit.quota", constants.DefaultRateLimitQuota)
	viper.SetDefault("rate_limit.window", constants.DefaultRateLimitWindow)
	viper.SetDefault("rate_limit.cleanup_interval", constants.DefaultCleanupInterval)
	viper.SetDefault("rate_limit.max_age", constants.DefaultLimiterMaxAge)
	viper.SetDefault("rate_limit.on_store_error", constants.FallbackAllow)

	viper.SetDefault("database.redis.host", "")
	viper.SetDefault("database.redis.port", 6379)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("tracing.enabled", false)
}

func bindEnvVariables() {
	viper.BindEnv("server.port", "SERVER_PORT", "PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.enable_swagger", "SERVER_ENABLE_SWAGGER")

	viper.BindEnv("relay.webhook_url", "RELAY_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")
	viper.BindEnv("relay.webhook_timeout", "RELAY_WEBHOOK_TIMEOUT")
	viper.BindEnv("relay.max_body_bytes", "RELAY_MAX_BODY_BYTES")

	viper.BindEnv("access.shared_secret", "ACCESS_SHARED_SECRET", "SHARED_SECRET")
	viper.BindEnv("access.require_api_key", "ACCESS_REQUIRE_API_KEY", "REQUIRE_API_KEY")

	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	viper.BindEnv("rate_limit.backend", "RATE_LIMIT_BACKEND")
	viper.BindEnv("rate_limit.quota", "RATE_LIMIT_QUOTA")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	viper.BindEnv("rate_limit.on_store_error", "RATE_LIMIT_ON_STORE_ERROR")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles the comma-separated list variables, which viper
// would otherwise split without trimming.
func applyEnvOverrides(cfg *Config) error {
	if origins := viper.GetString("ALLOWED_ORIGINS"); origins != "" {
		cfg.Access.AllowedOrigins = splitList(origins)
	}
	if referers := viper.GetString("ALLOWED_REFERERS"); referers != "" {
		cfg.Access.AllowedReferers = splitList(referers)
	}
	if proxies := viper.GetString("SERVER_TRUSTED_PROXIES"); proxies != "" {
		cfg.Server.TrustedProxies = splitList(proxies)
	}

	cfg.Access.AllowedOrigins = compact(cfg.Access.AllowedOrigins)
	cfg.Access.AllowedReferers = compact(cfg.Access.AllowedReferers)
	cfg.Relay.WebhookURL = strings.TrimSpace(cfg.Relay.WebhookURL)

	return nil
}

func splitList(value string) []string {
	return compact(strings.Split(value, ","))
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
