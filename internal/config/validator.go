package config

import (
	"fmt"
	"net/url"
	"strings"

	"hookrelay/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateRelay(cfg.Relay); err != nil {
		errors = append(errors, err)
	}

	if err := validateAccess(cfg.Access); err != nil {
		errors = append(errors, err)
	}

	if err := validateRateLimit(cfg.RateLimit, cfg.Database.Redis); err != nil {
		errors = append(errors, err)
	}

	if err := validateCircuitBreaker(cfg.CircuitBreaker); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

// validateRelay accepts an empty webhook URL; that case is reported per request.
func validateRelay(cfg RelayConfig) error {
	if cfg.WebhookURL != "" {
		u, err := url.Parse(cfg.WebhookURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{
				Field:   "relay.webhook_url",
				Message: "webhook url must be an absolute http(s) URL",
			}
		}
	}

	if cfg.WebhookTimeout <= 0 {
		return &ValidationError{
			Field:   "relay.webhook_timeout",
			Message: "webhook timeout must be positive",
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		return &ValidationError{
			Field:   "relay.max_body_bytes",
			Message: "max body bytes must be positive",
		}
	}

	return nil
}

func validateAccess(cfg AccessConfig) error {
	for i, origin := range cfg.AllowedOrigins {
		if origin == "*" || strings.HasSuffix(origin, "/") {
			return &ValidationError{
				Field:   fmt.Sprintf("access.allowed_origins[%d]", i),
				Message: fmt.Sprintf("origin %q must be an exact scheme://host[:port] value", origin),
			}
		}
	}
	return nil
}

func validateRateLimit(cfg RateLimitConfig, redis RedisConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Quota <= 0 {
		return &ValidationError{
			Field:   "rate_limit.quota",
			Message: "quota must be positive when rate limiting is enabled",
		}
	}

	if cfg.Window <= 0 {
		return &ValidationError{
			Field:   "rate_limit.window",
			Message: "window must be positive when rate limiting is enabled",
		}
	}

	switch cfg.Backend {
	case constants.RateLimitBackendMemory:
	case constants.RateLimitBackendRedis:
		if redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "redis host is required for the redis rate limit backend",
			}
		}
	default:
		return &ValidationError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("unknown backend: %s (supported: memory, redis)", cfg.Backend),
		}
	}

	switch cfg.OnStoreError {
	case constants.FallbackAllow, constants.FallbackDeny:
	default:
		return &ValidationError{
			Field:   "rate_limit.on_store_error",
			Message: fmt.Sprintf("must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.OnStoreError),
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio < 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: "failure ratio must be between 0 and 1",
		}
	}

	if cfg.Timeout < 0 || cfg.Interval < 0 {
		return &ValidationError{
			Field:   "circuit_breaker",
			Message: "interval and timeout must be non-negative",
		}
	}

	return nil
}
