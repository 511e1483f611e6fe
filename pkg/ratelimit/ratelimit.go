package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/pkg/metrics"
)

// Store counts requests per client key.
type Store interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type RateLimitConfig struct {
	Quota           int
	Window          time.Duration
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		Quota:           constants.DefaultRateLimitQuota,
		Window:          constants.DefaultRateLimitWindow,
		CleanupInterval: constants.DefaultCleanupInterval,
		MaxAge:          constants.DefaultLimiterMaxAge,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	d := DefaultConfig()
	if c.Quota <= 0 {
		c.Quota = d.Quota
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.MaxAge < c.Window {
		c.MaxAge = c.Window
	}
	return c
}

// Limiter applies the store-error fallback policy on top of a Store.
type Limiter struct {
	store        Store
	onStoreError string
	logger       logger.Logger
	// storeWarn throttles store-error warnings while the backend is down.
	storeWarn *rate.Sometimes
}

func NewLimiter(store Store, onStoreError string, log logger.Logger) *Limiter {
	if onStoreError == "" {
		onStoreError = constants.FallbackAllow
	}
	return &Limiter{
		store:        store,
		onStoreError: onStoreError,
		logger:       log,
		storeWarn:    &rate.Sometimes{First: 1, Interval: constants.StoreErrorLogInterval},
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) Result {
	res, err := l.store.Allow(ctx, key)
	if err != nil {
		metrics.FallbackUsageTotal.WithLabelValues("ratelimit", l.onStoreError).Inc()
		l.storeWarn.Do(func() {
			l.logger.WarnwCtx(ctx, "Rate limit store error, applying fallback", "fallback", l.onStoreError, "error", err)
		})
		if l.onStoreError == constants.FallbackDeny {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			return Result{Allowed: false, RetryAfter: time.Second}
		}
		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		return Result{Allowed: true}
	}

	if res.Allowed {
		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
	} else {
		metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
	}
	return res
}

// WriteHeaders sets X-RateLimit-* and, when limited, Retry-After.
func (r Result) WriteHeaders(h http.Header) {
	if r.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	}
	if !r.Allowed {
		secs := int(math.Ceil(r.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.Itoa(secs))
	}
}
