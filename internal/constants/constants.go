package constants

import "time"

const (
	ServiceName = "relay-service"
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	ShutdownTimeout        = 5 * time.Second
	RedisConnectMaxElapsed = 30 * time.Second
)

const (
	DefaultPort         = 3000
	DefaultMaxBodyBytes = 1 << 20
	MaxUpstreamBodyRead = 64 << 10
)

const (
	MaxContentLength  = 2000
	MaxLanguageLength = 20
	MaxDetailLength   = 500
	TruncationMarker  = "…[truncated]"
	CodeFence         = "```"
)

const (
	DefaultRateLimitQuota  = 60
	DefaultRateLimitWindow = 60 * time.Second
	DefaultCleanupInterval = 5 * time.Minute
	DefaultLimiterMaxAge   = 10 * time.Minute
	StoreErrorLogInterval  = 10 * time.Second
	CacheKeyPrefixRate     = "ratelimit:"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	HeaderAPIKey = "x-api-key"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
