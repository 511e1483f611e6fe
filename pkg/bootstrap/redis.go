package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/pkg/retry"
)

type RedisConnector struct {
	cfg    config.RedisConfig
	logger logger.Logger
	policy retry.Policy
}

func NewRedisConnector(cfg config.RedisConfig, log logger.Logger) *RedisConnector {
	policy := retry.DefaultPolicy()
	policy.MaxElapsedTime = constants.RedisConnectMaxElapsed
	return &RedisConnector{
		cfg:    cfg,
		logger: log,
		policy: policy,
	}
}

// Connect pings Redis with backoff so the relay survives Redis starting
// slightly later than it does.
func (rc *RedisConnector) Connect(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", rc.cfg.Host, rc.cfg.Port),
		Password: rc.cfg.Password,
		DB:       rc.cfg.DB,
	})

	err := retry.Retry(ctx, rc.policy, func() error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		rc.logger.WarnwCtx(ctx, "Redis not reachable yet, retrying",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	rc.logger.InfowCtx(ctx, "Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}
