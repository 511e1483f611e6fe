package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hookrelay/internal/constants"
)

// RedisStore is a sliding-window log shared by every relay instance pointing
// at the same Redis. Each admission is a sorted-set member scored by its
// time in milliseconds.
type RedisStore struct {
	client redis.UniversalClient
	cfg    RateLimitConfig
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, cfg RateLimitConfig) *RedisStore {
	return &RedisStore{
		client: client,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
}

func (s *RedisStore) Allow(ctx context.Context, key string) (Result, error) {
	now := s.now()
	nowMs := now.UnixMilli()
	redisKey := constants.CacheKeyPrefixRate + key
	member := uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(nowMs-s.cfg.Window.Milliseconds(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, s.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("redis rate limit failed: %w", err)
	}

	count := int(card.Val())
	if count <= s.cfg.Quota {
		return Result{
			Allowed:   true,
			Limit:     s.cfg.Quota,
			Remaining: s.cfg.Quota - count,
		}, nil
	}

	// Denied requests do not occupy a slot.
	if err := s.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		return Result{}, fmt.Errorf("redis rate limit cleanup failed: %w", err)
	}

	res := Result{Allowed: false, Limit: s.cfg.Quota}
	if first := oldest.Val(); len(first) > 0 {
		oldestAt := time.UnixMilli(int64(first[0].Score))
		res.RetryAfter = oldestAt.Add(s.cfg.Window).Sub(now)
	}
	return res, nil
}
