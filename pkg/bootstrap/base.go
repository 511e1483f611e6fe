package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
)

// Base holds what every service command needs: configuration, logger and
// optional shared connections.
type Base struct {
	Config *config.Config
	Logger logger.Logger
	Redis  *redis.Client
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects when a Redis host is configured and leaves Redis nil otherwise.
func (b *Base) InitRedis(ctx context.Context) error {
	if b.Config.Database.Redis.Host == "" {
		return nil
	}
	client, err := NewRedisConnector(b.Config.Database.Redis, b.Logger).Connect(ctx)
	if err != nil {
		return err
	}
	b.Redis = client
	return nil
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
