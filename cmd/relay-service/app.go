package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"hookrelay/internal/access"
	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/internal/relay"
	"hookrelay/pkg/bootstrap"
	"hookrelay/pkg/health"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/middleware"
	"hookrelay/pkg/ratelimit"
	"hookrelay/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	memoryStore    *ratelimit.MemoryStore
	optionalChecks []health.Checker
	router         *gin.Engine
	server         *http.Server
	tracerProvider *tracing.Provider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(ctx, a.Config.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.InitRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	metrics.RegisterRelayMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if err := router.SetTrustedProxies(a.Config.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}

	if a.tracerProvider.Enabled() {
		router.Use(tracing.GinMiddleware(constants.ServiceName)...)
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	sink := relay.NewWebhookSink(a.Config.Relay.WebhookURL, a.Config.Relay.WebhookTimeout)
	service := relay.NewService(sink, sink.Configured(), a.Logger)
	gate := access.NewGate(a.Config.Access, a.buildLimiter())

	handler := relay.NewHandler(service, gate, a.Config.Relay.MaxBodyBytes, a.Logger)
	handler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(sink)
	if a.Redis != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.Redis))
	}
	for _, checker := range a.optionalChecks {
		healthRegistry.RegisterOptional(checker)
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.Config.Server.EnableSwagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	a.router = router
	return nil
}

// buildLimiter returns nil when rate limiting is disabled.
func (a *App) buildLimiter() *ratelimit.Limiter {
	cfg := a.Config.RateLimit
	if !cfg.Enabled {
		return nil
	}

	rlConfig := ratelimit.RateLimitConfig{
		Quota:           cfg.Quota,
		Window:          cfg.Window,
		CleanupInterval: cfg.CleanupInterval,
		MaxAge:          cfg.MaxAge,
	}

	var store ratelimit.Store
	if cfg.Backend == constants.RateLimitBackendRedis && a.Redis != nil {
		store = ratelimit.NewCircuitBreakerStore(ratelimit.NewRedisStore(a.Redis, rlConfig), a.Config.CircuitBreaker)
		if checker, ok := store.(health.Checker); ok {
			a.optionalChecks = append(a.optionalChecks, checker)
		}
	} else {
		a.memoryStore = ratelimit.NewMemoryStore(rlConfig)
		store = a.memoryStore
	}

	a.Logger.InfowCtx(context.Background(), "Rate limiting enabled",
		"backend", cfg.Backend,
		"quota", cfg.Quota,
		"window", cfg.Window,
	)
	return ratelimit.NewLimiter(store, cfg.OnStoreError, a.Logger)
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	if a.memoryStore != nil {
		g.Go(func() error {
			return a.memoryStore.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
