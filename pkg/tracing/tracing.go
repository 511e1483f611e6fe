package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
)

const exporterTimeout = 5 * time.Second

// Provider owns the SDK tracer provider when tracing is enabled. A disabled
// Provider keeps the global no-op provider and shuts down as a no-op.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

func (p *Provider) Enabled() bool {
	return p != nil && p.sdk != nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Init exports spans over OTLP/gRPC and installs the W3C propagators.
func Init(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	sampler, err := NewSampler(cfg.Sampler)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = constants.ServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exportCtx, cancel := context.WithTimeout(ctx, exporterTimeout)
	defer cancel()
	exporter, err := otlptracegrpc.New(exportCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{sdk: sdk}, nil
}

// NewSampler maps the configured sampler name to an SDK sampler. An empty
// type samples everything.
func NewSampler(cfg config.SamplerConfig) (sdktrace.Sampler, error) {
	switch cfg.Type {
	case "", "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case "traceidratio", "parentbased_traceidratio":
		if cfg.Param < 0 || cfg.Param > 1 {
			return nil, fmt.Errorf("sampler ratio must be within [0, 1], got %v", cfg.Param)
		}
		ratio := sdktrace.TraceIDRatioBased(cfg.Param)
		if cfg.Type == "traceidratio" {
			return ratio, nil
		}
		return sdktrace.ParentBased(ratio), nil
	default:
		return nil, fmt.Errorf("unknown sampler type %q", cfg.Type)
	}
}

// Start opens a span on the relay tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(constants.ServiceName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records the outcome on span and ends it. A non-nil err marks the
// span as failed.
func EndSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("relay.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}
