package otelcol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"licensing-controlplane/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(NewTracerProvider),
	fx.Invoke(func(trace.TracerProvider) {}),
)

// NewExporter builds the OTLP span exporter selected by OTEL.EXPORTER.
func NewExporter(ctx context.Context, cfg *config.Config) (*otlptrace.Exporter, error) {
	oc := cfg.Otel
	switch strings.ToLower(oc.Exporter) {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithCompressor("gzip")}
		if oc.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(oc.Endpoint))
		}
		if oc.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case "http", "":
		opts := []otlptracehttp.Option{otlptracehttp.WithCompression(otlptracehttp.GzipCompression)}
		if oc.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(oc.Endpoint))
		}
		if oc.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	default:
		return nil, fmt.Errorf("unsupported otel exporter %q", oc.Exporter)
	}
}

// NewTracerProvider installs the global tracer provider. With OTEL.ENABLED
// unset a no-op provider is used.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if !cfg.Otel.Enabled {
		return noop.NewTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exporter, err := NewExporter(ctx, cfg)
	if err != nil {
		zap.L().Error("failed to create trace exporter", zap.Error(err))
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	zap.L().Info("tracing enabled", zap.String("exporter", cfg.Otel.Exporter), zap.String("endpoint", cfg.Otel.Endpoint))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
