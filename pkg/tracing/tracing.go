// Package tracing sets up the OpenTelemetry tracer provider used by the
// HTTP middleware.
package tracing

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls tracing.
type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	// SampleRatio is the fraction of root spans recorded.
	SampleRatio float64
	// Writer receives exported spans; nil means stdout.
	Writer io.Writer
}

// ConfigFromEnv reads TRACING_ENABLED and TRACING_SAMPLE_RATIO.
func ConfigFromEnv(serviceName, version string) Config {
	cfg := Config{ServiceName: serviceName, Version: version, SampleRatio: 1}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TRACING_ENABLED"))) {
	case "1", "true", "yes", "on":
		cfg.Enabled = true
	}
	if v := os.Getenv("TRACING_SAMPLE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SampleRatio = min(max(f, 0), 1)
		}
	}
	return cfg
}

// Init installs a global tracer provider and returns its shutdown function.
// When tracing is disabled the global no-op provider stays in place.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	))
	if err != nil {
		slog.Warn("Tracing resource incomplete", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("Tracing enabled", "service", cfg.ServiceName, "sample_ratio", cfg.SampleRatio)
	return tp.Shutdown, nil
}
