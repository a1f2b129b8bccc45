// Package telemetry wires tracing and metrics for the research service:
// OTLP span export for the agent pipeline and Prometheus counters served on
// the API's /metrics endpoint.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/aquaregiaswarm-blip/scout/config"
)

var (
	// SessionsStarted counts research sessions the API kicked off.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scout_sessions_started_total",
		Help: "Research sessions started.",
	})

	// SessionsFinished counts sessions per terminal status.
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scout_sessions_finished_total",
		Help: "Research sessions finished, by terminal status.",
	}, []string{"status"})

	// StreamSubscribers gauges currently attached SSE subscribers.
	StreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scout_stream_subscribers",
		Help: "Currently connected progress-stream subscribers.",
	})
)

// Telemetry holds the tracer provider for shutdown.
type Telemetry struct {
	tp *sdktrace.TracerProvider
}

// Setup initializes OTLP trace export. When disabled, the global otel API
// stays a no-op and spans cost nothing.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("scout"),
			attribute.String("service.namespace", "scout"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("resource init: %w", err)
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithDialOption(grpc.WithBlock()),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp init: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Telemetry{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}
