// Package telemetry wires OpenTelemetry metrics for the completion pipeline.
//
// Metrics are off unless Init is called with an exporter enabled; until then
// the global no-op meter provider is used and recording costs nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const instrumentationScope = "github.com/clintrovert/taskhook"

// Options selects metric exporters
type Options struct {
	ServiceName  string
	Stdout       bool
	OTLPEndpoint string
	Interval     time.Duration
}

// Init installs a global meter provider. The returned function flushes and
// stops it; it is safe to call when no exporter was configured.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !opts.Stdout && opts.OTLPEndpoint == "" {
		return noop, nil
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(opts.ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("telemetry: resource: %w", err)
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if opts.Stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return noop, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}
	if opts.OTLPEndpoint != "" {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(opts.OTLPEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return noop, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

// Metrics holds the pipeline instruments
type Metrics struct {
	CommitsProcessed   metric.Int64Counter
	ClassifierFailures metric.Int64Counter
	TasksCompleted     metric.Int64Counter
	BroadcastDropped   metric.Int64Counter
}

// NewMetrics creates the instruments from provider. A nil provider uses the
// global one.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := provider.Meter(instrumentationScope)

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	metrics := &Metrics{
		CommitsProcessed:   counter("taskhook.commits.processed", "Commits run through the completion pipeline"),
		ClassifierFailures: counter("taskhook.classifier.failures", "Classifier calls that failed or timed out"),
		TasksCompleted:     counter("taskhook.tasks.completed", "Tasks transitioned to Completed"),
		BroadcastDropped:   counter("taskhook.broadcast.dropped", "Completion events dropped for slow subscribers"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("telemetry: instruments: %w", err)
	}
	return metrics, nil
}
