package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs global tracer and meter providers that print every
// flow span and the operation counters to w. The returned function flushes
// and uninstalls them.
func setupTracing(w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(w),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
	}

	// spans are exported as they end so a failing command still prints them
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	// counters are exported once, when the command shuts the provider down
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		var errList []error
		if err := tp.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("failed to shut down tracer: %w", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("failed to shut down meter: %w", err))
		}
		return errors.Join(errList...)
	}, nil
}
