package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/impairlab/impairctl/internal/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// startRequestTracing installs a tracer provider that writes the spans of the
// requests to the engine to out. The returned function shuts it down: spans
// created afterwards are not recorded.
func startRequestTracing(out io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			"",
			attribute.String("service.name", "impairctl"),
			attribute.String("service.version", version.Get()),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
