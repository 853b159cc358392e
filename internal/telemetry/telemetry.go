package telemetry

import (
	"context"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs an OTLP trace pipeline when OTEL_EXPORTER_OTLP_ENDPOINT is
// set. Without it tracing stays on the global no-op provider.
func Setup(serviceName, version string) ShutdownFunc {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure, _ := os.LookupEnv("OTEL_EXPORTER_OTLP_INSECURE"); insecure == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Printf("telemetry exporter endpoint=%s: %v", endpoint, err)
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		log.Printf("telemetry resource: %v", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.Printf("telemetry exporting traces endpoint=%s service=%s", endpoint, serviceName)
	return provider.Shutdown
}
