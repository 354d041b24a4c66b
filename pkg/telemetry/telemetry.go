// Package telemetry configures OpenTelemetry trace export over OTLP/HTTP.
package telemetry

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"peachy-go/pkg/log"
)

const defaultServiceName = "peachy-go"

// Options selects where spans are exported.
type Options struct {
	// Endpoint is host:port of the collector, or a URL. Empty disables export.
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// OptionsFromEnv reads OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_SERVICE_NAME.
// An http:// endpoint selects an insecure connection.
func OptionsFromEnv() Options {
	opts := Options{
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	if rest, ok := strings.CutPrefix(opts.Endpoint, "http://"); ok {
		opts.Endpoint, opts.Insecure = rest, true
	} else {
		opts.Endpoint = strings.TrimPrefix(opts.Endpoint, "https://")
	}
	opts.Endpoint = strings.TrimSuffix(opts.Endpoint, "/")
	return opts
}

// Provider owns the tracer provider installed by Setup.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// Setup installs a global tracer provider exporting to opts.Endpoint. With no
// endpoint it returns a disabled Provider and leaves the global no-op
// provider in place.
func Setup(ctx context.Context, opts Options, logger *log.Logger) (*Provider, error) {
	if opts.Endpoint == "" {
		return &Provider{}, nil
	}

	exportOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		exportOpts = append(exportOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exportOpts...)
	if err != nil {
		return nil, err
	}

	name := opts.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	if logger != nil {
		logger.Info("Exporting traces to %s as %s", opts.Endpoint, name)
	}
	return &Provider{provider: provider}, nil
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.provider != nil
}

// Tracer returns a named tracer from the installed provider, or the global
// one when disabled.
func (p *Provider) Tracer(name string) oteltrace.Tracer {
	if !p.Enabled() {
		return otel.Tracer(name)
	}
	return p.provider.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
