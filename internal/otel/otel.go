// Package otel wires tpik's traces and metrics.
//
// Export happens only when an OTLP endpoint is configured. Otherwise the
// tracer and instruments are no-ops.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "tpik"

// Version is copied from cmd.Version before Init.
var Version = "dev"

// OTELConfig is the export target.
type OTELConfig struct {
	Endpoint string // OTLP/HTTP base URL, e.g. "http://localhost:4318"
	Headers  string // key=value,key2=value2
}

// Telemetry bundles the tracer and metric instruments handed to the controller.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// Init installs OTLP/HTTP providers for cfg.Endpoint. An empty endpoint
// yields Noop().
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return Noop(), nil
	}

	target, err := parseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	headers := parseHeaders(cfg.Headers)

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(Version),
	))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	traceExp, err := otlptracehttp.New(ctx, target.traceOptions(headers)...)
	if err != nil {
		return nil, fmt.Errorf("otel trace exporter: %w", err)
	}
	metricExp, err := otlpmetrichttp.New(ctx, target.metricOptions(headers)...)
	if err != nil {
		return nil, fmt.Errorf("otel metric exporter: %w", err)
	}

	t := &Telemetry{
		tp: sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res)),
		// The picker is short-lived; Shutdown flushes the final collection.
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
			sdkmetric.WithResource(res),
		),
	}
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)

	t.Tracer = otel.Tracer(serviceName)
	if t.Metrics, err = NewMetrics(); err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	return t, nil
}

// Noop returns telemetry whose tracer and instruments discard everything.
func Noop() *Telemetry {
	metrics, _ := NewMetrics()
	return &Telemetry{Tracer: nooptrace.NewTracerProvider().Tracer(serviceName), Metrics: metrics}
}

// Shutdown flushes pending spans and metrics.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	if t.tp != nil {
		_ = t.tp.Shutdown(ctx)
	}
	if t.mp != nil {
		_ = t.mp.Shutdown(ctx)
	}
}

// endpoint is an OTLP base URL split the way the exporters want it: host
// and a base path to which the signal suffix is appended.
type endpoint struct {
	host     string
	basePath string
	insecure bool
}

func parseEndpoint(raw string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("otel: invalid endpoint %q: %w", raw, err)
	}
	if u.Host == "" {
		return endpoint{}, fmt.Errorf("otel: endpoint %q has no host", raw)
	}
	return endpoint{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
	}, nil
}

func (e endpoint) traceOptions(headers map[string]string) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(e.host),
		otlptracehttp.WithURLPath(e.basePath + "/v1/traces"),
	}
	if e.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return opts
}

func (e endpoint) metricOptions(headers map[string]string) []otlpmetrichttp.Option {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(e.host),
		otlpmetrichttp.WithURLPath(e.basePath + "/v1/metrics"),
	}
	if e.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(headers))
	}
	return opts
}

// parseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS format. Pairs without a
// key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}
