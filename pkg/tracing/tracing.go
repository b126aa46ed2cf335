// Package tracing wires an OpenTelemetry tracer for the engine. When tracing
// is disabled every helper degrades to the no-op span already on the context.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/okian/callscore"

var (
	mu             sync.RWMutex
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
)

// Option configures Init.
type Option func(*options)

type options struct {
	out         io.Writer
	serviceName string
	pretty      bool
}

// WithWriter sends exported spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithServiceName overrides the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithPrettyPrint indents exported spans.
func WithPrettyPrint() Option {
	return func(o *options) { o.pretty = true }
}

// Init installs a tracer provider exporting to stdout. It is safe to call
// once per process; Shutdown flushes it.
func Init(ctx context.Context, opts ...Option) error {
	o := options{out: os.Stdout, serviceName: "callscore"}
	for _, opt := range opts {
		opt(&o)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.out)}
	if o.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", o.serviceName),
	))
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	tracerProvider = tp
	tracer = tp.Tracer(instrumentationName)
	mu.Unlock()
	return nil
}

// Shutdown flushes and stops the tracer provider, if any.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := tracerProvider
	tracerProvider = nil
	tracer = nil
	mu.Unlock()

	if tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

// Enabled reports whether Init installed a tracer.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return tracer != nil
}

// StartSpan starts a span when tracing is enabled.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()

	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span as failed when err is non-nil.
func RecordError(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
