package otelx

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("TracerProvider type = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
}

func TestInit_Disabled_DoesNotSampleRoots(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	_, span := otel.Tracer("test").Start(context.Background(), "root")
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Fatal("root spans should not be sampled when tracing is disabled")
	}
}

func TestInit_PropagatesInboundTrace(t *testing.T) {
	_, _ = Init(context.Background(), Options{Enabled: false})

	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	if !fields["traceparent"] || !fields["baggage"] {
		t.Fatalf("propagator fields = %v", fields)
	}

	h := http.Header{}
	h.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(h))
	sc := trace.SpanContextFromContext(ctx)
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", sc.TraceID())
	}
}

func TestServiceName(t *testing.T) {
	if got := serviceName(Options{Service: "welcome", Component: "server"}); got != "welcome.server" {
		t.Fatalf("serviceName = %q", got)
	}
	if got := serviceName(Options{Service: "welcome"}); got != "welcome" {
		t.Fatalf("serviceName = %q", got)
	}
}

func TestExporterOptions(t *testing.T) {
	if n := len(exporterOptions(Options{Endpoint: "localhost:4317"})); n != 2 {
		t.Fatalf("secure options = %d, want 2", n)
	}
	if n := len(exporterOptions(Options{Endpoint: "localhost:4317", Insecure: true})); n != 3 {
		t.Fatalf("insecure options = %d, want 3", n)
	}
}
