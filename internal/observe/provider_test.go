package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestInitProvider(t *testing.T) {
	ctx := context.Background()
	prevMP, prevTP := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(prevMP)
		otel.SetTracerProvider(prevTP)
	})

	// Same call the serve command makes at startup.
	shutdown, err := InitProvider(ctx, ProviderConfig{})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordStarted(ctx, "en")

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewResourceKeepsSDKSchema(t *testing.T) {
	res, err := newResource(ProviderConfig{ServiceName: "parkspeak", ServiceVersion: "1.2.3"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	if got, want := res.SchemaURL(), resource.Default().SchemaURL(); got != want {
		t.Errorf("schema url = %q, want %q", got, want)
	}

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[string(semconv.ServiceNameKey)] != "parkspeak" {
		t.Errorf("service.name = %q", attrs[string(semconv.ServiceNameKey)])
	}
	if attrs[string(semconv.ServiceVersionKey)] != "1.2.3" {
		t.Errorf("service.version = %q", attrs[string(semconv.ServiceVersionKey)])
	}
	if _, ok := attrs["telemetry.sdk.language"]; !ok {
		t.Error("SDK default attributes missing")
	}
}
