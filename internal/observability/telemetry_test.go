package observability_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/enginefarm/unreal-adaptor/internal/observability"
)

type testPropagator struct{}

func (testPropagator) Inject(context.Context, propagation.TextMapCarrier) {}

func (testPropagator) Extract(ctx context.Context, _ propagation.TextMapCarrier) context.Context {
	return ctx
}

func (testPropagator) Fields() []string { return nil }

type testErrorHandler struct{}

func (testErrorHandler) Handle(error) {}

// installSentinels replaces the otel globals with recognisable values and
// restores the originals when the test ends.
func installSentinels(t *testing.T) *sdktrace.TracerProvider {
	t.Helper()

	origTP := otel.GetTracerProvider()
	origPropagator := otel.GetTextMapPropagator()
	origErrorHandler := otel.GetErrorHandler()

	sentinelTP := sdktrace.NewTracerProvider()

	t.Cleanup(func() {
		_ = sentinelTP.Shutdown(context.Background())

		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origPropagator)
		otel.SetErrorHandler(origErrorHandler)
	})

	otel.SetTracerProvider(sentinelTP)
	otel.SetTextMapPropagator(testPropagator{})
	otel.SetErrorHandler(testErrorHandler{})

	return sentinelTP
}

func assertSentinels(t *testing.T, sentinelTP *sdktrace.TracerProvider) {
	t.Helper()

	if got := otel.GetTracerProvider(); got != sentinelTP {
		t.Fatal("tracer provider was not restored")
	}

	if _, ok := otel.GetTextMapPropagator().(testPropagator); !ok {
		t.Fatal("propagator was not restored")
	}

	if _, ok := otel.GetErrorHandler().(testErrorHandler); !ok {
		t.Fatal("error handler was not restored")
	}
}

func TestSetupTelemetry_Disabled(t *testing.T) {
	sentinelTP := installSentinels(t)

	for _, cfg := range []*observability.TelemetryConfig{nil, {Enabled: false}} {
		shutdown, err := observability.SetupTelemetry(t.Context(), cfg)
		if err != nil {
			t.Fatalf("SetupTelemetry(%v) error = %v", cfg, err)
		}

		if err := shutdown(t.Context()); err != nil {
			t.Fatalf("shutdown error: %v", err)
		}

		assertSentinels(t, sentinelTP)
	}
}

func TestSetupTelemetry_EnabledRestoresGlobals(t *testing.T) {
	sentinelTP := installSentinels(t)

	shutdown, err := observability.SetupTelemetry(t.Context(), &observability.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "localhost:4318",
		ServiceName: "unreal-adaptor-test",
		Version:     "0.0.1",
		Commit:      "abc123",
		Environment: "test",
	})
	if err != nil {
		t.Fatalf("SetupTelemetry() error = %v", err)
	}

	tp := otel.GetTracerProvider()
	if _, isNoop := tp.(*noop.TracerProvider); isNoop || tp == sentinelTP {
		t.Fatalf("tracer provider = %T, want the configured SDK provider", tp)
	}

	// Nothing listens on the endpoint; a cancelled context still restores
	// the globals.
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_ = shutdown(ctx)

	assertSentinels(t, sentinelTP)
}

func TestTracer_UsesGlobalProvider(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)

	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = provider.Shutdown(context.Background())
	})

	_, span := observability.Tracer("unreal-adaptor.test").Start(t.Context(), "adaptor.start")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "adaptor.start" {
		t.Fatalf("recorded spans = %v, want [adaptor.start]", ended)
	}
}

func TestIsTelemetryEnabled(t *testing.T) {
	tests := []struct {
		envValue string
		want     bool
	}{
		{"", false},
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"random", false},
		{"  true  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.envValue, func(t *testing.T) {
			t.Setenv("OTEL_ENABLED", tt.envValue)

			if got := observability.IsTelemetryEnabled(); got != tt.want {
				t.Errorf("IsTelemetryEnabled() = %v, want %v (env=%q)", got, tt.want, tt.envValue)
			}
		})
	}
}
