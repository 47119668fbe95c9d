package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installTestProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestStartSpanRecords(t *testing.T) {
	exp := installTestProvider(t)

	_, span := StartSpan(context.Background(), "voice.turn")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "voice.turn" {
		t.Fatalf("spans = %+v, want one voice.turn span", spans)
	}
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	installTestProvider(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "brain.send_turn")
	defer span.End()
	Logger(ctx).Info("sent")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Fatalf("log line missing trace_id: %q", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Fatalf("log line missing span_id: %q", out)
	}
}

func TestLoggerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("unexpected trace_id in %q", buf.String())
	}
}

func TestInitTracing(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitTracing(context.Background(), ProviderConfig{ServiceVersion: "test", Exporter: exp})
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	_, span := StartSpan(context.Background(), "voice.turn")
	span.End()

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		t.Fatalf("global provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush() error = %v", err)
	}
	if got := len(exp.GetSpans()); got != 1 {
		t.Fatalf("exported spans = %d, want 1", got)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}
