package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nextlevelbuilder/roomclaw/internal/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{Enabled: true, Protocol: "carrier-pigeon"}, "test")
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestEndRecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := Start(context.Background(), "agent.turn")
	End(span, errors.New("boom"))

	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Name() != "agent.turn" {
		t.Fatalf("spans = %v", ended)
	}
	if ended[0].Status().Description != "boom" {
		t.Fatalf("status = %+v", ended[0].Status())
	}
}
