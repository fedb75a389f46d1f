package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "stakingd", Environment: "test"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer("stakingd/test").Start(context.Background(), "noop")
	span.End()
}

func TestInitRejectsSampleRatio(t *testing.T) {
	if _, err := Init(context.Background(), Config{ServiceName: "stakingd", SampleRatio: 1.5}); err == nil {
		t.Fatalf("expected error for ratio above one")
	}
}

func TestOperationSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("stakingd/test")

	_, span := StartOperation(context.Background(), tracer, "stake")
	EndOperation(span, "ok", nil)
	_, span = StartOperation(context.Background(), tracer, "claim")
	EndOperation(span, "rejected", errors.New("nothing to claim"))

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("ended spans %d, want 2", len(ended))
	}
	if ended[0].Name() != "ledger.stake" || ended[0].Status().Code != codes.Ok {
		t.Fatalf("stake span %q status %v", ended[0].Name(), ended[0].Status())
	}
	failed := ended[1]
	if failed.Name() != "ledger.claim" || failed.Status().Code != codes.Error {
		t.Fatalf("claim span %q status %v", failed.Name(), failed.Status())
	}
	if len(failed.Events()) == 0 || failed.Events()[0].Name != "exception" {
		t.Fatalf("error not recorded on span: %v", failed.Events())
	}
	var op string
	for _, kv := range failed.Attributes() {
		if kv.Key == OperationKey {
			op = kv.Value.AsString()
		}
	}
	if op != "claim" {
		t.Fatalf("operation attribute %q", op)
	}
}
