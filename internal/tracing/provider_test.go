package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/rampline/rampline/internal/config"
	"github.com/rampline/rampline/internal/stats"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	p, err := Init(context.Background(), config.Tracing{})
	if err != nil {
		t.Fatalf("Init error = %v", err)
	}
	if p.Enabled() {
		t.Fatal("provider without endpoint must be disabled")
	}
	if p.Tracer() == nil {
		t.Fatal("disabled provider must still hand out a tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), config.Tracing{
		Endpoint: "localhost:4317",
		Protocol: "smoke-signals",
	})
	if err == nil {
		t.Fatal("expected error for unknown OTLP protocol")
	}
}

func TestAdapterProcessesEnvelopes(t *testing.T) {
	p := &Provider{} // no-op
	a := NewAdapter(p)

	now := time.Now()
	env := stats.Envelope{
		ID:           "01ABC",
		Request:      "login",
		Scenario:     "s",
		Outcome:      200,
		Start:        now,
		End:          now.Add(10 * time.Millisecond),
		ResponseTime: 10 * time.Millisecond,
	}
	if err := a.Process(env); err != nil {
		t.Fatalf("Process error = %v", err)
	}

	env.Error = "boom"
	env.Outcome = 500
	if err := a.Process(env); err != nil {
		t.Fatalf("Process error = %v", err)
	}
}
