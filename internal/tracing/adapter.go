package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rampline/rampline/internal/stats"
)

// Adapter exports each stat envelope as a client span with the envelope's
// real start and end timestamps.
type Adapter struct {
	tracer trace.Tracer
}

func NewAdapter(provider *Provider) *Adapter {
	return &Adapter{tracer: provider.Tracer()}
}

func (a *Adapter) Process(env stats.Envelope) error {
	_, span := a.tracer.Start(context.Background(), env.Request,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(env.Start),
	)
	span.SetAttributes(
		attribute.String("rampline.correlation_id", env.ID),
		attribute.String("rampline.scenario", env.Scenario),
		attribute.String("rampline.target", env.Target),
		attribute.Int("rampline.outcome", env.Outcome),
		attribute.Bool("rampline.over_budget", env.OverBudget()),
	)
	if env.Error != "" {
		span.RecordError(errors.New(env.Error))
		span.SetStatus(codes.Error, env.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(env.End))
	return nil
}
