package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartOp opens an internal span for one engine operation and returns a
// finish function that records the outcome on the span. Callers defer
// the finish function with the operation's final error:
//
//	ctx, finish := tracing.StartOp(ctx, tracer, SpanEngineStart,
//		attribute.String(AttrProfileName, name))
//	defer func() { finish(err) }()
//
// A nil tracer yields a pass-through with no tracing overhead.
func StartOp(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if tracer == nil {
		return ctx, func(error) {}
	}

	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
