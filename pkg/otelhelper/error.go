package otelhelper

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RecordFailure marks the span carried by ctx as failed. Safe to call when
// no span has been started.
func RecordFailure(ctx context.Context, message string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)

	span.RecordError(errors.New(message), trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, message)
}
