package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/geocms/lab-reservation/internal/model"
)

var tracer = otel.Tracer("github.com/geocms/lab-reservation/internal/service")

func startSpan(ctx context.Context, name string, actor model.Actor, labID uint64) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.Int64("actor.id", int64(actor.UserID)),
		attribute.String("actor.role", string(actor.Role)),
	}
	if labID != 0 {
		attrs = append(attrs, attribute.Int64("lab.id", int64(labID)))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span.  Rejections the caller can act on are
// tagged with their kind but do not mark the span as failed.
func endSpan(span trace.Span, err error) {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			span.SetAttributes(attribute.String("workflow.rejection", string(e.Kind)))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
