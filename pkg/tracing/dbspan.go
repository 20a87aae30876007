package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DBSpanConfig names the database operation a repository call is about to
// make, attached to the span as attributes.
type DBSpanConfig struct {
	Operation string // SELECT, INSERT, UPDATE, DELETE
	Table     string
}

// StartDBSpan starts a child span for a repository call. Callers must
// call EndDBSpan (or span.End() directly) when the call returns.
func StartDBSpan(ctx context.Context, cfg DBSpanConfig) (context.Context, trace.Span) {
	tracer := GetTracer("database")
	ctx, span := tracer.Start(ctx, "db."+cfg.Operation,
		trace.WithAttributes(
			attribute.String("db.operation", cfg.Operation),
			attribute.String("db.table", cfg.Table),
		),
	)
	return ctx, span
}

// EndDBSpan records the outcome of a repository call and ends the span.
// rowsAffected of -1 means "not applicable" (e.g. a failed query).
func EndDBSpan(span trace.Span, err error, rowsAffected int64) {
	if rowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
