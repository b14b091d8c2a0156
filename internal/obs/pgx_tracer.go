package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ctxQueryKey struct{}

type queryTrace struct {
	span    trace.Span
	sql     string
	started time.Time
}

// PGXTracer implements pgx.QueryTracer. It opens a span per statement and,
// when Logger is set, logs statements slower than SlowQuery.
type PGXTracer struct {
	Logger    *zerolog.Logger
	SlowQuery time.Duration
}

// TraceQueryStart starts a span for the SQL statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx."+queryName(data.SQL))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	if fields := strings.Fields(stripNameComment(data.SQL)); len(fields) > 0 {
		span.SetAttributes(attribute.String("db.operation", strings.ToUpper(fields[0])))
	}
	return context.WithValue(ctx, ctxQueryKey{}, &queryTrace{span: span, sql: data.SQL, started: time.Now()})
}

// TraceQueryEnd ends the span and records any error.
func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qt, ok := ctx.Value(ctxQueryKey{}).(*queryTrace)
	if !ok {
		return
	}
	elapsed := time.Since(qt.started)
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		qt.span.RecordError(data.Err)
		qt.span.SetStatus(codes.Error, data.Err.Error())
	}
	qt.span.End()

	if t.Logger != nil && t.SlowQuery > 0 && elapsed >= t.SlowQuery {
		t.Logger.Warn().
			Str("query", queryName(qt.sql)).
			Int64("duration_ms", elapsed.Milliseconds()).
			Str("trace_id", qt.span.SpanContext().TraceID().String()).
			Msg("slow_query")
	}
}

// queryName extracts the "-- name: X" marker used on every statement in internal/db.
func queryName(sql string) string {
	trimmed := strings.TrimSpace(sql)
	const marker = "-- name:"
	if !strings.HasPrefix(trimmed, marker) {
		return "query"
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, marker))
	if len(fields) == 0 {
		return "query"
	}
	return fields[0]
}

func stripNameComment(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if strings.HasPrefix(trimmed, "--") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			return trimmed[idx+1:]
		}
		return ""
	}
	return trimmed
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
