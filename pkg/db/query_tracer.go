package db

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"webmail/pkg/metrics"
	"webmail/pkg/otel"
)

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	sql       string
	operation string
	span      trace.Span
}

// QueryTracer 实现 pgx.QueryTracer：记录查询耗时指标、慢查询日志和 DB span
type QueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
}

// NewQueryTracer 创建 QueryTracer，slowThreshold 为 0 时默认 100ms
func NewQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *QueryTracer {
	if slowThreshold == 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &QueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
	}
}

// TraceQueryStart 查询开始时的钩子
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := Operation(data.SQL)
	ctx, span := otel.DBSpan(ctx, op, truncateSQL(data.SQL))
	return context.WithValue(ctx, queryStartKey{}, queryStart{
		at:        time.Now(),
		sql:       data.SQL,
		operation: op,
		span:      span,
	})
}

// TraceQueryEnd 查询结束时的钩子
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	duration := time.Since(start.at)
	otel.EndDBSpan(start.span, data.Err)
	metrics.RecordDBQueryDuration(start.operation, duration)

	if duration > t.slowThreshold {
		t.logger.Warn("slow-query",
			zap.String("sql", truncateSQL(start.sql)),
			zap.Duration("took", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
		metrics.IncrementSlowQuery(start.operation)
	}
}

// Operation 返回 SQL 的首个关键字（小写），用作指标 label
func Operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

// 截断 SQL 语句（避免日志过长）
func truncateSQL(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > 200 {
		return sql[:200] + "..."
	}
	return sql
}
