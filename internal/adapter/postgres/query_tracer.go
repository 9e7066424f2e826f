package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/grove/internal/adapter/metrics"
)

// QueryTracer records per-query latency and errors.
type QueryTracer struct {
	metrics *metrics.DBMetrics
	now     func() time.Time
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

func NewQueryTracer(m *metrics.DBMetrics) *QueryTracer {
	return &QueryTracer{metrics: m, now: time.Now}
}

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: t.now(),
		queryName: queryName(data.SQL),
	})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(qctx.queryName).Observe(t.now().Sub(qctx.startTime).Seconds())
	if data.Err != nil {
		t.metrics.ErrorsTotal.WithLabelValues(qctx.queryName).Inc()
	}
}

// queryName reduces sql to its leading keyword to keep label cardinality low.
func queryName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
