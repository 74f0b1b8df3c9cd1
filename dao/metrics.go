package dao

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/syssam/relgraph"
)

type metrics struct {
	ops        *prometheus.CounterVec
	seconds    *prometheus.HistogramVec
	violations *prometheus.CounterVec
	deleted    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		ops: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_operations_total",
			Help: "Total number of DAO operations by operation and status.",
		}, []string{"op", "status"})),
		seconds: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relgraph_operation_seconds",
			Help:    "Time spent in DAO operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"})),
		violations: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relgraph_violations_total",
			Help: "Total number of operations rejected by an integrity rule.",
		}, []string{"op", "kind"})),
		deleted: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relgraph_cascade_deleted_total",
			Help: "Total number of instances removed by delete operations, including cascaded ones.",
		})),
	}
}

// register registers col with reg, reusing an identical collector that is
// already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, col C) C {
	if reg == nil {
		return col
	}
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return col
}

// violation returns the metric label of an integrity error, or "".
func violation(err error) string {
	switch {
	case relgraph.IsCardinalityError(err):
		return "cardinality"
	case relgraph.IsCascadeConflict(err):
		return "cascade_conflict"
	case relgraph.IsStructuralConflict(err):
		return "structural_conflict"
	case relgraph.IsRangeError(err):
		return "range"
	case relgraph.IsPrivacyError(err):
		return "privacy"
	case relgraph.IsNotFound(err):
		return "not_found"
	case relgraph.IsValidationError(err):
		return "validation"
	case relgraph.IsConstraintError(err):
		return "constraint"
	default:
		return ""
	}
}

// observe runs fn as the named operation: it opens a span, records the
// operation metrics and logs the outcome.
func (c *Client) observe(ctx context.Context, op, typ string, fn func(context.Context) error, attrs ...slog.Attr) error {
	ctx, span := c.tracer.Start(ctx, "relgraph."+op, trace.WithAttributes(
		attribute.String("relgraph.op", op),
		attribute.String("relgraph.type", typ),
	))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.metrics.ops.WithLabelValues(op, status).Inc()
	c.metrics.seconds.WithLabelValues(op).Observe(elapsed.Seconds())
	attrs = append(attrs, slog.String("op", op), slog.String("type", typ), slog.Duration("duration", elapsed))
	if kind := violation(err); kind != "" {
		c.metrics.violations.WithLabelValues(op, kind).Inc()
		c.log.LogAttrs(ctx, slog.LevelWarn, "relgraph: operation rejected",
			append(attrs, slog.String("violation", kind), slog.Any("error", err))...)
		return err
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	c.log.LogAttrs(ctx, slog.LevelDebug, "relgraph: operation", attrs...)
	return err
}
