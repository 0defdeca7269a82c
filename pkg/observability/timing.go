package observability

import (
	"context"
	"log/slog"
	"time"
)

// Outcome tag values attached to operation metrics.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Timer measures one scheduling operation and reports it when stopped.
type Timer struct {
	operation string
	start     time.Time
	logger    *slog.Logger
	metrics   Metrics
}

// StartTimer starts timing operation. logger and metrics may be nil.
func StartTimer(operation string, logger *slog.Logger, metrics Metrics) *Timer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Timer{operation: operation, start: time.Now(), logger: logger, metrics: metrics}
}

// Stop records the duration and outcome. Failures log at warn level, the
// rest at debug.
func (t *Timer) Stop(ctx context.Context, err error) time.Duration {
	elapsed := time.Since(t.start)

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeFailed
	}
	tags := []Tag{T("operation", t.operation), T("outcome", outcome)}
	t.metrics.Timing(MetricOperationDuration, elapsed, tags...)
	t.metrics.Counter(MetricOperationTotal, 1, tags...)
	if err != nil {
		t.metrics.Counter(MetricOperationErrors, 1, T("operation", t.operation))
	}

	if t.logger != nil {
		attrs := []slog.Attr{
			slog.String("operation", t.operation),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
			t.logger.LogAttrs(ctx, slog.LevelWarn, "operation failed", attrs...)
		} else {
			t.logger.LogAttrs(ctx, slog.LevelDebug, "operation completed", attrs...)
		}
	}
	return elapsed
}

// TimeOperation runs fn under a Timer.
func TimeOperation(ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() error) error {
	timer := StartTimer(operation, logger, metrics)
	err := fn()
	timer.Stop(ctx, err)
	return err
}

// TimeOperationResult runs fn under a Timer and passes its result through.
func TimeOperationResult[R any](ctx context.Context, logger *slog.Logger, metrics Metrics, operation string, fn func() (R, error)) (R, error) {
	timer := StartTimer(operation, logger, metrics)
	result, err := fn()
	timer.Stop(ctx, err)
	return result, err
}
