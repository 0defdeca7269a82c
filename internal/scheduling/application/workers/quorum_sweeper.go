package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/pkg/observability"
)

// DefaultSweepInterval is how often open coordination groups are checked.
const DefaultSweepInterval = 30 * time.Second

// CoordinationExpirer times out coordination groups past their deadline.
type CoordinationExpirer interface {
	Handle(ctx context.Context, cmd commands.ExpireCoordinationCommand) (*commands.ExpireCoordinationResult, error)
}

// QuorumSweeper expires coordination groups that missed their response window.
type QuorumSweeper struct {
	loop
	expirer CoordinationExpirer
	metrics observability.Metrics
	now     func() time.Time
}

// NewQuorumSweeper creates a sweeper.
func NewQuorumSweeper(expirer CoordinationExpirer, interval time.Duration, logger *slog.Logger, metrics observability.Metrics) *QuorumSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &QuorumSweeper{
		loop:    newLoop("quorum-sweeper", interval, logger),
		expirer: expirer,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled or Stop is called.
func (w *QuorumSweeper) Run(ctx context.Context) error {
	return w.run(ctx, w.sweep)
}

func (w *QuorumSweeper) sweep(ctx context.Context) {
	result, err := w.expirer.Handle(ctx, commands.ExpireCoordinationCommand{Now: w.now().UTC()})
	if err != nil {
		w.logger.ErrorContext(ctx, "quorum sweep failed", "error", err)
		return
	}
	for _, g := range result.Expired {
		w.logger.InfoContext(ctx, "coordination timed out",
			"appointment_id", g.AppointmentID,
			"conflict_id", g.ConflictID,
			"released", g.Released,
			"options", g.Options,
		)
	}
	if n := len(result.Expired); n > 0 {
		w.metrics.Counter(observability.MetricQuorumTimeouts, int64(n))
	}
}
