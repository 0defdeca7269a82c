// Package workers runs the scheduling engine's periodic background jobs.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// loop is the ticker skeleton shared by the workers: one cycle on start,
// then one per interval until the context ends or Stop is called.
type loop struct {
	name     string
	interval time.Duration
	logger   *slog.Logger
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newLoop(name string, interval time.Duration, logger *slog.Logger) loop {
	if logger == nil {
		logger = slog.Default()
	}
	return loop{
		name:     name,
		interval: interval,
		logger:   logger.With("worker", name),
		stopCh:   make(chan struct{}),
	}
}

func (l *loop) run(ctx context.Context, cycle func(context.Context)) error {
	l.running.Store(true)
	defer l.running.Store(false)
	l.logger.Info("worker started", "interval", l.interval)

	cycle(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("worker stopped (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("worker stopped (stop signal)")
			return nil
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// Stop signals the worker to stop gracefully.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// IsRunning returns true if the worker is currently running.
func (l *loop) IsRunning() bool {
	return l.running.Load()
}
