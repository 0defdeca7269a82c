package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/lib/pq"
)

// SlotSink receives slot changes decoded from notifications.
type SlotSink interface {
	Notify(changes ...domain.SlotChanged)
}

// SlotListener relays crewplan_slot_changed notifications from other
// instances to a local sink, typically the availability registry.
type SlotListener struct {
	dsn    string
	origin string
	sink   SlotSink
	logger *slog.Logger
}

// NewSlotListener creates a listener. Notifications carrying origin are
// skipped because the local registry already saw them.
func NewSlotListener(dsn, origin string, sink SlotSink, logger *slog.Logger) *SlotListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotListener{dsn: dsn, origin: origin, sink: sink, logger: logger.With("component", "slot-listener")}
}

// Run listens until ctx is cancelled.
func (l *SlotListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			l.logger.Warn("slot listener connection problem", "event", ev, "error", err)
		case pq.ListenerEventReconnected:
			l.logger.Info("slot listener reconnected")
		}
	})
	defer func() { _ = listener.Close() }()

	if err := listener.Listen(SlotChangedChannel); err != nil {
		return fmt.Errorf("listen %s: %w", SlotChangedChannel, err)
	}
	l.logger.Info("slot listener started", "channel", SlotChangedChannel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-listener.Notify:
			// nil after a reconnect; changes made while disconnected are lost.
			if n == nil {
				continue
			}
			l.handle(n.Extra)
		case <-ping.C:
			if err := listener.Ping(); err != nil {
				l.logger.Warn("slot listener ping failed", "error", err)
			}
		}
	}
}

func (l *SlotListener) handle(payload string) {
	change, ok := l.decode(payload)
	if !ok {
		return
	}
	l.sink.Notify(change)
}

func (l *SlotListener) decode(payload string) (domain.SlotChanged, bool) {
	var n SlotNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		l.logger.Warn("malformed slot notification", "error", err)
		return domain.SlotChanged{}, false
	}
	if n.Origin == l.origin {
		return domain.SlotChanged{}, false
	}
	return domain.NewSlotChanged(n.Reservation, n.Change), true
}
