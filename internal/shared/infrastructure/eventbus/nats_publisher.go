package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces domain events on NATS subjects.
const SubjectPrefix = "crewplan.events."

// Subject maps a routing key to its NATS subject.
func Subject(routingKey string) string {
	return SubjectPrefix + routingKey
}

// RoutingKeyFromSubject reverses Subject.
func RoutingKeyFromSubject(subject string) string {
	return strings.TrimPrefix(subject, SubjectPrefix)
}

// NATSPublisher publishes events to NATS core subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS and returns a publisher.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url, nats.Name("crewplan-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("NATS publisher connected", "url", conn.ConnectedUrlRedacted())

	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// Publish sends the payload on the subject derived from the routing key.
// The connection buffers writes, so a flush bounded by ctx confirms the
// server received the message before the outbox marks it published.
func (p *NATSPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	msg := nats.NewMsg(Subject(routingKey))
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = payload

	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Error("failed to publish message",
			"routing_key", routingKey,
			"error", err,
		)
		return err
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}

	p.logger.Debug("message published",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

// Ping round-trips to the server.
func (p *NATSPublisher) Ping(ctx context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("NATS connection %s", p.conn.Status())
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return err
	}
	p.logger.Info("NATS publisher closed")
	return nil
}
