package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConsumerConfig configures the NATS consumer.
type NATSConsumerConfig struct {
	URL string
	// QueueGroup load-balances events across worker replicas.
	QueueGroup string
	Buffer     int
	Logger     *slog.Logger
}

// NATSConsumer consumes events from NATS core subjects through a queue group.
// Core NATS has no redelivery, so a failed dispatch is logged and dropped.
type NATSConsumer struct {
	conn      *nats.Conn
	group     string
	buffer    int
	registry  *ConsumerRegistry
	logger    *slog.Logger
	mu        sync.Mutex
	running   bool
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewNATSConsumer connects to NATS and returns a consumer.
func NewNATSConsumer(cfg NATSConsumerConfig, registry *ConsumerRegistry) (*NATSConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = DefaultConsumerQueueName
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("crewplan-consumer"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	cfg.Logger.Info("NATS consumer connected",
		"url", conn.ConnectedUrlRedacted(),
		"queue_group", cfg.QueueGroup,
	)

	return &NATSConsumer{
		conn:      conn,
		group:     cfg.QueueGroup,
		buffer:    cfg.Buffer,
		registry:  registry,
		logger:    cfg.Logger,
		closeChan: make(chan struct{}),
	}, nil
}

// RegisterConsumer registers an event consumer. Start subscribes to every
// registered routing key.
func (c *NATSConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)
}

// Start subscribes and dispatches messages until ctx ends or Close is called.
func (c *NATSConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	msgs := make(chan *nats.Msg, c.buffer)
	var subs []*nats.Subscription
	defer func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}()

	for _, routingKey := range c.registry.GetAllEventTypes() {
		sub, err := c.conn.ChanQueueSubscribe(Subject(routingKey), c.group, msgs)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", routingKey, err)
		}
		subs = append(subs, sub)
	}

	c.logger.Info("started consuming events",
		"queue_group", c.group,
		"subscriptions", len(subs),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer context cancelled, stopping")
			return ctx.Err()

		case <-c.closeChan:
			c.logger.Info("consumer close requested, stopping")
			return nil

		case msg := <-msgs:
			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("failed to process message",
					"subject", msg.Subject,
					"error", err,
				)
			}
		}
	}
}

func (c *NATSConsumer) processMessage(ctx context.Context, msg *nats.Msg) error {
	event := &ConsumedEvent{}
	if err := json.Unmarshal(msg.Data, event); err != nil {
		c.logger.Error("failed to unmarshal event",
			"subject", msg.Subject,
			"error", err,
		)
		return nil
	}

	if event.RoutingKey == "" {
		event.RoutingKey = RoutingKeyFromSubject(msg.Subject)
	}

	start := time.Now()
	if err := c.registry.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s (%s): %w", event.RoutingKey, event.EventID, err)
	}

	c.logger.Debug("event processed successfully",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close stops consumption and closes the connection.
func (c *NATSConsumer) Close() error {
	c.closeOnce.Do(func() { close(c.closeChan) })

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.conn.Close()
	c.logger.Info("NATS consumer closed")
	return nil
}
