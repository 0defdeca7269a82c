package app

import (
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/crewplan/pkg/config"
)

// Supported EVENT_BROKER values.
const (
	BrokerInProcess = "inprocess"
	BrokerRabbitMQ  = "rabbitmq"
	BrokerNATS      = "nats"
)

// NewPublisher creates the outbox publisher for the configured broker. In
// development an unreachable broker degrades to the no-op publisher.
func NewPublisher(cfg *config.Config, bus *eventbus.InProcessEventBus, logger *slog.Logger) (eventbus.Publisher, error) {
	var (
		publisher eventbus.Publisher
		err       error
	)
	switch cfg.EventBroker {
	case BrokerInProcess, "":
		return bus, nil
	case BrokerRabbitMQ:
		publisher, err = eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	case BrokerNATS:
		publisher, err = eventbus.NewNATSPublisher(cfg.NATSURL, logger)
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}

	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("event broker not available, using noop publisher",
				"broker", cfg.EventBroker,
				"error", err,
			)
			return eventbus.NewNoopPublisher(logger), nil
		}
		return nil, err
	}
	return publisher, nil
}

// NewConsumer creates the consumer side of the configured broker. The
// in-process bus delivers on publish, so it is its own consumer.
func NewConsumer(cfg *config.Config, bus *eventbus.InProcessEventBus, logger *slog.Logger) (eventbus.Consumer, error) {
	switch cfg.EventBroker {
	case BrokerInProcess, "":
		return bus, nil
	case BrokerRabbitMQ:
		return eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:    cfg.RabbitMQURL,
			Logger: logger,
		}, eventbus.NewConsumerRegistry(logger))
	case BrokerNATS:
		return eventbus.NewNATSConsumer(eventbus.NATSConsumerConfig{
			URL:    cfg.NATSURL,
			Logger: logger,
		}, eventbus.NewConsumerRegistry(logger))
	default:
		return nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
	}
}
