package messaging

import (
	"fmt"

	"github.com/streadway/amqp"

	"example.com/wordweave/services/event/domain"
)

// Broker topology names. These are wire-level contracts shared with the
// other services and must not change.
const (
	DeadLetterExchange   = "dead_letter_exchange"
	DeadLetterQueue      = "dead_letter_queue"
	DeadLetterRoutingKey = "failed"

	// Dead-lettered messages expire after 24 hours
	deadLetterMessageTTL = 24 * 60 * 60 * 1000
)

// QueueNameForGroup returns the durable queue name for a consumer group
func QueueNameForGroup(consumerGroup string) string {
	return consumerGroup + "_queue"
}

// amqpChannel is the subset of *amqp.Channel the publisher and consumer use.
// Channels are single-owner: they are never shared across goroutines.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// declareTopology declares one durable topic exchange per aggregate type and
// the dead-letter topology. ExchangeDeclare is idempotent so this is safe to
// run on every (re)connect.
func declareTopology(ch amqpChannel) error {
	for _, aggregateType := range domain.AggregateTypes() {
		exchange := domain.ExchangeForAggregate(aggregateType)
		if err := ch.ExchangeDeclare(
			exchange,
			"topic",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	if err := ch.ExchangeDeclare(
		DeadLetterExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-message-ttl": int32(deadLetterMessageTTL)},
	); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	if err := ch.QueueBind(
		DeadLetterQueue,
		DeadLetterRoutingKey,
		DeadLetterExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	return nil
}

// consumerQueueArgs returns the declare arguments for a consumer group
// queue: rejected messages flow to the dead-letter topology.
func consumerQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
	}
}
