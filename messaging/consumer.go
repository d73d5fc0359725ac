package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
)

// Consumer states
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateConsuming    State = "consuming"
	StateDraining     State = "draining"
)

// HandlerFunc processes one decoded event. A returned error nacks the
// message and records a dead-letter row.
type HandlerFunc func(ctx context.Context, env domain.Envelope) error

// subscriptionSpec is remembered so bindings can be rebuilt after a
// reconnect
type subscriptionSpec struct {
	consumerGroup string
	eventTypes    []string
	handler       HandlerFunc
}

// Consumer binds durable per-group queues to the topic exchanges and
// processes deliveries with bounded concurrency and manual acknowledgment.
type Consumer struct {
	conn     *Connection
	dlq      repository.DeadLetterRepository
	prefetch int
	pool     *WorkerPool
	grace    time.Duration

	// checkExchange verifies an exchange exists; a missing exchange is a
	// skip-with-warning, not a failure
	checkExchange func(exchange string) error

	mu    sync.Mutex
	ch    amqpChannel
	state State
	subs  []subscriptionSpec

	loops    sync.WaitGroup
	inflight sync.WaitGroup
}

// NewConsumer creates a new event consumer. The grace period bounds both
// the drain on shutdown and the lifetime of each in-flight delivery.
func NewConsumer(conn *Connection, dlq repository.DeadLetterRepository, prefetch, workers, queueSize int, grace time.Duration) *Consumer {
	c := &Consumer{
		conn:     conn,
		dlq:      dlq,
		prefetch: prefetch,
		pool:     NewWorkerPool(workers, queueSize),
		grace:    grace,
		state:    StateDisconnected,
	}
	c.checkExchange = c.exchangeExists
	return c
}

// Connect opens the consumer's channel with a bounded prefetch. The
// prefetch count is the broker-level backpressure limit: at most that many
// unacknowledged messages are in flight.
func (c *Consumer) Connect() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	c.mu.Lock()
	c.ch = ch
	c.state = StateConnected
	c.mu.Unlock()

	log.Info().Int("prefetch", c.prefetch).Msg("Event consumer connected")
	return nil
}

// State returns the consumer's current lifecycle state
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SubscribeToEvents declares the consumer group's durable queue, binds it to
// each event type's topic exchange, and starts consuming. Exchanges that do
// not exist yet are skipped with a warning; their producers have not started.
func (c *Consumer) SubscribeToEvents(ctx context.Context, consumerGroup string, eventTypes []string, handler HandlerFunc) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("consumer is not connected")
	}

	queueName := QueueNameForGroup(consumerGroup)
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		consumerQueueArgs(),
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	for _, eventType := range eventTypes {
		aggregateType := domain.AggregateFromEventType(eventType)
		if !domain.IsValidAggregateType(aggregateType) {
			log.Warn().Str("event_type", eventType).Msg("Skipping binding for unrecognized event type")
			continue
		}
		exchange := domain.ExchangeForAggregate(aggregateType)

		if err := c.checkExchange(exchange); err != nil {
			log.Warn().Err(err).
				Str("exchange", exchange).
				Str("event_type", eventType).
				Msg("Exchange does not exist yet, skipping binding")
			continue
		}

		if err := ch.QueueBind(queueName, eventType, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s with key %s: %w", queueName, exchange, eventType, err)
		}
		log.Info().
			Str("queue", queueName).
			Str("exchange", exchange).
			Str("routing_key", eventType).
			Msg("Queue bound")
	}

	deliveries, err := ch.Consume(
		queueName,
		consumerGroup, // consumer tag
		false,         // manual ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from %s: %w", queueName, err)
	}

	c.mu.Lock()
	c.state = StateConsuming
	c.subs = append(c.subs, subscriptionSpec{consumerGroup: consumerGroup, eventTypes: eventTypes, handler: handler})
	c.mu.Unlock()

	c.loops.Add(1)
	go c.consumeLoop(ctx, consumerGroup, deliveries, handler)

	log.Info().Str("consumer_group", consumerGroup).Strs("event_types", eventTypes).Msg("Subscribed to events")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, consumerGroup string, deliveries <-chan amqp.Delivery, handler HandlerFunc) {
	defer c.loops.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				log.Warn().Str("consumer_group", consumerGroup).Msg("Delivery channel closed")
				return
			}
			c.inflight.Add(1)
			c.pool.Submit(func() {
				defer c.inflight.Done()
				c.handleDelivery(delivery, handler)
			})
		}
	}
}

// handleDelivery decodes and dispatches one message. Malformed payloads are
// permanently unrecoverable: rejected without requeue and without a
// dead-letter row, since there is nothing well-formed to retry.
//
// Each delivery runs under its own context bounded by the grace period
// rather than the consume context. A shutdown signal must not abort a
// handler mid-delivery or lose the dead-letter write for a failed one;
// deliveries taken before shutdown get to finish within the grace period.
func (c *Consumer) handleDelivery(delivery amqp.Delivery, handler HandlerFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), c.grace)
	defer cancel()

	env, err := domain.DecodeEnvelope(delivery.Body)
	if err != nil {
		log.Warn().Err(err).
			Str("exchange", delivery.Exchange).
			Str("routing_key", delivery.RoutingKey).
			Msg("Dropping undecodable message")
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("Failed to nack undecodable message")
		}
		return
	}

	if err := c.invokeHandler(ctx, handler, env); err != nil {
		log.Error().Err(err).
			Str("event_id", env.EventID).
			Str("event_type", env.EventType).
			Msg("Handler failed, dead-lettering message")

		if nackErr := delivery.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Str("event_id", env.EventID).Msg("Failed to nack message")
		}

		deadLetter := &models.DeadLetterEvent{
			OriginalEventID: env.EventID,
			ExchangeName:    delivery.Exchange,
			RoutingKey:      delivery.RoutingKey,
			EventPayload:    delivery.Body,
			ErrorMessage:    err.Error(),
			FailedAt:        time.Now(),
		}
		if dlqErr := c.dlq.Create(ctx, deadLetter); dlqErr != nil {
			log.Error().Err(dlqErr).Str("event_id", env.EventID).Msg("Failed to record dead letter")
		}
		return
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		log.Error().Err(ackErr).Str("event_id", env.EventID).Msg("Failed to ack message")
	}
}

// invokeHandler shields the consumer from handler panics
func (c *Consumer) invokeHandler(ctx context.Context, handler HandlerFunc, env domain.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, env)
}

// Monitor watches connection health and transparently reconnects, rebuilding
// the channel and every recorded subscription. It returns when the context
// is cancelled, or with an error once reconnect attempts are exhausted;
// the caller treats that as fatal for this component only.
func (c *Consumer) Monitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.conn.IsClosed() {
				continue
			}

			log.Warn().Msg("Consumer connection lost, reconnecting")
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()

			if err := c.conn.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("consumer could not recover connection: %w", err)
			}
			if err := c.resubscribe(ctx); err != nil {
				return fmt.Errorf("consumer could not resubscribe: %w", err)
			}
			log.Info().Msg("Consumer reconnected and resubscribed")
		}
	}
}

func (c *Consumer) resubscribe(ctx context.Context) error {
	c.mu.Lock()
	specs := c.subs
	c.subs = nil
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}
	for _, spec := range specs {
		if err := c.SubscribeToEvents(ctx, spec.consumerGroup, spec.eventTypes, spec.handler); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown drains in-flight work within the grace period, then closes the
// channel. Unfinished work past the grace period is abandoned; the broker
// redelivers unacknowledged messages.
func (c *Consumer) Shutdown() {
	c.mu.Lock()
	c.state = StateDraining
	ch := c.ch
	c.ch = nil
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing consumer channel")
		}
	}

	done := make(chan struct{})
	go func() {
		c.loops.Wait()
		c.inflight.Wait()
		c.pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Consumer drained cleanly")
	case <-time.After(c.grace):
		log.Warn().Dur("grace", c.grace).Msg("Consumer drain grace period elapsed")
	}

	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// exchangeExists checks for an exchange with a passive declare on a scratch
// channel. A failed passive declare closes its channel, which is why the
// consumer's own channel is never used for the check.
func (c *Consumer) exchangeExists(exchange string) error {
	scratch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	if err := scratch.ExchangeDeclarePassive(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return scratch.Close()
}
