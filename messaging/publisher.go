package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
)

// Publisher persists domain events and fans them out over the topic
// exchanges. Publishing is best-effort from the producer's point of view:
// once the event is committed to the store, a broker failure only costs the
// formatted message, which is captured as a dead-letter row for retry.
type Publisher struct {
	conn  *Connection
	store eventstore.EventStore
	dlq   repository.DeadLetterRepository

	// reopen re-establishes the channel after a reconnect has replaced the
	// underlying connection
	reopen func() error

	mu sync.Mutex
	ch amqpChannel
}

// NewPublisher creates a new event publisher
func NewPublisher(conn *Connection, store eventstore.EventStore, dlq repository.DeadLetterRepository) *Publisher {
	p := &Publisher{
		conn:  conn,
		store: store,
		dlq:   dlq,
	}
	p.reopen = p.Connect
	return p
}

// Connect opens the publisher's channel and declares the exchange topology
func (p *Publisher) Connect() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		return err
	}

	p.mu.Lock()
	p.ch = ch
	p.mu.Unlock()

	log.Info().Msg("Event publisher connected")
	return nil
}

// PublishDomainEvent stores the event and then publishes it. Durability
// precedes delivery: a store error surfaces to the caller, a publish error
// does not.
func (p *Publisher) PublishDomainEvent(ctx context.Context, params eventstore.StoreEventParams) (*models.Event, error) {
	event, err := p.store.StoreEvent(ctx, params)
	if err != nil {
		return nil, err
	}

	p.PublishEvent(ctx, event)
	return event, nil
}

// PublishEvent publishes a stored event to its aggregate's topic exchange,
// keyed by event type. On any failure it records a dead-letter row and
// returns; the event itself is already durable.
func (p *Publisher) PublishEvent(ctx context.Context, event *models.Event) {
	env := domain.NewEnvelope(event)
	exchange := domain.ExchangeForAggregate(event.AggregateType)

	body, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to encode event envelope")
		return
	}

	if err := p.publish(exchange, event.EventType, body, amqp.Table{
		"x-event-id":       event.EventID,
		"x-aggregate-id":   event.AggregateID,
		"x-aggregate-type": event.AggregateType,
		"x-event-version":  int32(event.Version),
		"x-correlation-id": event.CorrelationID,
		"x-causation-id":   event.CausationID,
	}); err != nil {
		log.Error().Err(err).
			Str("event_id", event.EventID).
			Str("exchange", exchange).
			Str("routing_key", event.EventType).
			Msg("Failed to publish event, recording dead letter")

		deadLetter := &models.DeadLetterEvent{
			OriginalEventID: event.EventID,
			ExchangeName:    exchange,
			RoutingKey:      event.EventType,
			EventPayload:    body,
			ErrorMessage:    err.Error(),
			FailedAt:        time.Now(),
		}
		if dlqErr := p.dlq.Create(ctx, deadLetter); dlqErr != nil {
			log.Error().Err(dlqErr).Str("event_id", event.EventID).Msg("Failed to record dead letter")
		}
		return
	}

	log.Info().
		Str("event_id", event.EventID).
		Str("exchange", exchange).
		Str("routing_key", event.EventType).
		Msg("Event published")
}

// PublishRaw re-publishes an already-serialized envelope to a specific
// exchange and routing key. Used by the dead-letter handler for retries.
func (p *Publisher) PublishRaw(ctx context.Context, exchange, routingKey string, payload []byte) error {
	return p.publish(exchange, routingKey, payload, nil)
}

func (p *Publisher) publish(exchange, routingKey string, body []byte, headers amqp.Table) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	}

	if ch != nil {
		err := ch.Publish(exchange, routingKey, false, false, msg)
		if err == nil || !p.connectionAlive() {
			return err
		}
		// The channel predates the current connection: a reconnect replaced
		// the underlying conn since this channel was opened.
	} else if !p.connectionAlive() {
		return fmt.Errorf("publisher is not connected")
	}

	if err := p.reopen(); err != nil {
		return err
	}

	p.mu.Lock()
	ch = p.ch
	p.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("publisher is not connected")
	}
	return ch.Publish(exchange, routingKey, false, false, msg)
}

func (p *Publisher) connectionAlive() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher's channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
