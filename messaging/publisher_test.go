package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/wordweave/services/event/config"
	"example.com/wordweave/services/event/models"
)

func storedEvent() *models.Event {
	return &models.Event{
		EventID:       "evt-1",
		AggregateID:   "user-42",
		AggregateType: "user",
		EventType:     "user.created",
		EventData:     []byte(`{"username":"ada"}`),
		Metadata:      []byte(`{}`),
		Version:       1,
		Timestamp:     1700000000000,
	}
}

func TestPublishEventDeliversToTopicExchange(t *testing.T) {
	ch := newFakeChannel()
	dlq := new(MockDeadLetterRepository)

	publisher := &Publisher{dlq: dlq, ch: ch}
	publisher.PublishEvent(context.Background(), storedEvent())

	require.Len(t, ch.published, 1)
	published := ch.published[0]
	assert.Equal(t, "user.events", published.exchange)
	assert.Equal(t, "user.created", published.routingKey)
	assert.Equal(t, uint8(amqp.Persistent), published.msg.DeliveryMode)
	assert.Equal(t, "application/json", published.msg.ContentType)
	assert.Equal(t, "evt-1", published.msg.Headers["x-event-id"])
	assert.Equal(t, int32(1), published.msg.Headers["x-event-version"])

	// No dead letter on the happy path
	dlq.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPublishEventDeadLettersOnBrokerFailure(t *testing.T) {
	ch := newFakeChannel()
	ch.publishErr = errBrokerDown

	dlq := new(MockDeadLetterRepository)
	dlq.On("Create", mock.Anything, mock.MatchedBy(func(event *models.DeadLetterEvent) bool {
		return event.OriginalEventID == "evt-1" &&
			event.ExchangeName == "user.events" &&
			event.RoutingKey == "user.created" &&
			len(event.EventPayload) > 0 &&
			event.RetryCount == 0
	})).Return(nil).Once()

	publisher := &Publisher{dlq: dlq, ch: ch}
	publisher.PublishEvent(context.Background(), storedEvent())

	assert.Empty(t, ch.published)
	dlq.AssertExpectations(t)
}

func TestPublishEventDeadLettersWhenDisconnected(t *testing.T) {
	dlq := new(MockDeadLetterRepository)
	dlq.On("Create", mock.Anything, mock.AnythingOfType("*models.DeadLetterEvent")).Return(nil).Once()

	publisher := &Publisher{dlq: dlq}
	publisher.PublishEvent(context.Background(), storedEvent())

	dlq.AssertExpectations(t)
}

func TestPublishRetriesOnFreshChannelAfterReconnect(t *testing.T) {
	// A zero-value amqp.Connection reports open, standing in for a healthy
	// connection that replaced the one the stale channel was opened on.
	stale := newFakeChannel()
	stale.publishErr = errBrokerDown
	fresh := newFakeChannel()

	dlq := new(MockDeadLetterRepository)
	publisher := &Publisher{dlq: dlq, ch: stale, conn: &Connection{conn: &amqp.Connection{}}}
	publisher.reopen = func() error {
		publisher.mu.Lock()
		publisher.ch = fresh
		publisher.mu.Unlock()
		return nil
	}

	publisher.PublishEvent(context.Background(), storedEvent())

	require.Len(t, fresh.published, 1)
	assert.Equal(t, "user.events", fresh.published[0].exchange)
	assert.Equal(t, "user.created", fresh.published[0].routingKey)
	dlq.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPublishOpensChannelLazilyWhenConnected(t *testing.T) {
	fresh := newFakeChannel()
	publisher := &Publisher{conn: &Connection{conn: &amqp.Connection{}}}
	publisher.reopen = func() error {
		publisher.mu.Lock()
		publisher.ch = fresh
		publisher.mu.Unlock()
		return nil
	}

	payload := []byte(`{"id":"evt-1","event_type":"user.created"}`)
	require.NoError(t, publisher.PublishRaw(context.Background(), "user.events", "user.created", payload))

	require.Len(t, fresh.published, 1)
	assert.Equal(t, payload, fresh.published[0].msg.Body)
}

func TestPublishEventDeadLettersWhenReopenFails(t *testing.T) {
	stale := newFakeChannel()
	stale.publishErr = errBrokerDown

	dlq := new(MockDeadLetterRepository)
	dlq.On("Create", mock.Anything, mock.AnythingOfType("*models.DeadLetterEvent")).Return(nil).Once()

	publisher := &Publisher{dlq: dlq, ch: stale, conn: &Connection{conn: &amqp.Connection{}}}
	publisher.reopen = func() error { return errBrokerDown }

	publisher.PublishEvent(context.Background(), storedEvent())

	dlq.AssertExpectations(t)
}

func TestConnectionMonitorStopsOnContextCancel(t *testing.T) {
	conn := NewConnection(config.RabbitMQConfig{MaxReconnects: 1, ReconnectInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, conn.Monitor(ctx, time.Millisecond))
}

func TestPublishRawSendsPayloadVerbatim(t *testing.T) {
	ch := newFakeChannel()
	publisher := &Publisher{ch: ch}

	payload := []byte(`{"id":"evt-1","event_type":"user.created"}`)
	require.NoError(t, publisher.PublishRaw(context.Background(), "user.events", "user.created", payload))

	require.Len(t, ch.published, 1)
	assert.Equal(t, payload, ch.published[0].msg.Body)
	assert.Equal(t, uint8(amqp.Persistent), ch.published[0].msg.DeliveryMode)
}

func TestDeclareTopology(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, declareTopology(ch))

	assert.ElementsMatch(t, []string{
		"user.events", "post.events", "comment.events", "like.events",
		DeadLetterExchange,
	}, ch.exchanges)

	dlqArgs, ok := ch.queues[DeadLetterQueue]
	require.True(t, ok)
	assert.Equal(t, int32(24*60*60*1000), dlqArgs["x-message-ttl"])

	require.Len(t, ch.bindings, 1)
	assert.Equal(t, binding{queue: DeadLetterQueue, key: DeadLetterRoutingKey, exchange: DeadLetterExchange}, ch.bindings[0])
}

func TestConsumerQueueArgsRouteToDeadLetterTopology(t *testing.T) {
	args := consumerQueueArgs()
	assert.Equal(t, DeadLetterExchange, args["x-dead-letter-exchange"])
	assert.Equal(t, DeadLetterRoutingKey, args["x-dead-letter-routing-key"])
}

func TestQueueNameForGroup(t *testing.T) {
	assert.Equal(t, "event_service_queue", QueueNameForGroup("event_service"))
}
