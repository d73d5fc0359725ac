package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"

	"example.com/wordweave/services/event/models"
)

// fakeChannel is an in-memory amqpChannel for exercising topology and
// publish/consume paths without a broker
type fakeChannel struct {
	mu sync.Mutex

	publishErr error
	published  []publishedMessage

	exchanges []string
	queues    map[string]amqp.Table
	bindings  []binding

	deliveries chan amqp.Delivery
	consumeErr error

	closed bool
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type binding struct {
	queue    string
	key      string
	exchange string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		queues:     make(map[string]amqp.Table),
		deliveries: make(chan amqp.Delivery),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedMessage{exchange: exchange, routingKey: key, msg: msg})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.deliveries)
	}
	return nil
}

// fakeAcknowledger records ack and nack outcomes for one delivery
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

// MockDeadLetterRepository mocks repository.DeadLetterRepository
type MockDeadLetterRepository struct {
	mock.Mock
}

func (m *MockDeadLetterRepository) Create(ctx context.Context, event *models.DeadLetterEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDeadLetterRepository) FindByID(ctx context.Context, id uint) (*models.DeadLetterEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeadLetterEvent), args.Error(1)
}

func (m *MockDeadLetterRepository) FindRetryable(ctx context.Context, maxRetries int, window time.Duration, limit int) ([]models.DeadLetterEvent, error) {
	args := m.Called(ctx, maxRetries, window, limit)
	return args.Get(0).([]models.DeadLetterEvent), args.Error(1)
}

func (m *MockDeadLetterRepository) List(ctx context.Context, limit, offset int) ([]models.DeadLetterEvent, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.DeadLetterEvent), args.Error(1)
}

func (m *MockDeadLetterRepository) IncrementRetryCount(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeadLetterRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDeadLetterRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

var errBrokerDown = fmt.Errorf("connection refused")
