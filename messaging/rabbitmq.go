package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"example.com/wordweave/services/event/config"
)

// Connection owns the single AMQP connection for a process. Channels are
// handed out to one owner each; the connection itself is safe to share.
type Connection struct {
	url               string
	maxReconnects     int
	reconnectInterval time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnection creates an unconnected AMQP connection manager
func NewConnection(cfg config.RabbitMQConfig) *Connection {
	return &Connection{
		url:               cfg.URL,
		maxReconnects:     cfg.MaxReconnects,
		reconnectInterval: cfg.ReconnectInterval,
	}
}

// Connect dials the broker
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		for err := range notifyClose {
			log.Warn().Err(err).Msg("RabbitMQ connection closed")
		}
	}()

	c.conn = conn
	log.Info().Msg("Connected to RabbitMQ")
	return nil
}

// Channel opens a new channel on the connection
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}
	return c.conn.Channel()
}

// IsClosed reports whether the connection is down
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect re-dials the broker with a capped retry count and linearly
// increasing backoff. It returns the last dial error once the cap is hit;
// the caller decides whether that is fatal for its component.
func (c *Connection) Reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.reconnectInterval):
		}

		log.Info().Int("attempt", attempt).Msg("Attempting to reconnect to RabbitMQ")
		if err := c.Connect(); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to reconnect to RabbitMQ")
			continue
		}
		return nil
	}
	return fmt.Errorf("exhausted %d reconnect attempts: %w", c.maxReconnects, lastErr)
}

// Monitor watches connection health and re-dials when the broker drops.
// Processes without a consumer run this so their publisher can recover its
// channel instead of dead-lettering every publish after an outage. It
// returns when the context is cancelled, or with an error once reconnect
// attempts are exhausted.
func (c *Connection) Monitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.IsClosed() {
				continue
			}

			log.Warn().Msg("RabbitMQ connection lost, reconnecting")
			if err := c.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			log.Info().Msg("RabbitMQ connection restored")
		}
	}
}

// Close closes the underlying connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
