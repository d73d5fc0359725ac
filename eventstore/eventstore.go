package eventstore

import (
	"context"
	"errors"

	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/models"
)

// MaxPageSize caps paged reads regardless of the requested limit
const MaxPageSize = 100

// ErrValidation marks malformed input: unrecognized enums or payloads that
// are not valid JSON. Callers reject these synchronously, never retry them.
var ErrValidation = errors.New("validation error")

// StoreEventParams carries the producer-supplied fields of a new event.
// Version is never part of this: the store assigns it.
type StoreEventParams struct {
	AggregateID   string
	AggregateType string
	EventType     string
	EventData     []byte
	Metadata      []byte
	CorrelationID string
	CausationID   string
	Timestamp     int64
}

// EventStore is the interface for event storage
type EventStore interface {
	// StoreEvent appends an event, assigning the next version for the
	// aggregate inside a single transaction
	StoreEvent(ctx context.Context, params StoreEventParams) (*models.Event, error)

	// GetEvents returns an aggregate's events ordered by version ascending
	GetEvents(ctx context.Context, aggregateID, aggregateType string, fromVersion int) ([]models.Event, error)

	// GetEventsByType returns a reverse-chronological page of one event type
	GetEventsByType(ctx context.Context, eventType string, limit, offset int) ([]models.Event, error)

	// GetRecentEvents returns a reverse-chronological page across all events
	GetRecentEvents(ctx context.Context, limit, offset int) ([]models.Event, error)

	// ListEvents returns a reverse-chronological page filtered by aggregate
	// type and/or event type; empty filters match everything
	ListEvents(ctx context.Context, aggregateType, eventType string, limit, offset int) ([]models.Event, error)

	// RebuildAggregate folds the aggregate's history into a projection
	RebuildAggregate(ctx context.Context, aggregateID, aggregateType string) (*domain.Projection, error)
}
