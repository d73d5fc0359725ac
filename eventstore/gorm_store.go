package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/models"
)

// GormEventStore implements EventStore using GORM
type GormEventStore struct {
	db *gorm.DB
}

// NewGormEventStore creates a new GORM event store
func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

// StoreEvent appends a new event. The version computation and the insert run
// in one serializable transaction so concurrent appends for the same
// aggregate serialize; the unique index on (aggregate_id, aggregate_type,
// version) makes a lost race fail loudly instead of overwriting.
func (s *GormEventStore) StoreEvent(ctx context.Context, params StoreEventParams) (*models.Event, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	timestamp := params.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}
	metadata := params.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	var stored models.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var currentVersion int
		if err := tx.Model(&models.Event{}).
			Select("COALESCE(MAX(version), 0)").
			Where("aggregate_id = ? AND aggregate_type = ?", params.AggregateID, params.AggregateType).
			Scan(&currentVersion).Error; err != nil {
			return fmt.Errorf("failed to compute next version: %w", err)
		}

		stored = models.Event{
			EventID:       uuid.New().String(),
			AggregateID:   params.AggregateID,
			AggregateType: params.AggregateType,
			EventType:     params.EventType,
			EventData:     params.EventData,
			Metadata:      metadata,
			Version:       currentVersion + 1,
			Timestamp:     timestamp,
			CorrelationID: params.CorrelationID,
			CausationID:   params.CausationID,
		}

		if err := tx.Create(&stored).Error; err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("aggregate_id", stored.AggregateID).
		Str("event_type", stored.EventType).
		Int("version", stored.Version).
		Msg("Event saved")

	return &stored, nil
}

// GetEvents gets an aggregate's events ordered by version ascending
func (s *GormEventStore) GetEvents(ctx context.Context, aggregateID, aggregateType string, fromVersion int) ([]models.Event, error) {
	if fromVersion < 1 {
		fromVersion = 1
	}

	var events []models.Event
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ? AND aggregate_type = ? AND version >= ?", aggregateID, aggregateType, fromVersion).
		Order("version ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	return events, nil
}

// GetEventsByType returns a reverse-chronological page of one event type
func (s *GormEventStore) GetEventsByType(ctx context.Context, eventType string, limit, offset int) ([]models.Event, error) {
	return s.ListEvents(ctx, "", eventType, limit, offset)
}

// GetRecentEvents returns a reverse-chronological page across all events
func (s *GormEventStore) GetRecentEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	return s.ListEvents(ctx, "", "", limit, offset)
}

// ListEvents returns a reverse-chronological page with optional filters
func (s *GormEventStore) ListEvents(ctx context.Context, aggregateType, eventType string, limit, offset int) ([]models.Event, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.Event{})
	if aggregateType != "" {
		query = query.Where("aggregate_type = ?", aggregateType)
	}
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}

	var events []models.Event
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}

// RebuildAggregate folds the aggregate's events through the domain reducers
// into a point-in-time projection
func (s *GormEventStore) RebuildAggregate(ctx context.Context, aggregateID, aggregateType string) (*domain.Projection, error) {
	if !domain.IsValidAggregateType(aggregateType) {
		return nil, fmt.Errorf("%w: unknown aggregate type %q", ErrValidation, aggregateType)
	}

	events, err := s.GetEvents(ctx, aggregateID, aggregateType, 1)
	if err != nil {
		return nil, err
	}

	history := make([]domain.Envelope, len(events))
	for i := range events {
		history[i] = domain.NewEnvelope(&events[i])
	}

	return domain.Rebuild(aggregateID, aggregateType, history)
}

func validateParams(params StoreEventParams) error {
	if params.AggregateID == "" {
		return fmt.Errorf("%w: aggregate id is required", ErrValidation)
	}
	if !domain.IsValidAggregateType(params.AggregateType) {
		return fmt.Errorf("%w: unknown aggregate type %q", ErrValidation, params.AggregateType)
	}
	if !domain.IsValidEventType(params.AggregateType, params.EventType) {
		return fmt.Errorf("%w: unknown event type %q for aggregate type %q", ErrValidation, params.EventType, params.AggregateType)
	}
	if len(params.EventData) == 0 || !json.Valid(params.EventData) {
		return fmt.Errorf("%w: event data is not valid JSON", ErrValidation)
	}
	if len(params.Metadata) > 0 && !json.Valid(params.Metadata) {
		return fmt.Errorf("%w: metadata is not valid JSON", ErrValidation)
	}
	return nil
}
