package models

import (
	"time"
)

// Event represents one immutable domain event in the database.
// Rows are append-only: never updated or deleted once written.
type Event struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	EventID       string    `gorm:"uniqueIndex;size:36" json:"id"`
	AggregateID   string    `gorm:"index:idx_aggregate_version,unique,priority:1" json:"aggregate_id"`
	AggregateType string    `gorm:"index:idx_aggregate_version,unique,priority:2" json:"aggregate_type"`
	EventType     string    `gorm:"index" json:"event_type"`
	EventData     []byte    `json:"event_data"`
	Metadata      []byte    `json:"metadata"`
	Version       int       `gorm:"index:idx_aggregate_version,unique,priority:3" json:"version"`
	Timestamp     int64     `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
