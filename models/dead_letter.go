package models

import (
	"time"
)

// DeadLetterEvent records one failed delivery attempt. The full serialized
// envelope is kept in EventPayload so the row stays retryable even if the
// original event leaves the hot path.
type DeadLetterEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	OriginalEventID string    `gorm:"index;size:36" json:"original_event_id"`
	ExchangeName    string    `json:"exchange_name"`
	RoutingKey      string    `json:"routing_key"`
	EventPayload    []byte    `json:"event_payload"`
	ErrorMessage    string    `json:"error_message"`
	RetryCount      int       `gorm:"default:0;index" json:"retry_count"`
	FailedAt        time.Time `gorm:"index" json:"failed_at"`
	CreatedAt       time.Time `json:"created_at"`
}
