package models

import (
	"time"
)

// Subscription statuses
const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

// EventSubscription is the durable record of which event types a consumer
// group wants. EventTypes is a JSON-encoded ordered list: membership order is
// not semantically significant but must round-trip losslessly.
type EventSubscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ConsumerGroup string    `gorm:"uniqueIndex" json:"consumer_group"`
	EventTypes    []byte    `json:"event_types"`
	CallbackURL   string    `json:"callback_url,omitempty"`
	Status        string    `gorm:"default:active;index" json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
