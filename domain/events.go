package domain

import (
	"encoding/json"
	"fmt"

	"example.com/wordweave/services/event/models"
)

// Aggregate types
const (
	AggregateUser    = "user"
	AggregatePost    = "post"
	AggregateComment = "comment"
	AggregateLike    = "like"
)

// EventType constants, namespaced as <aggregate>.<verb>
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"

	PostCreated = "post.created"
	PostUpdated = "post.updated"
	PostDeleted = "post.deleted"

	CommentCreated = "comment.created"
	CommentUpdated = "comment.updated"
	CommentDeleted = "comment.deleted"

	LikeCreated = "like.created"
	LikeDeleted = "like.deleted"
)

// eventTypesByAggregate maps each aggregate type to its recognized event types
var eventTypesByAggregate = map[string][]string{
	AggregateUser:    {UserCreated, UserUpdated, UserDeleted},
	AggregatePost:    {PostCreated, PostUpdated, PostDeleted},
	AggregateComment: {CommentCreated, CommentUpdated, CommentDeleted},
	AggregateLike:    {LikeCreated, LikeDeleted},
}

// AggregateTypes returns all recognized aggregate types
func AggregateTypes() []string {
	return []string{AggregateUser, AggregatePost, AggregateComment, AggregateLike}
}

// IsValidAggregateType checks if an aggregate type is recognized
func IsValidAggregateType(aggregateType string) bool {
	_, ok := eventTypesByAggregate[aggregateType]
	return ok
}

// IsValidEventType checks if an event type belongs to the aggregate type
func IsValidEventType(aggregateType, eventType string) bool {
	for _, t := range eventTypesByAggregate[aggregateType] {
		if t == eventType {
			return true
		}
	}
	return false
}

// ExchangeForAggregate returns the topic exchange name for an aggregate type
func ExchangeForAggregate(aggregateType string) string {
	return aggregateType + ".events"
}

// Envelope is the wire format published to the broker. It carries the full
// event so a dead-lettered message can be retried without a store lookup.
type Envelope struct {
	EventID       string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Version       int             `json:"version"`
	Timestamp     int64           `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
}

// NewEnvelope builds the wire envelope for a stored event
func NewEnvelope(event *models.Event) Envelope {
	return Envelope{
		EventID:       event.EventID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		EventData:     json.RawMessage(event.EventData),
		Metadata:      json.RawMessage(event.Metadata),
		Version:       event.Version,
		Timestamp:     event.Timestamp,
		CorrelationID: event.CorrelationID,
		CausationID:   event.CausationID,
	}
}

// DecodeEnvelope decodes a broker message body into an envelope
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.EventType == "" {
		return env, fmt.Errorf("event envelope has no event type")
	}
	return env, nil
}

// Encode serializes the envelope for publishing
func (e Envelope) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event envelope: %w", err)
	}
	return body, nil
}
