package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Projection is a point-in-time view of one aggregate, produced by folding
// its event history through the registered reducers.
type Projection struct {
	AggregateID   string                 `json:"aggregate_id"`
	AggregateType string                 `json:"aggregate_type"`
	Version       int                    `json:"version"`
	Deleted       bool                   `json:"deleted"`
	State         map[string]interface{} `json:"state"`
	LastTimestamp int64                  `json:"last_timestamp"`
}

// Reducer folds one event into the projection state
type Reducer func(p *Projection, env Envelope) error

// mergeState merges the event payload into the projection state
func mergeState(p *Projection, env Envelope) error {
	if len(env.EventData) == 0 {
		return nil
	}
	var data map[string]interface{}
	if err := json.Unmarshal(env.EventData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal event data for %s: %w", env.EventType, err)
	}
	for k, v := range data {
		p.State[k] = v
	}
	return nil
}

func markDeleted(p *Projection, env Envelope) error {
	p.Deleted = true
	return nil
}

// reducers maps event types to their fold behavior. Creation and update
// events merge the payload; deletion events tombstone the projection.
var reducers = map[string]Reducer{
	UserCreated:    mergeState,
	UserUpdated:    mergeState,
	UserDeleted:    markDeleted,
	PostCreated:    mergeState,
	PostUpdated:    mergeState,
	PostDeleted:    markDeleted,
	CommentCreated: mergeState,
	CommentUpdated: mergeState,
	CommentDeleted: markDeleted,
	LikeCreated:    mergeState,
	LikeDeleted:    markDeleted,
}

// NewProjection creates an empty projection for an aggregate
func NewProjection(aggregateID, aggregateType string) *Projection {
	return &Projection{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		State:         make(map[string]interface{}),
	}
}

// Apply folds one event into the projection. Unknown event types are no-ops
// so replays stay forward-compatible with producers that add new verbs.
func (p *Projection) Apply(env Envelope) error {
	reducer, ok := reducers[env.EventType]
	if !ok {
		return nil
	}
	if err := reducer(p, env); err != nil {
		return err
	}
	p.Version = env.Version
	p.LastTimestamp = env.Timestamp
	return nil
}

// Rebuild folds a version-ordered event history into a projection
func Rebuild(aggregateID, aggregateType string, history []Envelope) (*Projection, error) {
	projection := NewProjection(aggregateID, aggregateType)
	for _, env := range history {
		if err := projection.Apply(env); err != nil {
			return nil, err
		}
	}
	return projection, nil
}

// AggregateFromEventType extracts the aggregate prefix from an event type
// string, e.g. "post.created" -> "post". Returns an empty string when the
// event type is not namespaced.
func AggregateFromEventType(eventType string) string {
	idx := strings.Index(eventType, ".")
	if idx <= 0 {
		return ""
	}
	return eventType[:idx]
}
