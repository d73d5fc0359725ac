package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/wordweave/services/event/models"
)

func TestIsValidEventType(t *testing.T) {
	require.True(t, IsValidEventType(AggregateUser, UserDeleted))
	require.True(t, IsValidEventType(AggregateLike, LikeCreated))

	// like aggregates have no update verb
	require.False(t, IsValidEventType(AggregateLike, "like.updated"))
	require.False(t, IsValidEventType(AggregatePost, UserCreated))
	require.False(t, IsValidEventType("order", "order.created"))
}

func TestExchangeForAggregate(t *testing.T) {
	require.Equal(t, "user.events", ExchangeForAggregate(AggregateUser))
	require.Equal(t, "post.events", ExchangeForAggregate(AggregatePost))
}

func TestAggregateFromEventType(t *testing.T) {
	require.Equal(t, "post", AggregateFromEventType("post.created"))
	require.Equal(t, "user", AggregateFromEventType("user.deleted"))
	require.Equal(t, "", AggregateFromEventType("malformed"))
	require.Equal(t, "", AggregateFromEventType(".created"))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	event := &models.Event{
		EventID:       "evt-1",
		AggregateID:   "user-42",
		AggregateType: AggregateUser,
		EventType:     UserCreated,
		EventData:     []byte(`{"username":"ada"}`),
		Metadata:      []byte(`{"source":"api"}`),
		Version:       3,
		Timestamp:     1700000000000,
		CorrelationID: "corr-1",
	}

	body, err := NewEnvelope(event).Encode()
	require.NoError(t, err)

	env, err := DecodeEnvelope(body)
	require.NoError(t, err)
	require.Equal(t, "evt-1", env.EventID)
	require.Equal(t, UserCreated, env.EventType)
	require.Equal(t, 3, env.Version)
	require.Equal(t, "corr-1", env.CorrelationID)
	require.JSONEq(t, `{"username":"ada"}`, string(env.EventData))
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := DecodeEnvelope([]byte("not json"))
	require.Error(t, err)
}

func TestDecodeEnvelopeRequiresEventType(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{"id": "evt-1", "aggregate_id": "user-42"})
	require.NoError(t, err)

	_, err = DecodeEnvelope(body)
	require.Error(t, err)
}
