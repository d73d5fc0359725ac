package cascade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/wordweave/services/event/clients"
	"example.com/wordweave/services/event/config"
	"example.com/wordweave/services/event/domain"
)

// downstream is one fake service that records the requests it receives
type downstream struct {
	name   string
	status int

	mu    sync.Mutex
	calls *[]string

	server *httptest.Server
}

func newDownstream(name string, status int, calls *[]string, mu *sync.Mutex) *downstream {
	d := &downstream{name: name, status: status, calls: calls}
	d.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*calls = append(*calls, name)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(d.status)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": d.status < 300, "message": ""})
	}))
	return d
}

type cascadeFixture struct {
	orchestrator *Orchestrator
	calls        []string
	mu           sync.Mutex
	user         *downstream
	post         *downstream
	comment      *downstream
	like         *downstream
}

func newCascadeFixture(t *testing.T, statuses map[string]int) *cascadeFixture {
	t.Helper()

	f := &cascadeFixture{}
	status := func(name string) int {
		if s, ok := statuses[name]; ok {
			return s
		}
		return http.StatusOK
	}

	f.user = newDownstream("user", status("user"), &f.calls, &f.mu)
	f.post = newDownstream("post", status("post"), &f.calls, &f.mu)
	f.comment = newDownstream("comment", status("comment"), &f.calls, &f.mu)
	f.like = newDownstream("like", status("like"), &f.calls, &f.mu)
	t.Cleanup(func() {
		f.user.server.Close()
		f.post.server.Close()
		f.comment.server.Close()
		f.like.server.Close()
	})

	pool := clients.NewPool(config.ServicesConfig{
		UserServiceURL:    f.user.server.URL,
		PostServiceURL:    f.post.server.URL,
		CommentServiceURL: f.comment.server.URL,
		LikeServiceURL:    f.like.server.URL,
		CallTimeout:       2 * time.Second,
	})
	f.orchestrator = NewOrchestrator(pool, 2*time.Second)
	return f
}

func deletionEnvelope(eventType, aggregateType, aggregateID string) domain.Envelope {
	return domain.Envelope{
		EventID:       "evt-1",
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		EventData:     json.RawMessage(`{}`),
		Version:       2,
	}
}

func TestUserDeletedCascadeOrder(t *testing.T) {
	f := newCascadeFixture(t, nil)

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.UserDeleted, domain.AggregateUser, "user-42"))
	require.NoError(t, err)

	// Owned entities first, the user record last
	assert.Equal(t, []string{"comment", "like", "post", "user"}, f.calls)
}

func TestPostDeletedCascadeOrder(t *testing.T) {
	f := newCascadeFixture(t, nil)

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.PostDeleted, domain.AggregatePost, "post-7"))
	require.NoError(t, err)

	assert.Equal(t, []string{"comment", "like"}, f.calls)
}

func TestCascadeContinuesPastFailures(t *testing.T) {
	f := newCascadeFixture(t, map[string]int{"like": http.StatusInternalServerError})

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.UserDeleted, domain.AggregateUser, "user-42"))
	require.NoError(t, err)

	// The failing like step does not stop the later steps
	assert.Equal(t, []string{"comment", "like", "post", "user"}, f.calls)
}

func TestCascadeSkipsUnimplementedSteps(t *testing.T) {
	f := newCascadeFixture(t, map[string]int{"comment": http.StatusNotImplemented})

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.UserDeleted, domain.AggregateUser, "user-42"))
	require.NoError(t, err)

	assert.Equal(t, []string{"comment", "like", "post", "user"}, f.calls)
}

func TestCascadeIgnoresOtherEventTypes(t *testing.T) {
	f := newCascadeFixture(t, nil)

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.UserCreated, domain.AggregateUser, "user-42"))
	require.NoError(t, err)

	assert.Empty(t, f.calls)
}

func TestCascadeStepOverrides(t *testing.T) {
	f := newCascadeFixture(t, nil)

	var custom []string
	f.orchestrator.SetUserDeletedSteps([]Step{
		{Name: "custom_step", Run: func(ctx context.Context, env domain.Envelope) error {
			custom = append(custom, env.AggregateID)
			return nil
		}},
	})

	err := f.orchestrator.Handle(context.Background(), deletionEnvelope(domain.UserDeleted, domain.AggregateUser, "user-42"))
	require.NoError(t, err)

	assert.Equal(t, []string{"user-42"}, custom)
	assert.Empty(t, f.calls)
}
