package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/wordweave/services/event/clients"
	"example.com/wordweave/services/event/domain"
)

// Step is one guarded downstream call in a cascade. Steps are configurable
// rather than hard-coded so deployments can reorder or drop them.
type Step struct {
	Name string
	Run  func(ctx context.Context, env domain.Envelope) error
}

// Orchestrator executes the cross-service side effects bound to deletion
// events. Every step is best-effort: an unimplemented or failing downstream
// call is logged and the remaining steps still run. This is deliberately
// not a two-phase commit; retry comes from the DLQ retry of the original
// event, not from the orchestration itself.
type Orchestrator struct {
	pool        *clients.Pool
	stepTimeout time.Duration

	userDeletedSteps []Step
	postDeletedSteps []Step
}

// NewOrchestrator builds an orchestrator with the default step lists
func NewOrchestrator(pool *clients.Pool, stepTimeout time.Duration) *Orchestrator {
	o := &Orchestrator{
		pool:        pool,
		stepTimeout: stepTimeout,
	}
	o.userDeletedSteps = o.defaultUserDeletedSteps()
	o.postDeletedSteps = o.defaultPostDeletedSteps()
	return o
}

// SetUserDeletedSteps overrides the steps run for user.deleted
func (o *Orchestrator) SetUserDeletedSteps(steps []Step) {
	o.userDeletedSteps = steps
}

// SetPostDeletedSteps overrides the steps run for post.deleted
func (o *Orchestrator) SetPostDeletedSteps(steps []Step) {
	o.postDeletedSteps = steps
}

// Handle routes one event to its cascade. Events with no cascade are
// acknowledged untouched. Handle never returns an error for a step
// failure: only decode-level problems escape, everything downstream is
// best-effort by contract.
func (o *Orchestrator) Handle(ctx context.Context, env domain.Envelope) error {
	switch env.EventType {
	case domain.UserDeleted:
		o.runSteps(ctx, env, o.userDeletedSteps)
	case domain.PostDeleted:
		o.runSteps(ctx, env, o.postDeletedSteps)
	default:
		log.Debug().Str("event_type", env.EventType).Msg("No cascade registered for event type")
	}
	return nil
}

func (o *Orchestrator) runSteps(ctx context.Context, env domain.Envelope, steps []Step) {
	log.Info().
		Str("event_type", env.EventType).
		Str("aggregate_id", env.AggregateID).
		Int("steps", len(steps)).
		Msg("Running cascade")

	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		err := step.Run(stepCtx, env)
		cancel()

		switch {
		case err == nil:
			log.Info().Str("step", step.Name).Str("aggregate_id", env.AggregateID).Msg("Cascade step completed")
		case errors.Is(err, clients.ErrNotImplemented):
			log.Warn().Str("step", step.Name).Msg("Cascade step not implemented downstream, skipping")
		default:
			log.Error().Err(err).Str("step", step.Name).Str("aggregate_id", env.AggregateID).Msg("Cascade step failed, continuing")
		}
	}
}

// defaultUserDeletedSteps removes everything a deleted user owns, then the
// user record itself: comments, likes, posts, user.
func (o *Orchestrator) defaultUserDeletedSteps() []Step {
	return []Step{
		{
			Name: "delete_user_comments",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.Comment.DeleteComments(ctx, []string{env.AggregateID}, nil)
			},
		},
		{
			Name: "delete_user_likes",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.Like.UnlikePosts(ctx, []string{env.AggregateID}, nil)
			},
		},
		{
			Name: "delete_user_posts",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.Post.DeletePosts(ctx, nil, []string{env.AggregateID})
			},
		},
		{
			Name: "delete_user",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.User.DeleteUser(ctx, env.AggregateID)
			},
		},
	}
}

// defaultPostDeletedSteps removes a deleted post's comments and likes
func (o *Orchestrator) defaultPostDeletedSteps() []Step {
	return []Step{
		{
			Name: "delete_post_comments",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.Comment.DeleteComments(ctx, nil, []string{env.AggregateID})
			},
		},
		{
			Name: "delete_post_likes",
			Run: func(ctx context.Context, env domain.Envelope) error {
				return o.pool.Like.UnlikePosts(ctx, nil, []string{env.AggregateID})
			},
		},
	}
}
