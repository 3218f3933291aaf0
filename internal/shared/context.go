package shared

import (
	"context"
	"fmt"
)

// Actor identifies the authenticated tenant and user behind a request. It is
// threaded explicitly through service calls; the context copy only serves the
// HTTP layer.
type Actor struct {
	OrgID     int64
	UserID    int64
	RequestID string
}

// Validate rejects actors without tenant or user.
func (a Actor) Validate() error {
	if a.OrgID <= 0 {
		return fmt.Errorf("%w: org id required", ErrValidation)
	}
	if a.UserID <= 0 {
		return fmt.Errorf("%w: user id required", ErrValidation)
	}
	return nil
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
