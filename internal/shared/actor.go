package shared

import "context"

// Actor identifies the authenticated caller and the privilege flags the
// upstream gateway resolved for it. Services consume these booleans; they
// never compute them.
type Actor struct {
	ID           int64
	CanWrite     bool
	CanForceEdit bool
}

type actorCtxKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFrom extracts the actor. The zero actor means unauthenticated.
func ActorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorCtxKey{}).(Actor)
	return actor
}
