package listsync

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// WithActor attaches the acting user or session id to the context. Remote
// collaborators forward it so realtime events can be matched to their origin.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the actor attached with WithActor, if any.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorContextKey{}).(string)
	return actor, ok && actor != ""
}
