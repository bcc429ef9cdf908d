package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/susu/internal/auth"
	"github.com/mmynk/susu/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// actorKey is the context key for the authenticated caller.
const actorKey contextKey = "actor"

// WithActor returns a context carrying the caller.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the caller from the context.
// Returns the zero Actor (anonymous) if not found.
func ActorFrom(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey).(models.Actor)
	return actor
}

// RequireAuth returns an interceptor that validates bearer tokens and requires
// authentication. The verified caller is stored in the request context.
func RequireAuth(verifier auth.Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			actor, err := verifier.Verify(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithActor(ctx, actor), req)
		}
	}
}
