package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/edvin/tenant-backup/internal/api/response"
)

type contextKey string

const ActorIDKey contextKey = "actor_id"

// ActorHeader carries the authenticated user id set by the upstream gateway.
const ActorHeader = "X-Actor-ID"

var actorRegex = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// Actor requires the gateway-supplied actor header and stores it in the
// request context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get(ActorHeader)
		if actor == "" {
			response.WriteError(w, http.StatusUnauthorized, "missing "+ActorHeader+" header")
			return
		}
		if !actorRegex.MatchString(actor) {
			response.WriteError(w, http.StatusBadRequest, "invalid "+ActorHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), ActorIDKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorID returns the actor set by Actor, or "" outside it.
func GetActorID(ctx context.Context) string {
	id, _ := ctx.Value(ActorIDKey).(string)
	return id
}

// WithActorID returns a context carrying actor. Used by tests and the CLI.
func WithActorID(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorIDKey, actor)
}
