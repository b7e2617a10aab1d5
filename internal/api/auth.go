package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/austintgriffith/openclaw-spine/internal/jobs"
)

type contextKey int

const roleContextKey contextKey = iota

// tokenResolver maps a bearer token to its role. Built once at
// startup from config.Config's token sets; read-only thereafter, so
// concurrent requests share it without locking.
type tokenResolver map[string]jobs.Role

func newTokenResolver(head, leftClaw, rightClaw []string) tokenResolver {
	r := make(tokenResolver)
	for _, tok := range head {
		r[tok] = jobs.RoleHead
	}
	for _, tok := range leftClaw {
		r[tok] = jobs.RoleLeftClaw
	}
	for _, tok := range rightClaw {
		r[tok] = jobs.RoleRightClaw
	}
	return r
}

func (r tokenResolver) resolve(token string) (jobs.Role, bool) {
	role, ok := r[token]
	return role, ok
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix))
}

// authMiddleware resolves the bearer token to a role and stashes it
// in the request context. It does not itself reject unauthenticated
// requests — §6.1 allows /health to anyone — handlers that require a
// role call roleFromContext and return 401 if absent.
func authMiddleware(resolver tokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if role, ok := resolver.resolve(bearerToken(req)); ok {
				ctx := context.WithValue(req.Context(), roleContextKey, role)
				req = req.WithContext(ctx)
			}
			next.ServeHTTP(w, req)
		})
	}
}

func roleFromContext(ctx context.Context) (jobs.Role, bool) {
	role, ok := ctx.Value(roleContextKey).(jobs.Role)
	return role, ok
}
