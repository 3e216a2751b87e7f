package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// Identity is the authenticated caller, as resolved by the upstream user
// system. Orders only need the owner reference and the admin flag.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Authenticator resolves a bearer token into an Identity. The real user
// service lives outside this module; it is consumed through this
// interface only.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

var errUnknownToken = errors.New("unknown token")

// StaticAuthenticator resolves tokens from a fixed table. Used for local
// deployments and tests.
type StaticAuthenticator struct {
	tokens map[string]Identity
}

func NewStaticAuthenticator(tokens map[string]Identity) *StaticAuthenticator {
	return &StaticAuthenticator{tokens: tokens}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	identity, ok := a.tokens[token]
	if !ok {
		return Identity{}, errUnknownToken
	}
	return identity, nil
}

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the Identity stored by the auth middleware.
func identityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// requireAuth authenticates the Authorization bearer token and stores the
// resulting Identity on the request context.
func requireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, errorResponse{Message: "Not authorized, no token provided"})
				return
			}

			identity, err := auth.Authenticate(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, errorResponse{Message: "Not authorized, token failed"})
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin rejects callers without the admin flag. Must run after
// requireAuth.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFrom(r.Context())
		if !ok || !identity.IsAdmin {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, errorResponse{Message: "Not authorized as an admin"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
