package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
)

// Principal is the authenticated caller a bearer token resolves to
// (spec.md §4.9: "Authentication is bearer-token with role-based
// permissions").
type Principal struct {
	ID         string
	UserIDAnon string
	Scopes     []string
}

// HasScope reports whether p is authorized for scope, honoring the
// "admin:*" superuser scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == "admin:*" {
			return true
		}
	}
	return false
}

// TokenVerifier resolves a bearer token to the Principal it authenticates,
// or an error if the token is missing, malformed, or unrecognized.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// StaticTokenVerifier is a fixed token→Principal table, suitable for
// single-operator deployments and tests. Production deployments wire a
// TokenVerifier backed by whatever identity provider issues the bearer
// tokens; this package only depends on the interface.
type StaticTokenVerifier map[string]Principal

func (v StaticTokenVerifier) Verify(_ context.Context, token string) (Principal, error) {
	p, ok := v[token]
	if !ok {
		return Principal{}, errUnknownToken
	}
	return p, nil
}

var errUnknownToken = &authError{"unrecognized bearer token"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }

// AccessLedger is the seam the RBAC middleware uses to record
// access_granted / access_denied ledger events (spec.md §4.9: "Permission
// checks occur before any component call; denials emit access_denied").
type AccessLedger interface {
	RecordAccessGranted(ctx context.Context, sessionID, userIDAnon, scope string) error
	RecordAccessDenied(ctx context.Context, sessionID, userIDAnon, scope string) error
}

type principalContextKey struct{}

// PrincipalFromContext returns the Principal RequireScope authenticated
// for this request, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// sessionIDFromRoute reads chi's "sessionID" URL param, if the route
// defines one, for attaching an access_granted/access_denied event to
// the session it concerns. Routes with no session in their path pass an
// empty session_id, which the ledger still records against (spec.md's
// Event.SessionID is optional).
func sessionIDFromRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if id := rctx.URLParam("sessionID"); id != "" {
			return id
		}
	}
	return ""
}

// RequireScope returns chi middleware enforcing bearer-token
// authentication and a single required scope. A missing or unverifiable
// token yields 401 (validation.NewAuthProblem); a verified principal
// lacking scope yields 403 (validation.NewPermissionDeniedProblem) and
// an access_denied ledger event. On success, the Principal is attached to
// the request context and an access_granted ledger event is recorded.
func RequireScope(scope string, verifier TokenVerifier, ledger AccessLedger, logger logr.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeProblem(w, validation.NewAuthProblem("missing or malformed Authorization header"))
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeProblem(w, validation.NewAuthProblem("invalid bearer token"))
				return
			}

			sessionID := sessionIDFromRoute(r)

			if !principal.HasScope(scope) {
				if ledger != nil {
					if err := ledger.RecordAccessDenied(r.Context(), sessionID, principal.UserIDAnon, scope); err != nil {
						logger.Error(err, "api: record access_denied failed", "principal", principal.ID, "scope", scope)
					}
				}
				writeProblem(w, validation.NewPermissionDeniedProblem(scope))
				return
			}

			if ledger != nil {
				if err := ledger.RecordAccessGranted(r.Context(), sessionID, principal.UserIDAnon, scope); err != nil {
					logger.Error(err, "api: record access_granted failed", "principal", principal.ID, "scope", scope)
				}
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}
