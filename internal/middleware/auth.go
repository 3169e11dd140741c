package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatekeep/gatekeep-go/internal/model"
	"github.com/gatekeep/gatekeep-go/internal/service"
)

type contextKey string

const identityKey contextKey = "identity"

// Authenticator resolves a presented session token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Identity, error)
}

// TokenReader extracts the session token carried by a request's cookie.
type TokenReader interface {
	Read(r *http.Request) (string, bool)
}

// RequireSession returns middleware that rejects requests without a valid
// session. The token is read from the session cookie, falling back to a
// Bearer token in the Authorization header. Unexpected authentication
// failures are logged to logger; a nil logger uses slog.Default.
func RequireSession(auth Authenticator, cookies TokenReader, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFromRequest(r, cookies)
			if !ok {
				writeServiceError(w, logger, service.ErrUnauthenticated)
				return
			}

			identity, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeServiceError(w, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OptionalSession attaches the identity when the request carries a valid
// session and lets every request through.
func OptionalSession(auth Authenticator, cookies TokenReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := tokenFromRequest(r, cookies); ok {
				if identity, err := auth.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), identity))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*model.Identity)
	return identity, ok && identity != nil
}

func tokenFromRequest(r *http.Request, cookies TokenReader) (string, bool) {
	if token, ok := cookies.Read(r); ok {
		return token, true
	}

	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusUnauthorized
	var svcErr *service.Error
	if !errors.As(err, &svcErr) || svcErr.Kind == service.KindInternal {
		logger.Error("session guard", "error", err)
		status = http.StatusInternalServerError
		svcErr = service.ErrInternal
	}
	writeJSONError(w, status, string(svcErr.Kind), svcErr.Message)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
