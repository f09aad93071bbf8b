package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/httputil"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
)

// SessionResolver turns a session token into the principal bound to it
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*auth.AuthContext, error)
}

// ErrNoCredentials is returned when a request carries no session token
var ErrNoCredentials = errors.New("missing session token")

// SessionAuth requires a valid session. The token is read from
// "Authorization: Bearer <token>" first, then from the session cookie.
// Resolvers report rejected tokens with session.ErrInvalid; any other error
// is answered with 500.
func SessionAuth(resolver SessionResolver, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := tokenFromRequest(r)
			if err != nil {
				httputil.WriteUnauthorized(w, err.Error())
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if errors.Is(err, session.ErrInvalid) {
				logger.WithError(err).Debug("session rejected")
				httputil.WriteUnauthorized(w, "invalid or expired session")
				return
			}
			if err != nil {
				logger.WithError(err).Error("failed to resolve session")
				httputil.WriteInternalError(w)
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), principal)
			ctx = contextkeys.WithUserID(ctx, principal.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", errors.New("invalid authorization header format")
		}
		return strings.TrimSpace(parts[1]), nil
	}

	if cookie, err := r.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", ErrNoCredentials
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	authCtx, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
