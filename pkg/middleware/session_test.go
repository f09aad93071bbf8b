package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
)

type stubResolver map[string]*auth.AuthContext

func (s stubResolver) Resolve(_ context.Context, token string) (*auth.AuthContext, error) {
	if token == "fed_outage" {
		return nil, fmt.Errorf("load session: %w", errors.New("connection refused"))
	}
	if principal, ok := s[token]; ok {
		return principal, nil
	}
	return nil, session.ErrInvalid
}

func TestSessionAuth(t *testing.T) {
	resolver := stubResolver{"fed_good": {Username: "a@x.com", Provider: "github"}}
	mw := SessionAuth(resolver, observability.NewNopLogger())

	var seen *auth.AuthContext
	var seenUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAuthContext(r)
		seenUserID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer fed_good") }, http.StatusOK},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer fed_good") }, http.StatusOK},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "fed_good"}) }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"unknown token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer fed_bad") }, http.StatusUnauthorized},
		{"store outage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer fed_outage") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/user", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.NotNil(t, seen)
				assert.Equal(t, "a@x.com", seen.Username)
				assert.Equal(t, "a@x.com", seenUserID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestGetAuthContext_Missing(t *testing.T) {
	assert.Nil(t, GetAuthContext(httptest.NewRequest(http.MethodGet, "/", nil)))
}
