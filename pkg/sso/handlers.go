package sso

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/httputil"
	"github.com/platinummonkey/federate/pkg/observability"
	"github.com/platinummonkey/federate/pkg/session"
)

const (
	stateCookieName = "federate_state"
	stateTTL        = 10 * time.Minute
)

// Handlers exposes the federation pipeline over HTTP
type Handlers struct {
	registry *Registry
	pipeline *Pipeline
	sessions *SessionIssuer
	cookies  session.CookieOptions
	logger   *observability.Logger
}

// NewHandlers creates a new SSO handlers instance
func NewHandlers(registry *Registry, pipeline *Pipeline, sessions *SessionIssuer, cookies session.CookieOptions, logger *observability.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		pipeline: pipeline,
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// RegisterRoutes registers the authentication routes. requireSession guards
// the routes that need a bound principal; limitLogin, when not nil, guards
// the login route.
func (h *Handlers) RegisterRoutes(router *mux.Router, requireSession, limitLogin func(http.Handler) http.Handler) {
	router.HandleFunc("/auth/providers", h.listProviders).Methods(http.MethodGet)
	router.HandleFunc("/auth/{provider}/authorize", h.authorize).Methods(http.MethodGet)

	var login http.Handler = http.HandlerFunc(h.login)
	if limitLogin != nil {
		login = limitLogin(login)
	}
	router.Handle("/auth/{provider}", login).Methods(http.MethodPost)

	router.Handle("/user", requireSession(http.HandlerFunc(h.currentUser))).Methods(http.MethodGet)
	router.Handle("/user/logout", requireSession(http.HandlerFunc(h.logout))).Methods(http.MethodPost)
}

// ProviderSummary is the public description of a provider
type ProviderSummary struct {
	ID           string       `json:"id"`
	Type         ProviderType `json:"type"`
	ClientID     string       `json:"client_id,omitempty"`
	Scopes       []string     `json:"scopes,omitempty"`
	AuthorizeURL string       `json:"authorize_url,omitempty"`
}

// listProviders handles GET /auth/providers
func (h *Handlers) listProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.List()
	out := make([]ProviderSummary, 0, len(providers))
	for _, p := range providers {
		summary := ProviderSummary{
			ID:       p.ID(),
			Type:     p.Config.Type,
			ClientID: p.Config.ClientID,
			Scopes:   p.Config.Scopes,
		}
		if p.Config.AuthorizationEndpoint != "" {
			summary.AuthorizeURL = fmt.Sprintf("/auth/%s/authorize", p.ID())
		}
		out = append(out, summary)
	}
	httputil.WriteSuccess(w, out)
}

// authorize handles GET /auth/{provider}/authorize?redirect_uri=
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request) {
	providerID, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}
	provider, ok := h.registry.Get(providerID)
	if !ok {
		httputil.WriteErrorKind(w, http.StatusNotFound, string(KindUnknownProvider), ErrUnknownProvider.Error())
		return
	}

	redirectURI := httputil.ParseQueryString(r, "redirect_uri", "")
	if !httputil.RequireNonEmpty(w, redirectURI, "redirect_uri") {
		return
	}

	state, err := randomState()
	if err != nil {
		h.requestLogger(r).WithError(err).Error("failed to generate state")
		httputil.WriteInternalError(w)
		return
	}

	authURL, err := provider.Config.AuthCodeURL(redirectURI, state)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// LoginResponse is the body returned by a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
	Created   bool      `json:"created"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// login handles POST /auth/{provider}
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	providerID, ok := httputil.ParsePathStringOrError(w, r, "provider")
	if !ok {
		return
	}

	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Code, "code") {
		return
	}

	if req.State != "" {
		cookie, err := r.Cookie(stateCookieName)
		if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(req.State)) != 1 {
			httputil.WriteBadRequest(w, "invalid state parameter")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth", MaxAge: -1})
	}

	result, err := h.pipeline.BeginFederatedLogin(r.Context(), providerID, req)
	if err != nil {
		h.writeFederationError(w, r, err)
		return
	}

	session.SetCookie(w, result.Session.Token, result.Session.ExpiresAt, h.cookies)

	resp := LoginResponse{
		Token:     result.Session.Token,
		Username:  result.Session.Username,
		Provider:  result.Session.Provider,
		ExpiresAt: result.Session.ExpiresAt,
		Created:   result.Created,
	}
	for _, warning := range result.Warnings {
		resp.Warnings = append(resp.Warnings, warning.Error())
	}
	httputil.WriteSuccess(w, resp)
}

func (h *Handlers) writeFederationError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	var fedErr *FederationError
	if !errors.As(err, &fedErr) {
		h.requestLogger(r).WithError(err).Error("federated login failed")
		httputil.WriteErrorMessage(w, status, "federated login failed")
		return
	}

	httputil.WriteErrorKind(w, status, string(fedErr.Kind), fedErr.UserMessage())
}

// UserResponse describes the authenticated principal
type UserResponse struct {
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Firstname string    `json:"firstname,omitempty"`
	Lastname  string    `json:"lastname,omitempty"`
	Picture   string    `json:"picture,omitempty"`
	Source    string    `json:"source,omitempty"`
	Provider  string    `json:"provider"`
	ExpiresAt time.Time `json:"expires_at"`
}

// currentUser handles GET /user
func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok || !principal.IsAuthenticated() {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	resp := UserResponse{
		Username:  principal.Username,
		Email:     principal.Email,
		Provider:  principal.Provider,
		ExpiresAt: principal.ExpiresAt,
	}
	if u := principal.User; u != nil {
		resp.Firstname = u.Firstname
		resp.Lastname = u.Lastname
		resp.Picture = u.Picture
		resp.Source = u.Source
	}
	httputil.WriteSuccess(w, resp)
}

// logout handles POST /user/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := r.Context().Value(contextkeys.AuthKey).(*auth.AuthContext)
	if !ok || !principal.IsAuthenticated() {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.sessions.Revoke(r.Context(), principal.SessionID); err != nil {
		h.requestLogger(r).WithError(err).Error("failed to revoke session")
		httputil.WriteInternalError(w)
		return
	}

	session.ClearCookie(w, h.cookies)
	httputil.WriteNoContent(w)
}

// requestLogger prefers the request-scoped logger installed by the RequestID middleware
func (h *Handlers) requestLogger(r *http.Request) *observability.Logger {
	if _, ok := r.Context().Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return observability.FromContext(r.Context())
	}
	return h.logger
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
