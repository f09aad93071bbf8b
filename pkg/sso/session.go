package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/federate/pkg/auth"
	"github.com/platinummonkey/federate/pkg/session"
)

// DefaultSessionTTL is the lifetime of a session when none is configured
const DefaultSessionTTL = 24 * time.Hour

// ErrInvalidSession is returned when a token does not resolve to a live session
var ErrInvalidSession = session.ErrInvalid

// SessionIssuer binds authenticated principals to session tokens
type SessionIssuer struct {
	store  session.Store
	tokens *auth.TokenGenerator
	users  UserStore
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a session issuer. users is optional and only used
// to attach the local user to resolved principals.
func NewSessionIssuer(store session.Store, users UserStore, ttl time.Duration) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{
		store:  store,
		tokens: auth.NewTokenGenerator(),
		users:  users,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a session for the user and returns the token with the bound
// principal. The token itself is not stored.
func (s *SessionIssuer) Issue(ctx context.Context, user *auth.User, providerID string) (*SessionToken, *auth.AuthContext, error) {
	token, hash, err := s.tokens.GenerateToken()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	stored := &session.Session{
		ID:        hash,
		Username:  user.Username,
		Provider:  providerID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, stored); err != nil {
		return nil, nil, fmt.Errorf("store session: %w", err)
	}

	principal := &auth.AuthContext{
		Username:  user.Username,
		Email:     user.Email,
		Provider:  providerID,
		SessionID: hash,
		ExpiresAt: stored.ExpiresAt,
		User:      user,
	}
	return &SessionToken{
		Token:     token,
		Username:  user.Username,
		Provider:  providerID,
		ExpiresAt: stored.ExpiresAt,
	}, principal, nil
}

// Resolve returns the principal bound to a session token
func (s *SessionIssuer) Resolve(ctx context.Context, token string) (*auth.AuthContext, error) {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil, ErrInvalidSession
	}

	stored, err := s.store.Get(ctx, s.tokens.HashToken(token))
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if stored.Expired(s.now()) {
		return nil, ErrInvalidSession
	}

	principal := &auth.AuthContext{
		Username:  stored.Username,
		Email:     stored.Username,
		Provider:  stored.Provider,
		SessionID: stored.ID,
		ExpiresAt: stored.ExpiresAt,
	}

	if s.users != nil {
		user, err := s.users.FindUserByUsername(ctx, stored.Username)
		switch {
		case err == nil:
			principal.User = user
			principal.Email = user.Email
		case errors.Is(err, auth.ErrUserNotFound):
			return nil, ErrInvalidSession
		default:
			return nil, fmt.Errorf("load session user: %w", err)
		}
	}

	return principal, nil
}

// Revoke deletes the session identified by its token hash
func (s *SessionIssuer) Revoke(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}
