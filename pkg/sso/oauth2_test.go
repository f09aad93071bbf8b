package sso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/observability"
)

// fakeIdP is an httptest identity provider with a token and a user info endpoint
type fakeIdP struct {
	server *httptest.Server

	tokenStatus      int
	tokenContentType string
	tokenBody        string
	profileStatus    int
	profileBody      string

	tokenCalls   int
	profileCalls int
	lastForm     map[string]string
	lastAuth     string
	lastReqID    string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{
		tokenStatus:      http.StatusOK,
		tokenContentType: "application/json",
		tokenBody:        `{"access_token":"at-123","token_type":"bearer"}`,
		profileStatus:    http.StatusOK,
		profileBody:      `{"email":"a@x.com","id":"99","name":{"first":"A","last":"B"}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		idp.tokenCalls++
		require.NoError(t, r.ParseForm())
		idp.lastForm = map[string]string{}
		for k := range r.PostForm {
			idp.lastForm[k] = r.PostForm.Get(k)
		}
		idp.lastReqID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", idp.tokenContentType)
		w.WriteHeader(idp.tokenStatus)
		w.Write([]byte(idp.tokenBody))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		idp.profileCalls++
		idp.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(idp.profileStatus)
		w.Write([]byte(idp.profileBody))
	})

	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIdP) config(id string) ProviderConfig {
	cfg := genericConfig(id)
	cfg.AuthorizationEndpoint = f.server.URL + "/authorize"
	cfg.TokenEndpoint = f.server.URL + "/token"
	cfg.UserInfoEndpoint = f.server.URL + "/userinfo"
	cfg.ApplyDefaults()
	return cfg
}

func newTestIdPClient() *IdPClient {
	return NewIdPClient(NewHTTPClient(5*time.Second), nil, observability.NewNopLogger())
}

func TestIdPClient_ExchangeCode(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("corp")
	client := newTestIdPClient()

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	token, err := client.ExchangeCode(ctx, &cfg, LoginRequest{
		ClientID:    "payload-client",
		RedirectURI: "https://app/cb",
		Code:        "code-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "at-123", token)

	assert.Equal(t, map[string]string{
		"client_id":     "payload-client",
		"redirect_uri":  "https://app/cb",
		"client_secret": "secret",
		"code":          "code-1",
		"grant_type":    "authorization_code",
	}, idp.lastForm)
	assert.Equal(t, "req-1", idp.lastReqID)
}

func TestIdPClient_ExchangeCode_DefaultClientID(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("corp")

	_, err := newTestIdPClient().ExchangeCode(context.Background(), &cfg, LoginRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "client-corp", idp.lastForm["client_id"])
}

func TestIdPClient_ExchangeCode_FormEncoded(t *testing.T) {
	idp := newFakeIdP(t)
	idp.tokenContentType = "application/x-www-form-urlencoded; charset=utf-8"
	idp.tokenBody = "access_token=gho_abc&scope=user%3Aemail&token_type=bearer"
	cfg := idp.config("github")

	token, err := newTestIdPClient().ExchangeCode(context.Background(), &cfg, LoginRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "gho_abc", token)
}

func TestIdPClient_ExchangeCode_CustomTokenField(t *testing.T) {
	idp := newFakeIdP(t)
	idp.tokenBody = `{"token":"custom-1"}`
	cfg := idp.config("corp")
	cfg.AccessTokenField = "token"

	token, err := newTestIdPClient().ExchangeCode(context.Background(), &cfg, LoginRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "custom-1", token)
}

func TestIdPClient_ExchangeCode_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_client"}`, http.StatusUnauthorized},
		{"server error", http.StatusInternalServerError, `oops`, http.StatusInternalServerError},
		{"missing token field", http.StatusOK, `{"error":"bad_verification_code"}`, http.StatusBadGateway},
		{"unreadable body", http.StatusOK, `<html>`, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := newFakeIdP(t)
			idp.tokenStatus = tt.status
			idp.tokenBody = tt.body
			cfg := idp.config("corp")

			_, err := newTestIdPClient().ExchangeCode(context.Background(), &cfg, LoginRequest{Code: "c"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenExchangeFailed)
			assert.Equal(t, tt.want, StatusFor(err))
		})
	}
}

func TestIdPClient_ExchangeCode_Unreachable(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("corp")
	idp.server.Close()

	_, err := newTestIdPClient().ExchangeCode(context.Background(), &cfg, LoginRequest{Code: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
	assert.Equal(t, http.StatusBadGateway, StatusFor(err))
}

func TestIdPClient_FetchProfile(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("corp")

	profile, err := newTestIdPClient().FetchProfile(context.Background(), &cfg, "at-123")
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-123", idp.lastAuth)

	email, ok := Extract(profile.Document, "$.email")
	require.True(t, ok)
	assert.Equal(t, "a@x.com", email)
	assert.JSONEq(t, idp.profileBody, string(profile.Raw))
}

func TestIdPClient_FetchProfile_HeaderTemplate(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("github")
	cfg.AuthorizationHeader = "token %s"

	_, err := newTestIdPClient().FetchProfile(context.Background(), &cfg, "gho_abc")
	require.NoError(t, err)
	assert.Equal(t, "token gho_abc", idp.lastAuth)
}

func TestIdPClient_FetchProfile_Failures(t *testing.T) {
	idp := newFakeIdP(t)
	cfg := idp.config("corp")
	client := newTestIdPClient()

	idp.profileStatus = http.StatusForbidden
	_, err := client.FetchProfile(context.Background(), &cfg, "at")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileFetchFailed)
	assert.Equal(t, http.StatusForbidden, StatusFor(err))

	idp.profileStatus = http.StatusOK
	idp.profileBody = "not json"
	_, err = client.FetchProfile(context.Background(), &cfg, "at")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProfileFetchFailed)
	assert.Equal(t, http.StatusBadGateway, StatusFor(err))
}

func TestParseTokenResponse(t *testing.T) {
	fields, err := parseTokenResponse("text/plain", []byte("access_token=a&token_type=bearer"))
	require.NoError(t, err)
	assert.Equal(t, "a", fields["access_token"])

	fields, err = parseTokenResponse("", []byte("access_token=b"))
	require.NoError(t, err)
	assert.Equal(t, "b", fields["access_token"])

	fields, err = parseTokenResponse("application/json", []byte(`{"access_token":"c","expires_in":3600}`))
	require.NoError(t, err)
	assert.Equal(t, "c", fields["access_token"])
}
