package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/federate/pkg/contextkeys"
	"github.com/platinummonkey/federate/pkg/observability"
)

const maxIdPResponseBytes = 1 << 20

// TokenExchanger trades an authorization code for an access token
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, provider *ProviderConfig, req LoginRequest) (string, error)
}

// ProfileFetcher retrieves the user profile for an access token
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, provider *ProviderConfig, accessToken string) (*Profile, error)
}

// NewHTTPClient returns an HTTP client for identity provider calls with
// tracing on the transport
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// IdPClient talks to identity provider token and user info endpoints.
// Calls are never retried: authorization codes are single use.
type IdPClient struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewIdPClient creates a new identity provider client. metrics may be nil.
func NewIdPClient(httpClient *http.Client, metrics *observability.Metrics, logger *observability.Logger) *IdPClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(10 * time.Second)
	}
	return &IdPClient{
		httpClient: httpClient,
		metrics:    metrics,
		logger:     logger,
	}
}

// ExchangeCode posts the authorization code to the token endpoint and
// returns the access token read from AccessTokenField
func (c *IdPClient) ExchangeCode(ctx context.Context, provider *ProviderConfig, req LoginRequest) (string, error) {
	clientID := req.ClientID
	if clientID == "" {
		clientID = provider.ClientID
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("redirect_uri", req.RedirectURI)
	form.Set("client_secret", provider.ClientSecret)
	form.Set("code", req.Code)
	form.Set("grant_type", "authorization_code")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", newError(KindTokenExchangeFailed, provider.ID, http.StatusInternalServerError, "", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	c.propagateRequestID(ctx, httpReq)

	status, contentType, body, err := c.do(httpReq, provider.ID, "token")
	if err != nil {
		return "", newError(KindTokenExchangeFailed, provider.ID, http.StatusBadGateway, "", err)
	}
	if status < 200 || status > 299 {
		return "", newError(KindTokenExchangeFailed, provider.ID, status,
			fmt.Sprintf("token endpoint returned %d", status), nil)
	}

	fields, err := parseTokenResponse(contentType, body)
	if err != nil {
		return "", newError(KindTokenExchangeFailed, provider.ID, http.StatusBadGateway, "unreadable token response", err)
	}

	token, _ := fields[provider.AccessTokenField].(string)
	if token == "" {
		detail := fmt.Sprintf("token response has no %q field", provider.AccessTokenField)
		if upstream, ok := fields["error"].(string); ok && upstream != "" {
			detail += ", upstream error " + upstream
		}
		return "", newError(KindTokenExchangeFailed, provider.ID, http.StatusBadGateway, detail, nil)
	}

	return token, nil
}

// FetchProfile reads the user profile with the provider's Authorization
// header template
func (c *IdPClient) FetchProfile(ctx context.Context, provider *ProviderConfig, accessToken string) (*Profile, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoEndpoint, nil)
	if err != nil {
		return nil, newError(KindProfileFetchFailed, provider.ID, http.StatusInternalServerError, "", err)
	}
	httpReq.Header.Set("Authorization", fmt.Sprintf(provider.AuthorizationHeader, accessToken))
	httpReq.Header.Set("Accept", "application/json")
	c.propagateRequestID(ctx, httpReq)

	status, _, body, err := c.do(httpReq, provider.ID, "userinfo")
	if err != nil {
		return nil, newError(KindProfileFetchFailed, provider.ID, http.StatusBadGateway, "", err)
	}
	if status < 200 || status > 299 {
		return nil, newError(KindProfileFetchFailed, provider.ID, status,
			fmt.Sprintf("user info endpoint returned %d", status), nil)
	}

	doc, err := DecodeProfile(body)
	if err != nil {
		return nil, newError(KindProfileFetchFailed, provider.ID, http.StatusBadGateway, "unreadable profile", err)
	}

	return &Profile{Raw: body, Document: doc}, nil
}

func (c *IdPClient) do(req *http.Request, providerID, endpoint string) (int, string, []byte, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(providerID, endpoint, "error", start)
		c.logger.WithFields(map[string]interface{}{
			"provider": providerID,
			"endpoint": endpoint,
		}).WithError(err).Warn("identity provider request failed")
		return 0, "", nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIdPResponseBytes))
	c.observe(providerID, endpoint, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return 0, "", nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(map[string]interface{}{
			"provider": providerID,
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"body":     truncate(string(body), 256),
		}).Warn("identity provider returned an error status")
	}

	return resp.StatusCode, resp.Header.Get("Content-Type"), body, nil
}

func (c *IdPClient) observe(providerID, endpoint, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.IdPRequestsTotal.WithLabelValues(providerID, endpoint, status).Inc()
	c.metrics.IdPRequestDuration.WithLabelValues(providerID, endpoint).Observe(time.Since(start).Seconds())
}

func (c *IdPClient) propagateRequestID(ctx context.Context, req *http.Request) {
	if id := contextkeys.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

// parseTokenResponse reads a JSON token response, or a form-encoded one as
// GitHub sends when no JSON Accept header is honoured
func parseTokenResponse(contentType string, body []byte) (map[string]interface{}, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "text/plain" {
		return parseFormResponse(body)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		if form, formErr := parseFormResponse(body); formErr == nil && len(form) > 0 {
			return form, nil
		}
		return nil, err
	}
	return fields, nil
}

func parseFormResponse(body []byte) (map[string]interface{}, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{}, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
