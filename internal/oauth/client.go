// Package oauth provides the authorization-code token exchange used by
// the signin response validator.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Common errors for the token exchange client.
var (
	ErrTokenRequestFailed = errors.New("token request failed")
	ErrInvalidResponse    = errors.New("invalid token response")
	ErrMissingCode        = errors.New("missing authorization code")
	ErrMissingClientID    = errors.New("missing client ID")
)

// Metrics for the token exchange client.
var (
	codeExchangeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oidcrp_code_exchange_total",
			Help: "Total number of authorization code exchange requests",
		},
		[]string{"result"},
	)

	codeExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oidcrp_code_exchange_duration_seconds",
			Help:    "Duration of authorization code exchange requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

// CodeExchangeRequest holds the parameters sent to the token endpoint.
type CodeExchangeRequest struct {
	// ClientID is the OAuth2 client ID.
	ClientID string

	// ClientSecret is the OAuth2 client secret (optional).
	ClientSecret string

	// Code is the authorization code from the callback.
	Code string

	// RedirectURI is the redirect URI the code was issued for.
	RedirectURI string

	// CodeVerifier is the PKCE verifier. It is always sent, as an empty
	// string when the request was made without PKCE.
	CodeVerifier string

	// Extra holds additional form parameters forwarded verbatim.
	Extra map[string]string
}

// TokenResponse represents the token endpoint response. In-band
// provider errors are returned as a populated Error field rather than
// as a Go error, so the caller can decide how to surface them.
type TokenResponse struct {
	// Error is the OAuth2 error code, when the provider rejected the
	// exchange.
	Error string `json:"error,omitempty"`

	// ErrorDescription is the human readable error description.
	ErrorDescription string `json:"error_description,omitempty"`

	// ErrorURI points at documentation for the error.
	ErrorURI string `json:"error_uri,omitempty"`

	// IDToken is the OIDC identity assertion.
	IDToken string `json:"id_token,omitempty"`

	// AccessToken is the access token.
	AccessToken string `json:"access_token,omitempty"`

	// TokenType is the type of token (usually "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the number of seconds until the token expires.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the scope of the token.
	Scope string `json:"scope,omitempty"`

	// SessionState is the OIDC session management state.
	SessionState string `json:"session_state,omitempty"`
}

// IsError reports whether the response carries an in-band error.
func (t *TokenResponse) IsError() bool {
	return t.Error != ""
}

// Config holds configuration for the token exchange client.
type Config struct {
	// Timeout is the timeout for token requests.
	Timeout time.Duration

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Logger is the logger to use (optional).
	Logger *zap.Logger
}

// Client exchanges authorization codes at a token endpoint.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new token exchange client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

// ExchangeCode exchanges an authorization code for tokens at the given
// token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint string, request *CodeExchangeRequest) (*TokenResponse, error) {
	start := time.Now()
	result := "success"

	defer func() {
		duration := time.Since(start).Seconds()
		codeExchangeTotal.WithLabelValues(result).Inc()
		codeExchangeDuration.WithLabelValues(result).Observe(duration)
	}()

	req, err := c.buildExchangeRequest(ctx, tokenEndpoint, request)
	if err != nil {
		result = "request_error"
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result = "network_error"
		return nil, fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024)) // 1MB limit
	if err != nil {
		result = "read_error"
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		result = "parse_error"
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrTokenRequestFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if tokenResp.IsError() {
		result = "oauth_error"
		c.logger.Warn("token endpoint rejected code exchange",
			zap.Int("status", resp.StatusCode),
			zap.String("error", tokenResp.Error),
			zap.String("errorDescription", tokenResp.ErrorDescription),
		)
		return &tokenResp, nil
	}

	if resp.StatusCode != http.StatusOK {
		result = "token_error"
		c.logger.Error("token request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrTokenRequestFailed, resp.StatusCode)
	}

	c.logger.Debug("authorization code exchanged",
		zap.String("tokenType", tokenResp.TokenType),
		zap.Bool("idToken", tokenResp.IDToken != ""),
	)

	return &tokenResp, nil
}

// buildExchangeRequest creates the HTTP request for the exchange.
func (c *Client) buildExchangeRequest(ctx context.Context, tokenEndpoint string, request *CodeExchangeRequest) (*http.Request, error) {
	if request == nil || request.Code == "" {
		return nil, ErrMissingCode
	}
	if request.ClientID == "" {
		return nil, ErrMissingClientID
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", request.ClientID)
	if request.ClientSecret != "" {
		data.Set("client_secret", request.ClientSecret)
	}
	data.Set("code", request.Code)
	data.Set("redirect_uri", request.RedirectURI)
	data.Set("code_verifier", request.CodeVerifier)

	for name, value := range request.Extra {
		data.Set(name, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return req, nil
}
