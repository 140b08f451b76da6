package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vyrodovalexey/oidcrp/internal/observability"
)

// UserInfoFetcher fetches additional claims for an access token.
type UserInfoFetcher interface {
	GetClaims(ctx context.Context, accessToken string) (Claims, error)
}

// UserInfoClient fetches claims from the provider userinfo endpoint,
// resolving the endpoint through the metadata service.
type UserInfoClient struct {
	metadata   *MetadataService
	httpClient *http.Client
	logger     observability.Logger
	metrics    *Metrics
}

// UserInfoOption is a functional option for the userinfo client.
type UserInfoOption func(*UserInfoClient)

// WithUserInfoHTTPClient sets the HTTP client.
func WithUserInfoHTTPClient(httpClient *http.Client) UserInfoOption {
	return func(c *UserInfoClient) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithUserInfoLogger sets the logger.
func WithUserInfoLogger(logger observability.Logger) UserInfoOption {
	return func(c *UserInfoClient) {
		c.logger = logger
	}
}

// WithUserInfoMetrics sets the metrics.
func WithUserInfoMetrics(metrics *Metrics) UserInfoOption {
	return func(c *UserInfoClient) {
		c.metrics = metrics
	}
}

// NewUserInfoClient creates a userinfo client.
func NewUserInfoClient(metadata *MetadataService, opts ...UserInfoOption) (*UserInfoClient, error) {
	if metadata == nil {
		return nil, fmt.Errorf("metadata service is required")
	}

	c := &UserInfoClient{
		metadata: metadata,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("")
	}

	return c, nil
}

// GetClaims fetches the claim set for the given access token.
func (c *UserInfoClient) GetClaims(ctx context.Context, accessToken string) (Claims, error) {
	endpoint, err := c.metadata.UserinfoEndpoint(ctx)
	if err != nil {
		c.metrics.RecordUserInfo("error")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		c.metrics.RecordUserInfo("error")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordUserInfo("error")
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordUserInfo("error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		c.metrics.RecordUserInfo("error")
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(body, &claims); err != nil {
		c.metrics.RecordUserInfo("error")
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}

	c.metrics.RecordUserInfo("success")
	c.logger.Debug("userinfo claims fetched",
		observability.Int("claimCount", len(claims)),
	)

	return claims, nil
}

// Ensure UserInfoClient implements UserInfoFetcher.
var _ UserInfoFetcher = (*UserInfoClient)(nil)
