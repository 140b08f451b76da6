package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/oidcrp/internal/httpjson"
	"github.com/vyrodovalexey/oidcrp/internal/observability"
)

// Singleflight keys for first-population of the two cache entries.
const (
	metadataFlightKey = "metadata"
	jwksFlightKey     = "jwks"
)

// JSONFetcher fetches a JSON document from a URL.
type JSONFetcher interface {
	GetJSON(ctx context.Context, url string, out any, accepted ...string) error
}

// MetadataService resolves and caches the provider discovery document
// and signing key set. Both cache entries are populated lazily, at most
// once per instance; concurrent first-population is coordinated so only
// one fetch is in flight per entry.
type MetadataService struct {
	config  *Config
	fetcher JSONFetcher
	logger  observability.Logger
	metrics *Metrics

	mu          sync.RWMutex
	metadata    Document
	signingKeys jwk.Set

	group singleflight.Group
}

// MetadataOption is a functional option for the metadata service.
type MetadataOption func(*MetadataService)

// WithFetcher sets the JSON fetcher.
func WithFetcher(fetcher JSONFetcher) MetadataOption {
	return func(s *MetadataService) {
		if fetcher != nil {
			s.fetcher = fetcher
		}
	}
}

// WithMetadataLogger sets the logger.
func WithMetadataLogger(logger observability.Logger) MetadataOption {
	return func(s *MetadataService) {
		s.logger = logger
	}
}

// WithMetadataMetrics sets the metrics.
func WithMetadataMetrics(metrics *Metrics) MetadataOption {
	return func(s *MetadataService) {
		s.metrics = metrics
	}
}

// NewMetadataService creates a metadata service for the given
// configuration. Statically supplied metadata and signing keys seed the
// caches so no fetch occurs for them.
func NewMetadataService(config *Config, opts ...MetadataOption) (*MetadataService, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := &MetadataService{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = httpjson.NewClient(httpjson.WithLogger(s.logger))
	}
	if s.metrics == nil {
		s.metrics = NewMetrics("")
	}

	if config.Metadata != nil {
		s.metadata = config.Metadata.Clone()
	}

	if len(config.SigningKeys) > 0 {
		set, err := parseKeySet(map[string]any{"keys": config.SigningKeys})
		if err != nil {
			return nil, fmt.Errorf("failed to parse static signing keys: %w", err)
		}
		s.signingKeys = set
	}

	return s, nil
}

// Metadata returns the discovery document, fetching and caching it on
// first use. Statically configured metadata short-circuits the fetch
// entirely.
func (s *MetadataService) Metadata(ctx context.Context) (Document, error) {
	s.mu.RLock()
	doc := s.metadata
	s.mu.RUnlock()

	if doc != nil {
		return doc, nil
	}

	v, err, _ := s.group.Do(metadataFlightKey, func() (any, error) {
		s.mu.RLock()
		cached := s.metadata
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		url, ok := s.config.GetMetadataURL()
		if !ok {
			return nil, NewConfigurationError("authority", "no authority or metadataUrl configured")
		}

		var fetched Document
		if err := s.fetcher.GetJSON(ctx, url, &fetched); err != nil {
			s.metrics.RecordMetadataFetch("error")
			return nil, err
		}

		merged := mergeDocuments(s.config.MetadataSeed, fetched)

		s.mu.Lock()
		s.metadata = merged
		s.mu.Unlock()

		s.metrics.RecordMetadataFetch("success")
		s.logger.Debug("discovery document fetched",
			observability.String("url", url),
			observability.Int("properties", len(merged)),
		)

		return merged, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(Document), nil
}

// Issuer returns the required issuer property.
func (s *MetadataService) Issuer(ctx context.Context) (string, error) {
	return s.requiredProperty(ctx, propIssuer)
}

// AuthorizationEndpoint returns the required authorization endpoint.
func (s *MetadataService) AuthorizationEndpoint(ctx context.Context) (string, error) {
	return s.requiredProperty(ctx, propAuthorizationEndpoint)
}

// TokenEndpoint returns the required token endpoint.
func (s *MetadataService) TokenEndpoint(ctx context.Context) (string, error) {
	return s.requiredProperty(ctx, propTokenEndpoint)
}

// UserinfoEndpoint returns the required userinfo endpoint.
func (s *MetadataService) UserinfoEndpoint(ctx context.Context) (string, error) {
	return s.requiredProperty(ctx, propUserinfoEndpoint)
}

// JWKSURI returns the required JWKS endpoint.
func (s *MetadataService) JWKSURI(ctx context.Context) (string, error) {
	return s.requiredProperty(ctx, propJWKSURI)
}

// CheckSessionIframe returns the optional check_session_iframe
// property; absent yields ok=false without failing.
func (s *MetadataService) CheckSessionIframe(ctx context.Context) (string, bool, error) {
	return s.optionalProperty(ctx, propCheckSessionIframe)
}

// EndSessionEndpoint returns the optional end_session_endpoint
// property; absent yields ok=false without failing.
func (s *MetadataService) EndSessionEndpoint(ctx context.Context) (string, bool, error) {
	return s.optionalProperty(ctx, propEndSessionEndpoint)
}

// RevocationEndpoint returns the optional revocation_endpoint
// property; absent yields ok=false without failing.
func (s *MetadataService) RevocationEndpoint(ctx context.Context) (string, bool, error) {
	return s.optionalProperty(ctx, propRevocationEndpoint)
}

// requiredProperty reads a property through the metadata cache and
// fails when it is absent.
func (s *MetadataService) requiredProperty(ctx context.Context, name string) (string, error) {
	doc, err := s.Metadata(ctx)
	if err != nil {
		return "", err
	}

	value, ok := doc.StringProperty(name)
	if !ok {
		return "", NewConfigurationError(name, "required metadata property is missing")
	}

	return value, nil
}

// optionalProperty reads a property through the metadata cache; an
// absent property is not an error.
func (s *MetadataService) optionalProperty(ctx context.Context, name string) (string, bool, error) {
	doc, err := s.Metadata(ctx)
	if err != nil {
		return "", false, err
	}

	value, ok := doc.StringProperty(name)
	return value, ok, nil
}

// SigningKeys returns the provider signing key set, fetching and
// caching it on first use. The key set cache is independent of the
// metadata cache.
func (s *MetadataService) SigningKeys(ctx context.Context) (jwk.Set, error) {
	s.mu.RLock()
	keys := s.signingKeys
	s.mu.RUnlock()

	if keys != nil {
		return keys, nil
	}

	v, err, _ := s.group.Do(jwksFlightKey, func() (any, error) {
		s.mu.RLock()
		cached := s.signingKeys
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		uri, err := s.JWKSURI(ctx)
		if err != nil {
			return nil, err
		}

		var doc map[string]any
		if err := s.fetcher.GetJSON(ctx, uri, &doc, "application/json", "application/jwk-set+json"); err != nil {
			s.metrics.RecordSigningKeysFetch("error")
			return nil, err
		}

		if _, ok := doc["keys"].([]any); !ok {
			s.metrics.RecordSigningKeysFetch("error")
			return nil, NewProtocolError("jwks", ErrNoKeys)
		}

		set, err := parseKeySet(doc)
		if err != nil {
			s.metrics.RecordSigningKeysFetch("error")
			return nil, fmt.Errorf("failed to parse key set: %w", err)
		}

		s.mu.Lock()
		s.signingKeys = set
		s.mu.Unlock()

		s.metrics.RecordSigningKeysFetch("success")
		s.logger.Debug("signing keys fetched",
			observability.String("url", uri),
			observability.Int("keyCount", set.Len()),
		)

		return set, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(jwk.Set), nil
}

// ResetSigningKeys invalidates the cached key set only, forcing the
// next SigningKeys call to fetch again. The metadata cache entry is
// untouched. Used to recover from signing key rotation.
func (s *MetadataService) ResetSigningKeys() {
	s.mu.Lock()
	s.signingKeys = nil
	s.mu.Unlock()

	s.group.Forget(jwksFlightKey)
	s.metrics.RecordKeyCacheReset()
	s.logger.Debug("signing key cache reset")
}

// parseKeySet decodes a JWKS-shaped document into a jwk.Set.
func parseKeySet(doc map[string]any) (jwk.Set, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jwk.Parse(buf)
}
