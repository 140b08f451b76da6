package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/oidcrp/internal/httpjson"
)

// discoveryServer serves a discovery document and a JWKS and counts the
// requests to each.
type discoveryServer struct {
	*httptest.Server

	metadataHits atomic.Int64
	jwksHits     atomic.Int64

	mu   sync.Mutex
	keys []map[string]any
}

func newDiscoveryServer(t *testing.T) *discoveryServer {
	t.Helper()

	s := &discoveryServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		s.metadataHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 s.Server.URL,
			"authorization_endpoint": s.Server.URL + "/authorize",
			"token_endpoint":         s.Server.URL + "/token",
			"userinfo_endpoint":      s.Server.URL + "/userinfo",
			"jwks_uri":               s.Server.URL + "/jwks",
			"end_session_endpoint":   s.Server.URL + "/logout",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		s.jwksHits.Add(1)
		s.mu.Lock()
		keys := s.keys
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/jwk-set+json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)

	return s
}

func (s *discoveryServer) setKeys(keys []map[string]any) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// publicKeyMap generates an RSA key pair and returns the public half as
// a JWKS entry alongside the private jwk.Key.
func publicKeyMap(t *testing.T, kid string) (jwk.Key, map[string]any) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	priv, err := jwk.FromRaw(privateKey)
	require.NoError(t, err)
	if kid != "" {
		require.NoError(t, priv.Set(jwk.KeyIDKey, kid))
	}

	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)

	buf, err := json.Marshal(pub)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf, &m))

	return priv, m
}

func newTestMetadataService(t *testing.T, cfg *Config) *MetadataService {
	t.Helper()

	svc, err := NewMetadataService(cfg,
		WithFetcher(httpjson.NewClient()),
	)
	require.NoError(t, err)

	return svc
}

func TestMetadataService_FetchOnce(t *testing.T) {
	t.Parallel()

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	ctx := context.Background()

	issuer, err := svc.Issuer(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL, issuer)

	tokenEndpoint, err := svc.TokenEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/token", tokenEndpoint)

	authzEndpoint, err := svc.AuthorizationEndpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", authzEndpoint)

	// Every accessor reads through the same single fetch.
	assert.Equal(t, int64(1), server.metadataHits.Load())
}

func TestMetadataService_FetchOnce_Concurrent(t *testing.T) {
	t.Parallel()

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Metadata(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), server.metadataHits.Load())
}

func TestMetadataService_TrailingSlashAuthority(t *testing.T) {
	t.Parallel()

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority: server.URL + "/",
		ClientID:  "client-1",
	})

	_, err := svc.Metadata(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(1), server.metadataHits.Load())
}

func TestMetadataService_StaticMetadata(t *testing.T) {
	t.Parallel()

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
		Metadata: Document{
			"issuer":         "https://static.example",
			"token_endpoint": "https://static.example/token",
		},
	})

	issuer, err := svc.Issuer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://static.example", issuer)

	// Static metadata wins over the authority; nothing is fetched.
	assert.Equal(t, int64(0), server.metadataHits.Load())
}

func TestMetadataService_SeedMerge(t *testing.T) {
	t.Parallel()

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
		MetadataSeed: Document{
			"issuer":              "https://seed.example",
			"acr_values_supported": []any{"mfa"},
		},
	})

	doc, err := svc.Metadata(context.Background())
	require.NoError(t, err)

	// Fetched values win on collision; seed-only keys survive.
	assert.Equal(t, server.URL, doc["issuer"])
	assert.Equal(t, []any{"mfa"}, doc["acr_values_supported"])
}

func TestMetadataService_RequiredPropertyMissing(t *testing.T) {
	t.Parallel()

	svc := newTestMetadataService(t, &Config{
		ClientID: "client-1",
		Metadata: Document{"issuer": "https://static.example"},
	})

	_, err := svc.TokenEndpoint(context.Background())

	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "token_endpoint", cfgErr.Field)
}

func TestMetadataService_OptionalProperties(t *testing.T) {
	t.Parallel()

	svc := newTestMetadataService(t, &Config{
		ClientID: "client-1",
		Metadata: Document{
			"issuer":               "https://static.example",
			"end_session_endpoint": "https://static.example/logout",
		},
	})

	ctx := context.Background()

	endSession, ok, err := svc.EndSessionEndpoint(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://static.example/logout", endSession)

	// Absent optional properties are not errors.
	_, ok, err = svc.CheckSessionIframe(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = svc.RevocationEndpoint(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMetadataService_NoMetadataSource(t *testing.T) {
	t.Parallel()

	svc := newTestMetadataService(t, &Config{ClientID: "client-1"})

	_, err := svc.Metadata(context.Background())

	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "authority", cfgErr.Field)
}

func TestMetadataService_SigningKeys(t *testing.T) {
	t.Parallel()

	_, pubMap := publicKeyMap(t, "key-1")

	server := newDiscoveryServer(t)
	server.setKeys([]map[string]any{pubMap})

	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	ctx := context.Background()

	keys, err := svc.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, keys.Len())

	key, ok := keys.Key(0)
	require.True(t, ok)
	assert.Equal(t, "key-1", key.KeyID())

	// Cached on second read.
	_, err = svc.SigningKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), server.jwksHits.Load())
}

func TestMetadataService_StaticSigningKeys(t *testing.T) {
	t.Parallel()

	_, pubMap := publicKeyMap(t, "static-key")

	server := newDiscoveryServer(t)
	svc := newTestMetadataService(t, &Config{
		Authority:   server.URL,
		ClientID:    "client-1",
		SigningKeys: []map[string]any{pubMap},
	})

	keys, err := svc.SigningKeys(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, keys.Len())
	assert.Equal(t, int64(0), server.jwksHits.Load())
}

func TestMetadataService_InvalidStaticSigningKeys(t *testing.T) {
	t.Parallel()

	_, err := NewMetadataService(&Config{
		ClientID:    "client-1",
		Metadata:    Document{"issuer": "https://static.example"},
		SigningKeys: []map[string]any{{"kty": "RSA", "n": "!!!not-base64!!!", "e": "AQAB"}},
	}, WithFetcher(httpjson.NewClient()))

	assert.Error(t, err)
}

func TestMetadataService_ResetSigningKeys(t *testing.T) {
	t.Parallel()

	_, oldKey := publicKeyMap(t, "old")
	_, newKey := publicKeyMap(t, "new")

	server := newDiscoveryServer(t)
	server.setKeys([]map[string]any{oldKey})

	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	ctx := context.Background()

	keys, err := svc.SigningKeys(ctx)
	require.NoError(t, err)
	key, _ := keys.Key(0)
	assert.Equal(t, "old", key.KeyID())

	server.setKeys([]map[string]any{newKey})
	svc.ResetSigningKeys()

	keys, err = svc.SigningKeys(ctx)
	require.NoError(t, err)
	key, _ = keys.Key(0)
	assert.Equal(t, "new", key.KeyID())

	// The metadata cache entry is untouched by the key reset.
	assert.Equal(t, int64(1), server.metadataHits.Load())
	assert.Equal(t, int64(2), server.jwksHits.Load())
}

func TestMetadataService_SigningKeys_NoKeysArray(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var baseURL string
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"issuer":%q,"jwks_uri":%q}`, baseURL, baseURL+"/jwks")
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"not_keys":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	baseURL = server.URL

	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	_, err := svc.SigningKeys(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoKeys)
}

func TestMetadataService_FetchFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := newTestMetadataService(t, &Config{
		Authority: server.URL,
		ClientID:  "client-1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := svc.Metadata(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, httpjson.ErrFetch)
}
