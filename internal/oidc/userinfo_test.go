package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/oidcrp/internal/httpjson"
)

func newUserInfoTestClient(t *testing.T, endpoint string) *UserInfoClient {
	t.Helper()

	svc, err := NewMetadataService(&Config{
		ClientID: "client-1",
		Metadata: Document{
			"issuer":            testIssuer,
			"userinfo_endpoint": endpoint,
		},
	}, WithFetcher(httpjson.NewClient()))
	require.NoError(t, err)

	client, err := NewUserInfoClient(svc)
	require.NoError(t, err)

	return client
}

func TestUserInfoClient_GetClaims(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"user-1","email":"u@example.com"}`))
	}))
	defer server.Close()

	client := newUserInfoTestClient(t, server.URL)

	claims, err := client.GetClaims(context.Background(), "at-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject())
	assert.Equal(t, "u@example.com", claims["email"])
}

func TestUserInfoClient_GetClaims_Unauthorized(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newUserInfoTestClient(t, server.URL)

	_, err := client.GetClaims(context.Background(), "at-bad")

	assert.Error(t, err)
}

func TestUserInfoClient_GetClaims_NoEndpoint(t *testing.T) {
	t.Parallel()

	svc, err := NewMetadataService(&Config{
		ClientID: "client-1",
		Metadata: Document{"issuer": testIssuer},
	}, WithFetcher(httpjson.NewClient()))
	require.NoError(t, err)

	client, err := NewUserInfoClient(svc)
	require.NoError(t, err)

	_, err = client.GetClaims(context.Background(), "at-1")

	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
