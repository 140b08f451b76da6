package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeCode_Success(t *testing.T) {
	t.Parallel()

	var gotForm url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id_token": "header.payload.sig",
			"access_token": "at-123",
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope": "openid profile",
			"session_state": "ss-1"
		}`))
	}))
	defer server.Close()

	client := NewClient(&Config{HTTPClient: server.Client()})

	resp, err := client.ExchangeCode(context.Background(), server.URL, &CodeExchangeRequest{
		ClientID:     "client-1",
		ClientSecret: "secret",
		Code:         "code-abc",
		RedirectURI:  "https://app.example/cb",
		CodeVerifier: "verifier-xyz",
		Extra:        map[string]string{"resource": "https://api.example"},
	})

	require.NoError(t, err)
	assert.False(t, resp.IsError())
	assert.Equal(t, "header.payload.sig", resp.IDToken)
	assert.Equal(t, "at-123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "openid profile", resp.Scope)
	assert.Equal(t, "ss-1", resp.SessionState)

	assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	assert.Equal(t, "client-1", gotForm.Get("client_id"))
	assert.Equal(t, "secret", gotForm.Get("client_secret"))
	assert.Equal(t, "code-abc", gotForm.Get("code"))
	assert.Equal(t, "https://app.example/cb", gotForm.Get("redirect_uri"))
	assert.Equal(t, "verifier-xyz", gotForm.Get("code_verifier"))
	assert.Equal(t, "https://api.example", gotForm.Get("resource"))
}

func TestExchangeCode_EmptyVerifierStillSent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, present := r.PostForm["code_verifier"]
		assert.True(t, present)
		assert.Equal(t, "", r.PostForm.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer"}`))
	}))
	defer server.Close()

	client := NewClient(&Config{HTTPClient: server.Client()})

	_, err := client.ExchangeCode(context.Background(), server.URL, &CodeExchangeRequest{
		ClientID: "client-1",
		Code:     "code-abc",
	})

	require.NoError(t, err)
}

func TestExchangeCode_ProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"error": "invalid_grant",
			"error_description": "code expired",
			"error_uri": "https://idp.example/errors/invalid_grant"
		}`))
	}))
	defer server.Close()

	client := NewClient(&Config{HTTPClient: server.Client()})

	resp, err := client.ExchangeCode(context.Background(), server.URL, &CodeExchangeRequest{
		ClientID: "client-1",
		Code:     "code-abc",
	})

	// In-band errors are data, not transport failures.
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Equal(t, "invalid_grant", resp.Error)
	assert.Equal(t, "code expired", resp.ErrorDescription)
	assert.Equal(t, "https://idp.example/errors/invalid_grant", resp.ErrorURI)
}

func TestExchangeCode_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		request *CodeExchangeRequest
		wantErr error
	}{
		{
			name: "missing code",
			request: &CodeExchangeRequest{
				ClientID: "client-1",
			},
			wantErr: ErrMissingCode,
		},
		{
			name:    "nil request",
			request: nil,
			wantErr: ErrMissingCode,
		},
		{
			name: "missing client id",
			request: &CodeExchangeRequest{
				Code: "code-abc",
			},
			wantErr: ErrMissingClientID,
		},
		{
			name: "undecodable failure status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusBadGateway)
			},
			request: &CodeExchangeRequest{
				ClientID: "client-1",
				Code:     "code-abc",
			},
			wantErr: ErrTokenRequestFailed,
		},
		{
			name: "invalid json with ok status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{not json"))
			},
			request: &CodeExchangeRequest{
				ClientID: "client-1",
				Code:     "code-abc",
			},
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("unexpected request to token endpoint")
				}
			}

			server := httptest.NewServer(handler)
			defer server.Close()

			client := NewClient(&Config{HTTPClient: server.Client()})

			resp, err := client.ExchangeCode(context.Background(), server.URL, tt.request)

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, resp)
		})
	}
}

func TestExchangeCode_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(nil)

	_, err := client.ExchangeCode(context.Background(), server.URL, &CodeExchangeRequest{
		ClientID: "client-1",
		Code:     "code-abc",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenRequestFailed)
}
