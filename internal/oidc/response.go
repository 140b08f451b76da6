package oidc

import "github.com/vyrodovalexey/oidcrp/internal/oauth"

// SigninResponse is the accumulator for a signin callback payload. It
// starts with the raw callback fields and is progressively enriched by
// the validation pipeline, ending with a validated Profile.
type SigninResponse struct {
	// State is the raw state parameter from the callback.
	State string `json:"state"`

	// Code is the authorization code, when one was returned.
	Code string `json:"code,omitempty"`

	// IDToken is the raw id_token, when one was returned.
	IDToken string `json:"id_token,omitempty"`

	// AccessToken is the access token, when one was returned.
	AccessToken string `json:"access_token,omitempty"`

	// TokenType is the access token type.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scope is the granted scope. When the provider omits it, the
	// originally requested scope is assumed.
	Scope string `json:"scope,omitempty"`

	// Error, ErrorDescription and ErrorURI carry an in-band provider
	// error.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`

	// SessionState is the OIDC session management state.
	SessionState string `json:"session_state,omitempty"`

	// Profile is the validated claim set, populated by the pipeline.
	Profile Claims `json:"profile,omitempty"`

	// Data is the opaque application payload copied from the request
	// state. It is set before any failure is raised so correlation
	// survives rejection.
	Data any `json:"data,omitempty"`
}

// applyTokenResponse folds a token endpoint response into the signin
// response. Non-empty values from the exchange win; empty values leave
// the prior value in place.
func (r *SigninResponse) applyTokenResponse(t *oauth.TokenResponse) {
	if t == nil {
		return
	}
	if t.IDToken != "" {
		r.IDToken = t.IDToken
	}
	if t.AccessToken != "" {
		r.AccessToken = t.AccessToken
	}
	if t.TokenType != "" {
		r.TokenType = t.TokenType
	}
	if t.ExpiresIn != 0 {
		r.ExpiresIn = t.ExpiresIn
	}
	if t.Scope != "" {
		r.Scope = t.Scope
	}
	if t.SessionState != "" {
		r.SessionState = t.SessionState
	}
}

// SignoutResponse is the payload of an end-session callback.
type SignoutResponse struct {
	// State is the raw state parameter from the callback.
	State string `json:"state,omitempty"`

	// Error, ErrorDescription and ErrorURI carry an in-band provider
	// error.
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`

	// Data is the opaque application payload copied from the request
	// state.
	Data any `json:"data,omitempty"`
}
