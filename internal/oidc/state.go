package oidc

import "github.com/google/uuid"

// SigninState is the locally persisted record of an authorization
// request. The validator consumes a state at most once and never
// mutates it.
type SigninState struct {
	// ID is the opaque correlation ID carried in the state parameter.
	ID string `json:"id"`

	// ClientID is the client the request was made for.
	ClientID string `json:"client_id"`

	// Authority is the provider the request was made against.
	Authority string `json:"authority"`

	// Nonce is the replay-protection value bound to the id_token, when
	// one was requested.
	Nonce string `json:"nonce,omitempty"`

	// CodeVerifier is the PKCE secret, when the authorization code flow
	// was used.
	CodeVerifier string `json:"code_verifier,omitempty"`

	// RedirectURI is the redirect URI the request was made with.
	RedirectURI string `json:"redirect_uri"`

	// Scope is the originally requested scope.
	Scope string `json:"scope"`

	// ExtraTokenParams are additional parameters forwarded to the token
	// endpoint during code exchange.
	ExtraTokenParams map[string]string `json:"extraTokenParams,omitempty"`

	// SkipUserInfo suppresses the userinfo fetch for this request even
	// when userinfo loading is enabled.
	SkipUserInfo bool `json:"skipUserInfo,omitempty"`

	// Data is an opaque application payload carried through validation
	// regardless of outcome.
	Data any `json:"data,omitempty"`
}

// SignoutState is the locally persisted record of an end-session
// request.
type SignoutState struct {
	// ID is the opaque correlation ID.
	ID string `json:"id"`

	// Data is an opaque application payload carried through validation
	// regardless of outcome.
	Data any `json:"data,omitempty"`
}

// NewSigninState returns a SigninState with a fresh correlation ID.
func NewSigninState() *SigninState {
	return &SigninState{ID: uuid.NewString()}
}

// NewSignoutState returns a SignoutState with a fresh correlation ID.
func NewSignoutState() *SignoutState {
	return &SignoutState{ID: uuid.NewString()}
}
