package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/vyrodovalexey/oidcrp/internal/jose"
	"github.com/vyrodovalexey/oidcrp/internal/oauth"
	"github.com/vyrodovalexey/oidcrp/internal/observability"
)

// CodeExchanger exchanges an authorization code at a token endpoint.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, tokenEndpoint string, request *oauth.CodeExchangeRequest) (*oauth.TokenResponse, error)
}

// ResponseValidator runs the validation pipeline for signin and signout
// responses. Each invocation is strictly sequential; no state persists
// between invocations beyond the metadata service caches.
type ResponseValidator struct {
	config    *Config
	metadata  *MetadataService
	exchanger CodeExchanger
	userInfo  UserInfoFetcher
	logger    observability.Logger
	metrics   *Metrics
	now       func() time.Time
}

// ValidatorOption is a functional option for the response validator.
type ValidatorOption func(*ResponseValidator)

// WithCodeExchanger sets the token exchange client.
func WithCodeExchanger(exchanger CodeExchanger) ValidatorOption {
	return func(v *ResponseValidator) {
		if exchanger != nil {
			v.exchanger = exchanger
		}
	}
}

// WithUserInfoFetcher sets the userinfo client.
func WithUserInfoFetcher(fetcher UserInfoFetcher) ValidatorOption {
	return func(v *ResponseValidator) {
		if fetcher != nil {
			v.userInfo = fetcher
		}
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *ResponseValidator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics.
func WithValidatorMetrics(metrics *Metrics) ValidatorOption {
	return func(v *ResponseValidator) {
		v.metrics = metrics
	}
}

// WithClock sets the time source used for token attribute checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *ResponseValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewResponseValidator creates a response validator.
func NewResponseValidator(config *Config, metadata *MetadataService, opts ...ValidatorOption) (*ResponseValidator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, fmt.Errorf("metadata service is required")
	}

	v := &ResponseValidator{
		config:   config,
		metadata: metadata,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.metrics == nil {
		v.metrics = NewMetrics("")
	}
	if v.exchanger == nil {
		v.exchanger = oauth.NewClient(nil)
	}
	if v.userInfo == nil {
		userInfo, err := NewUserInfoClient(metadata, WithUserInfoMetrics(v.metrics))
		if err != nil {
			return nil, err
		}
		v.userInfo = userInfo
	}

	return v, nil
}

// ValidateSigninResponse runs the signin pipeline: correlate, check
// parameter consistency, acquire and validate tokens, reconcile claims.
// The opaque state data is copied onto the response before any failure
// other than the correlation check itself, so it survives rejection.
func (v *ResponseValidator) ValidateSigninResponse(ctx context.Context, state *SigninState, response *SigninResponse) (*SigninResponse, error) {
	start := time.Now()

	if state == nil || response == nil {
		return nil, fmt.Errorf("state and response are required")
	}

	if err := v.processSigninParams(state, response); err != nil {
		v.metrics.RecordSignin("error", time.Since(start))
		return nil, err
	}

	switch {
	case response.Code != "":
		if err := v.processCode(ctx, state, response); err != nil {
			v.metrics.RecordSignin("error", time.Since(start))
			return nil, err
		}
	case response.IDToken != "":
		if err := v.processIDToken(ctx, state, response); err != nil {
			v.metrics.RecordSignin("error", time.Since(start))
			return nil, err
		}
	}

	if response.Profile != nil {
		if err := v.processClaims(ctx, state, response); err != nil {
			v.metrics.RecordSignin("error", time.Since(start))
			return nil, err
		}
	}

	v.metrics.RecordSignin("success", time.Since(start))
	v.logger.Debug("signin response validated",
		observability.String("subject", response.Profile.Subject()),
		observability.Bool("code", response.Code != ""),
		observability.Bool("idToken", response.IDToken != ""),
	)

	return response, nil
}

// processSigninParams correlates the response with the request state
// and enforces the parameter pairing rules.
func (v *ResponseValidator) processSigninParams(state *SigninState, response *SigninResponse) error {
	if response.State != state.ID {
		return NewProtocolError("state", ErrStateMismatch)
	}

	// Copied before anything else so the application payload is present
	// on every later failure.
	response.Data = state.Data

	if response.Error != "" {
		return &ServerError{
			Code:        response.Error,
			Description: response.ErrorDescription,
			URI:         response.ErrorURI,
			Data:        response.Data,
		}
	}

	if state.Nonce != "" && response.IDToken == "" {
		return NewProtocolError("nonce", ErrMissingIDToken)
	}
	if state.Nonce == "" && response.IDToken != "" {
		return NewProtocolError("nonce", ErrUnexpectedIDToken)
	}
	if state.CodeVerifier != "" && response.Code == "" {
		return NewProtocolError("code", ErrMissingCode)
	}
	if state.CodeVerifier == "" && response.Code != "" {
		return NewProtocolError("code", ErrUnexpectedCode)
	}

	// An omitted scope means the full requested grant was issued.
	if response.Scope == "" {
		response.Scope = state.Scope
	}

	return nil
}

// processCode exchanges the authorization code and, when the exchange
// yields an id_token, validates its attributes. Signature verification
// is skipped here: the exchange happened over an authenticated channel
// to the provider.
func (v *ResponseValidator) processCode(ctx context.Context, state *SigninState, response *SigninResponse) error {
	endpoint, err := v.metadata.TokenEndpoint(ctx)
	if err != nil {
		return err
	}

	token, err := v.exchanger.ExchangeCode(ctx, endpoint, &oauth.CodeExchangeRequest{
		ClientID:     v.clientID(state),
		ClientSecret: v.config.ClientSecret,
		Code:         response.Code,
		RedirectURI:  state.RedirectURI,
		CodeVerifier: state.CodeVerifier,
		Extra:        state.ExtraTokenParams,
	})
	if err != nil {
		return err
	}

	if token.IsError() {
		return &ServerError{
			Code:        token.Error,
			Description: token.ErrorDescription,
			URI:         token.ErrorURI,
			Data:        response.Data,
		}
	}

	response.applyTokenResponse(token)

	if response.IDToken == "" {
		return nil
	}

	issuer, err := v.metadata.Issuer(ctx)
	if err != nil {
		return err
	}

	payload, err := jose.ValidateAttributes(
		response.IDToken, issuer, v.clientID(state), v.config.GetEffectiveClockSkew(), v.now(),
	)
	if err != nil {
		return NewProtocolError("id_token", err)
	}

	profile := Claims(payload)
	if profile.Nonce() != state.Nonce {
		return NewProtocolError("nonce", ErrNonceMismatch)
	}
	if profile.Subject() == "" {
		return NewProtocolError("id_token", ErrMissingSubject)
	}

	response.Profile = profile
	return nil
}

// processIDToken fully validates an id_token received without a code
// (implicit or hybrid flow), including signature verification and,
// when an access token accompanies it, the at_hash binding.
func (v *ResponseValidator) processIDToken(ctx context.Context, state *SigninState, response *SigninResponse) error {
	if state.Nonce == "" {
		return NewProtocolError("nonce", ErrMissingNonce)
	}

	header, payload, err := jose.ParseCompact(response.IDToken)
	if err != nil {
		return NewProtocolError("id_token", err)
	}

	profile := Claims(payload)
	if profile.Nonce() != state.Nonce {
		return NewProtocolError("nonce", ErrNonceMismatch)
	}

	issuer, err := v.metadata.Issuer(ctx)
	if err != nil {
		return err
	}

	key, err := v.resolveSigningKey(ctx, header)
	if err != nil {
		return err
	}

	if err := jose.Validate(response.IDToken, key, issuer, v.clientID(state), v.config.GetEffectiveClockSkew()); err != nil {
		return NewProtocolError("id_token", err)
	}

	if profile.Subject() == "" {
		return NewProtocolError("id_token", ErrMissingSubject)
	}

	response.Profile = profile

	if response.AccessToken != "" {
		return v.validateAccessTokenHash(header.Algorithm, response.AccessToken, profile)
	}

	return nil
}

// resolveSigningKey resolves the signing key for an id_token header.
// An unresolved key triggers exactly one key cache reset and retry, to
// recover from key rotation since the last fetch.
func (v *ResponseValidator) resolveSigningKey(ctx context.Context, header *jose.Header) (jwk.Key, error) {
	keys, err := v.metadata.SigningKeys(ctx)
	if err != nil {
		return nil, err
	}

	key := findSigningKey(keys, header)
	if key == nil {
		v.logger.Info("signing key not resolved, resetting key cache",
			observability.String("kid", header.KeyID),
			observability.String("alg", header.Algorithm),
		)
		v.metadata.ResetSigningKeys()

		keys, err = v.metadata.SigningKeys(ctx)
		if err != nil {
			return nil, err
		}
		key = findSigningKey(keys, header)
	}

	if key == nil {
		return nil, NewProtocolError("key_resolution", ErrKeyNotFound)
	}

	return key, nil
}

// findSigningKey selects the key for a token header from a key set.
// With a kid, the key is the unique kid match. Without one, the keys
// are filtered by the key type of the algorithm family, and the result
// is accepted only when exactly one key remains: with multiple keys
// published, a kid is mandatory.
func findSigningKey(keys jwk.Set, header *jose.Header) jwk.Key {
	if header.KeyID != "" {
		var match jwk.Key
		count := 0
		for i := 0; i < keys.Len(); i++ {
			key, ok := keys.Key(i)
			if ok && key.KeyID() == header.KeyID {
				match = key
				count++
			}
		}
		if count == 1 {
			return match
		}
		return nil
	}

	kty, ok := SigningAlgorithm(header.Algorithm).KeyType()
	if !ok {
		return nil
	}

	var match jwk.Key
	count := 0
	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)
		if ok && key.KeyType() == kty {
			match = key
			count++
		}
	}
	if count == 1 {
		return match
	}
	return nil
}

// validateAccessTokenHash checks the at_hash binding between the
// id_token and the access token: the left half of the algorithm-width
// digest of the access token, base64url encoded without padding, must
// equal the at_hash claim.
func (v *ResponseValidator) validateAccessTokenHash(alg, accessToken string, profile Claims) error {
	atHash := profile.AtHash()
	if atHash == "" {
		return &ProtocolError{Check: "at_hash", Message: "id_token has no at_hash claim"}
	}

	bits, ok := SigningAlgorithm(alg).HashBits()
	if !ok {
		return NewProtocolError("at_hash", ErrUnsupportedAlgorithm)
	}

	digest, err := jose.Digest(accessToken, bits)
	if err != nil {
		return NewProtocolError("at_hash", err)
	}

	expected := jose.LeftHalfBase64URL(digest)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(atHash)) != 1 {
		return NewProtocolError("at_hash", ErrHashMismatch)
	}

	return nil
}

// processClaims filters protocol claims from the profile and, when
// enabled and not skipped for this request, reconciles the profile with
// the userinfo endpoint.
func (v *ResponseValidator) processClaims(ctx context.Context, state *SigninState, response *SigninResponse) error {
	if v.config.FilterProtocolClaims {
		response.Profile = response.Profile.FilterProtocolClaims()
	}

	if !v.config.LoadUserInfo || state.SkipUserInfo || response.AccessToken == "" {
		return nil
	}

	claims, err := v.userInfo.GetClaims(ctx, response.AccessToken)
	if err != nil {
		return err
	}

	// A userinfo subject differing from the id_token subject signals a
	// forged assertion or endpoint confusion.
	if claims.Subject() != response.Profile.Subject() {
		return NewProtocolError("userinfo", ErrSubjectMismatch)
	}

	if v.config.FilterProtocolClaims {
		claims = claims.FilterProtocolClaims()
	}

	response.Profile = MergeClaims(response.Profile, claims, v.config.MergeClaims)
	return nil
}

// ValidateSignoutResponse runs the signout pipeline: correlate the
// response with the request state, copy the opaque data, and surface an
// in-band provider error if one is present.
func (v *ResponseValidator) ValidateSignoutResponse(_ context.Context, state *SignoutState, response *SignoutResponse) (*SignoutResponse, error) {
	if state == nil || response == nil {
		return nil, fmt.Errorf("state and response are required")
	}

	if response.State != state.ID {
		v.metrics.RecordSignout("error")
		return nil, NewProtocolError("state", ErrStateMismatch)
	}

	response.Data = state.Data

	if response.Error != "" {
		v.metrics.RecordSignout("error")
		return nil, &ServerError{
			Code:        response.Error,
			Description: response.ErrorDescription,
			URI:         response.ErrorURI,
			Data:        response.Data,
		}
	}

	v.metrics.RecordSignout("success")
	return response, nil
}

// clientID returns the client ID bound to the request state, falling
// back to the configured one.
func (v *ResponseValidator) clientID(state *SigninState) string {
	if state.ClientID != "" {
		return state.ClientID
	}
	return v.config.ClientID
}
