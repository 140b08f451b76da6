// Package oidc implements the response-validation core of an OpenID
// Connect relying party.
//
// Given a persisted signin or signout request state and the parsed
// callback payload from the provider, the ResponseValidator correlates
// the two, acquires tokens (exchanging an authorization code when one
// is present), cryptographically validates the identity assertion, and
// reconciles the resulting claims with the userinfo endpoint.
//
// # Components
//
//   - MetadataService: lazily fetches and caches the provider discovery
//     document and signing key set, with typed endpoint accessors.
//   - ResponseValidator: the sequential validation pipeline for signin
//     and signout responses.
//   - Claims: the claim bag with typed accessors and the deterministic
//     merge used to combine id_token and userinfo assertions.
//
// # Usage
//
//	svc, err := oidc.NewMetadataService(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	validator, err := oidc.NewResponseValidator(cfg, svc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err = validator.ValidateSigninResponse(ctx, state, resp)
//	if err != nil {
//	    // Handle rejected response
//	}
//
// Building the authorization redirect, parsing the callback URL and
// persisting request state are the caller's concern.
package oidc
