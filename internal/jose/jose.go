// Package jose provides the low-level JWT primitives used by the
// response validator: compact parsing, attribute-only validation,
// full signature validation via jwx, and the digest helpers needed
// for at_hash verification.
package jose

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// Sentinel errors for token primitives.
var (
	// ErrMalformedToken indicates that the token is not a well-formed
	// compact JWT.
	ErrMalformedToken = errors.New("token is malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenNotYetValid indicates that the token is not yet valid.
	ErrTokenNotYetValid = errors.New("token is not yet valid")

	// ErrInvalidIssuer indicates that the token issuer does not match.
	ErrInvalidIssuer = errors.New("token issuer is invalid")

	// ErrInvalidAudience indicates that the token audience does not match.
	ErrInvalidAudience = errors.New("token audience is invalid")

	// ErrInvalidSignature indicates that the token signature is invalid.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrUnsupportedDigest indicates an unsupported digest width.
	ErrUnsupportedDigest = errors.New("unsupported digest width")
)

// Header represents the decoded JOSE header of a compact JWT.
type Header struct {
	Algorithm string `json:"alg"`
	KeyID     string `json:"kid,omitempty"`
	Type      string `json:"typ,omitempty"`
}

// ParseCompact splits a compact JWT into its decoded header and payload
// without verifying the signature.
func ParseCompact(token string) (*Header, map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, ErrMalformedToken
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	return &header, payload, nil
}

// ValidateAttributes parses the token and checks its iss, aud, exp and
// nbf claims against the expected values with the given clock skew.
// The signature is not verified.
func ValidateAttributes(token, issuer, audience string, skew time.Duration, now time.Time) (map[string]any, error) {
	_, payload, err := ParseCompact(token)
	if err != nil {
		return nil, err
	}

	if err := checkAttributes(payload, issuer, audience, skew, now); err != nil {
		return nil, err
	}

	return payload, nil
}

// Validate verifies the token signature with the given key and then
// checks the standard attributes the same way ValidateAttributes does.
func Validate(token string, key jwk.Key, issuer, audience string, skew time.Duration) error {
	header, payload, err := ParseCompact(token)
	if err != nil {
		return err
	}

	alg := jwa.SignatureAlgorithm(header.Algorithm)
	if _, err := jws.Verify([]byte(token), jws.WithKey(alg, key)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return checkAttributes(payload, issuer, audience, skew, time.Now())
}

// checkAttributes validates the standard claims of a decoded payload.
func checkAttributes(payload map[string]any, issuer, audience string, skew time.Duration, now time.Time) error {
	iss, _ := payload["iss"].(string)
	if iss != issuer {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, issuer, iss)
	}

	if !audienceContains(payload["aud"], audience) {
		return fmt.Errorf("%w: expected %q", ErrInvalidAudience, audience)
	}

	if exp, ok := numericDate(payload["exp"]); ok {
		if now.After(exp.Add(skew)) {
			return fmt.Errorf("%w: at %v", ErrTokenExpired, exp)
		}
	}

	if nbf, ok := numericDate(payload["nbf"]); ok {
		if now.Before(nbf.Add(-skew)) {
			return fmt.Errorf("%w: before %v", ErrTokenNotYetValid, nbf)
		}
	}

	return nil
}

// audienceContains reports whether the aud claim, which may be a string
// or an array of strings, contains the expected audience.
func audienceContains(aud any, audience string) bool {
	switch v := aud.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == audience {
				return true
			}
		}
	}
	return false
}

// numericDate converts a JSON numeric date claim to a time.Time.
func numericDate(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0), true
		}
	}
	return time.Time{}, false
}

// Digest hashes value with the SHA-2 function of the given bit width.
// Only 256, 384 and 512 are supported.
func Digest(value string, bits int) ([]byte, error) {
	switch bits {
	case 256:
		sum := sha256.Sum256([]byte(value))
		return sum[:], nil
	case 384:
		sum := sha512.Sum384([]byte(value))
		return sum[:], nil
	case 512:
		sum := sha512.Sum512([]byte(value))
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDigest, bits)
	}
}

// LeftHalfBase64URL returns the base64url encoding, without padding, of
// the left half of the digest. This is the OIDC at_hash construction.
func LeftHalfBase64URL(digest []byte) string {
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}
