package oidc

import "github.com/lestrrat-go/jwx/v2/jwa"

// SigningAlgorithm is an id_token signing algorithm. The type carries a
// total mapping to the JWK key type used for key resolution and to the
// digest width used for at_hash validation, replacing ad hoc string
// slicing of the alg header.
type SigningAlgorithm string

// Supported signing algorithms.
const (
	RS256 SigningAlgorithm = "RS256"
	RS384 SigningAlgorithm = "RS384"
	RS512 SigningAlgorithm = "RS512"
	PS256 SigningAlgorithm = "PS256"
	PS384 SigningAlgorithm = "PS384"
	PS512 SigningAlgorithm = "PS512"
	ES256 SigningAlgorithm = "ES256"
	ES384 SigningAlgorithm = "ES384"
	ES512 SigningAlgorithm = "ES512"
)

// KeyType returns the JWK key type that signs with this algorithm.
// Algorithms outside the supported families yield no key type, which
// makes key-type based resolution produce no candidates for them.
func (a SigningAlgorithm) KeyType() (jwa.KeyType, bool) {
	switch a {
	case RS256, RS384, RS512, PS256, PS384, PS512:
		return jwa.RSA, true
	case ES256, ES384, ES512:
		return jwa.EC, true
	default:
		return "", false
	}
}

// HashBits returns the SHA-2 digest width used for at_hash validation
// with this algorithm.
func (a SigningAlgorithm) HashBits() (int, bool) {
	switch a {
	case RS256, PS256, ES256:
		return 256, true
	case RS384, PS384, ES384:
		return 384, true
	case RS512, PS512, ES512:
		return 512, true
	default:
		return 0, false
	}
}
