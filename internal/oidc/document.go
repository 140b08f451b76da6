package oidc

// Discovery document property names used by the typed accessors.
const (
	propIssuer                = "issuer"
	propAuthorizationEndpoint = "authorization_endpoint"
	propTokenEndpoint         = "token_endpoint"
	propUserinfoEndpoint      = "userinfo_endpoint"
	propJWKSURI               = "jwks_uri"
	propCheckSessionIframe    = "check_session_iframe"
	propEndSessionEndpoint    = "end_session_endpoint"
	propRevocationEndpoint    = "revocation_endpoint"
)

// Document represents a provider discovery document. Documents are
// partially populated; required properties are enforced by the
// MetadataService accessors, not by the type itself.
type Document map[string]any

// StringProperty returns the named property as a string. A missing
// property or a non-string value yields false.
func (d Document) StringProperty(name string) (string, bool) {
	v, ok := d[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// mergeDocuments merges fetched over seed; fetched values win on key
// collision.
func mergeDocuments(seed, fetched Document) Document {
	if seed == nil {
		return fetched
	}
	out := seed.Clone()
	for k, v := range fetched {
		out[k] = v
	}
	return out
}
