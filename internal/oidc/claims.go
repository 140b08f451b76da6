package oidc

import "reflect"

// protocolClaims are the claim names stripped from a profile when claim
// filtering is enabled.
var protocolClaims = map[string]struct{}{
	"nonce":   {},
	"at_hash": {},
	"iat":     {},
	"nbf":     {},
	"exp":     {},
	"aud":     {},
	"iss":     {},
	"c_hash":  {},
}

// Claims is a claim bag: a mapping from claim name to one or more
// JSON-typed values.
type Claims map[string]any

// String returns the named claim as a string, or "" when it is absent
// or not a string.
func (c Claims) String(name string) string {
	if v, ok := c[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Subject returns the sub claim.
func (c Claims) Subject() string {
	return c.String("sub")
}

// Issuer returns the iss claim.
func (c Claims) Issuer() string {
	return c.String("iss")
}

// Nonce returns the nonce claim.
func (c Claims) Nonce() string {
	return c.String("nonce")
}

// AtHash returns the at_hash claim.
func (c Claims) AtHash() string {
	return c.String("at_hash")
}

// Audience returns the aud claim as a slice, accepting both the string
// and the array form.
func (c Claims) Audience() []string {
	switch v := c["aud"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy of the claim bag.
func (c Claims) Clone() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// FilterProtocolClaims returns a copy without the protocol-reserved
// claim names.
func (c Claims) FilterProtocolClaims() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		if _, reserved := protocolClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

// MergeClaims merges src into dst and returns the result without
// mutating either. Claim values are treated as one-or-many sequences:
// a new claim is set directly, an element already present under a
// sequence-valued claim is skipped (structural equality, first-seen
// order preserved), and a conflicting scalar either deep-merges (when
// both sides are composite and deep is enabled) or becomes a
// two-element sequence. Conflicting assertions are never silently
// discarded.
func MergeClaims(dst, src Claims, deep bool) Claims {
	out := dst.Clone()
	if out == nil {
		out = make(Claims)
	}

	for name, value := range src {
		for _, element := range normalizeElements(value) {
			existing, ok := out[name]
			if !ok {
				out[name] = element
				continue
			}

			if seq, isSeq := existing.([]any); isSeq {
				if !containsElement(seq, element) {
					out[name] = append(append([]any{}, seq...), element)
				}
				continue
			}

			if reflect.DeepEqual(existing, element) {
				continue
			}

			existingMap, existingIsMap := asComposite(existing)
			elementMap, elementIsMap := asComposite(element)
			if deep && existingIsMap && elementIsMap {
				out[name] = map[string]any(MergeClaims(Claims(existingMap), Claims(elementMap), deep))
				continue
			}

			out[name] = []any{existing, element}
		}
	}

	return out
}

// normalizeElements turns a claim value into its ordered sequence of
// elements.
func normalizeElements(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{value}
	}
}

// containsElement reports whether the sequence already holds a
// structurally equal element.
func containsElement(seq []any, element any) bool {
	for _, item := range seq {
		if reflect.DeepEqual(item, element) {
			return true
		}
	}
	return false
}

// asComposite reports whether the value is an object-shaped claim.
func asComposite(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Claims:
		return map[string]any(v), true
	}
	return nil, false
}
