package oidc

import (
	"errors"
	"strings"
	"time"
)

// wellKnownPath is the discovery document suffix appended to the
// authority.
const wellKnownPath = ".well-known/openid-configuration"

// Config represents relying party configuration.
type Config struct {
	// Authority is the provider base URL. The discovery document URL is
	// derived from it unless MetadataURL is set.
	Authority string `yaml:"authority,omitempty" json:"authority,omitempty"`

	// MetadataURL is an explicit discovery document URL. When set it
	// takes precedence over Authority.
	MetadataURL string `yaml:"metadataUrl,omitempty" json:"metadataUrl,omitempty"`

	// Metadata is a statically supplied discovery document. When set,
	// no metadata fetch ever occurs, even if Authority is also set.
	Metadata Document `yaml:"metadata,omitempty" json:"metadata,omitempty"`

	// MetadataSeed is merged underneath the fetched discovery document;
	// fetched values win on key collision.
	MetadataSeed Document `yaml:"metadataSeed,omitempty" json:"metadataSeed,omitempty"`

	// SigningKeys is a statically supplied set of JWKs. When set, no
	// key set fetch occurs until the key cache is reset.
	SigningKeys []map[string]any `yaml:"signingKeys,omitempty" json:"signingKeys,omitempty"`

	// ClientID is the OAuth client ID.
	ClientID string `yaml:"clientId" json:"clientId"`

	// ClientSecret is the OAuth client secret (optional).
	ClientSecret string `yaml:"clientSecret,omitempty" json:"clientSecret,omitempty"`

	// ClockSkew is the tolerated clock difference for expiry and
	// not-before checks.
	ClockSkew time.Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`

	// FilterProtocolClaims removes protocol-reserved claims from the
	// validated profile.
	FilterProtocolClaims bool `yaml:"filterProtocolClaims" json:"filterProtocolClaims"`

	// LoadUserInfo fetches additional claims from the userinfo endpoint
	// after id_token validation.
	LoadUserInfo bool `yaml:"loadUserInfo" json:"loadUserInfo"`

	// MergeClaims enables recursive merging of composite claim values
	// when id_token and userinfo claims collide.
	MergeClaims bool `yaml:"mergeClaims" json:"mergeClaims"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ClockSkew:            5 * time.Minute,
		FilterProtocolClaims: true,
		LoadUserInfo:         true,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}
	if c.ClientID == "" {
		return errors.New("clientId is required")
	}
	if c.Authority == "" && c.MetadataURL == "" && c.Metadata == nil {
		return errors.New("authority, metadataUrl or static metadata is required")
	}
	return nil
}

// GetEffectiveClockSkew returns the configured clock skew or the
// default.
func (c *Config) GetEffectiveClockSkew() time.Duration {
	if c.ClockSkew > 0 {
		return c.ClockSkew
	}
	return 5 * time.Minute
}

// GetMetadataURL returns the resolved discovery document URL, or false
// when neither an explicit URL nor an authority is configured.
func (c *Config) GetMetadataURL() (string, bool) {
	if c.MetadataURL != "" {
		return c.MetadataURL, true
	}
	if c.Authority != "" {
		if strings.HasSuffix(c.Authority, "/") {
			return c.Authority + wellKnownPath, true
		}
		return c.Authority + "/" + wellKnownPath, true
	}
	return "", false
}
