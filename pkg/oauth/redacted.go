package oauth

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const redacted = "[REDACTED]"

// RedactedToken wraps a secret so it cannot leak through fmt, JSON or YAML
// output. Value returns the secret for the one place that needs it.
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value. Never log it.
func (t RedactedToken) Value() string {
	return t.value
}

func (t RedactedToken) String() string {
	return redacted
}

func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{" + redacted + "}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// Fingerprint returns a short hash that correlates log lines about the same
// token without revealing it. Empty for an empty token.
func (t RedactedToken) Fingerprint() string {
	if t.value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(t.value))
	return hex.EncodeToString(sum[:4])
}

func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (t RedactedToken) MarshalYAML() (interface{}, error) {
	return redacted, nil
}

// TokenSummary is the displayable view of a TokenBundle.
type TokenSummary struct {
	AccessToken     RedactedToken `json:"accessToken" yaml:"accessToken"`
	Fingerprint     string        `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	TokenType       string        `json:"tokenType,omitempty" yaml:"tokenType,omitempty"`
	HasRefreshToken bool          `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	Scope           string        `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt       *time.Time    `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// Summary returns the redacted view of the bundle, or nil for nil.
func (t *TokenBundle) Summary() *TokenSummary {
	if t == nil {
		return nil
	}
	access := NewRedactedToken(t.AccessToken)
	s := &TokenSummary{
		AccessToken:     access,
		Fingerprint:     access.Fingerprint(),
		TokenType:       t.TokenType,
		HasRefreshToken: t.RefreshToken != "",
		Scope:           t.Scope,
	}
	if exp := t.Expiry(); !exp.IsZero() {
		s.ExpiresAt = &exp
	}
	return s
}
