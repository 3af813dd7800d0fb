package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ExpiryBuffer is subtracted from a token's expiry when deciding whether it
// can still be used. It absorbs clock skew and request latency.
const ExpiryBuffer = 60 * time.Second

// Client authentication methods at the token endpoint (RFC 7591 §2).
const (
	AuthMethodClientSecretBasic = "client_secret_basic"
	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodNone              = "none"
)

// Grant and response types requested during dynamic client registration.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	ResponseTypeCode           = "code"
)

// TokenBundle is the persisted token set for one MCP server.
type TokenBundle struct {
	// AccessToken is the bearer token sent to the MCP server.
	AccessToken string `json:"access_token" yaml:"accessToken" firestore:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty" yaml:"tokenType,omitempty" firestore:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty" yaml:"refreshToken,omitempty" firestore:"refresh_token,omitempty"`

	// ExpiresAt is the expiry as epoch seconds. Zero means unknown.
	ExpiresAt int64 `json:"expires_at,omitempty" yaml:"expiresAt,omitempty" firestore:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty" firestore:"scope,omitempty"`
}

// IsExpired reports whether the bundle should be treated as expired at now,
// applying ExpiryBuffer. Bundles without an expiry never expire.
func (t *TokenBundle) IsExpired(now time.Time) bool {
	return t.IsExpiredWithMargin(now, ExpiryBuffer)
}

// IsExpiredWithMargin reports whether the bundle expires within margin of now.
func (t *TokenBundle) IsExpiredWithMargin(now time.Time, margin time.Duration) bool {
	if t == nil {
		return true
	}
	if t.ExpiresAt == 0 {
		return false
	}
	return !now.Add(margin).Before(time.Unix(t.ExpiresAt, 0))
}

// Expiry returns the expiry as a time, or the zero time when unknown.
func (t *TokenBundle) Expiry() time.Time {
	if t == nil || t.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.ExpiresAt, 0)
}

// Clone returns a copy of the bundle.
func (t *TokenBundle) Clone() *TokenBundle {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ToOAuth2Token converts the bundle for use with golang.org/x/oauth2.
func (t *TokenBundle) ToOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
	}
}

// TokenBundleFromOAuth2 converts a token endpoint response. The scope is
// taken from the raw response when the server returned one.
func TokenBundleFromOAuth2(tok *oauth2.Token) *TokenBundle {
	if tok == nil {
		return nil
	}
	bundle := &TokenBundle{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		bundle.ExpiresAt = tok.Expiry.Unix()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		bundle.Scope = scope
	}
	return bundle
}

// ClientInfo is the registered OAuth client for one MCP server, either
// obtained through dynamic registration or provisioned by an operator.
type ClientInfo struct {
	ClientID                string   `json:"client_id" yaml:"clientId" firestore:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty" yaml:"clientSecret,omitempty" firestore:"client_secret,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty" yaml:"tokenEndpointAuthMethod,omitempty" firestore:"token_endpoint_auth_method,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty" yaml:"redirectUris,omitempty" firestore:"redirect_uris,omitempty"`
	Scope                   string   `json:"scope,omitempty" yaml:"scope,omitempty" firestore:"scope,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty" yaml:"clientIdIssuedAt,omitempty" firestore:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at,omitempty" yaml:"clientSecretExpiresAt,omitempty" firestore:"client_secret_expires_at,omitempty"`

	// Issuer is the authorization server the client was registered with.
	// Empty for pre-provisioned clients.
	Issuer string `json:"issuer,omitempty" yaml:"issuer,omitempty" firestore:"issuer,omitempty"`
}

// AuthMethod returns the token endpoint authentication method to use,
// defaulting to client_secret_basic when a secret exists and none otherwise.
func (c *ClientInfo) AuthMethod() string {
	if c.TokenEndpointAuthMethod != "" {
		return c.TokenEndpointAuthMethod
	}
	if c.ClientSecret != "" {
		return AuthMethodClientSecretBasic
	}
	return AuthMethodNone
}

// AuthStyle maps the authentication method onto golang.org/x/oauth2.
func (c *ClientInfo) AuthStyle() oauth2.AuthStyle {
	if c.AuthMethod() == AuthMethodClientSecretBasic {
		return oauth2.AuthStyleInHeader
	}
	return oauth2.AuthStyleInParams
}

// Clone returns a deep copy of the client info.
func (c *ClientInfo) Clone() *ClientInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &out
}

// ProtectedResourceMetadata is the RFC 9728 document published by an MCP server.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
	ResourceDocumentation  string   `json:"resource_documentation,omitempty"`
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in RFC 8414.
type Metadata struct {
	// Issuer is the authorization server's issuer identifier.
	Issuer string `json:"issuer"`

	// AuthorizationEndpoint is the URL of the authorization endpoint.
	AuthorizationEndpoint string `json:"authorization_endpoint"`

	// TokenEndpoint is the URL of the token endpoint.
	TokenEndpoint string `json:"token_endpoint"`

	// RegistrationEndpoint is the URL for dynamic client registration.
	RegistrationEndpoint string `json:"registration_endpoint,omitempty"`

	// ScopesSupported lists the OAuth 2.0 scope values supported.
	ScopesSupported []string `json:"scopes_supported,omitempty"`

	// ResponseTypesSupported lists the response_type values supported.
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`

	// GrantTypesSupported lists the grant types supported.
	GrantTypesSupported []string `json:"grant_types_supported,omitempty"`

	// TokenEndpointAuthMethodsSupported lists the client authentication methods.
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`

	// CodeChallengeMethodsSupported lists the PKCE code challenge methods.
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (m *Metadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == PKCEMethodS256 {
			return true
		}
	}
	// If not specified, assume S256 is supported (OAuth 2.1 requirement)
	return len(m.CodeChallengeMethodsSupported) == 0
}

// ClientRegistrationRequest is the RFC 7591 registration payload.
type ClientRegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	SoftwareID              string   `json:"software_id,omitempty"`
	SoftwareVersion         string   `json:"software_version,omitempty"`
}

// ClientRegistrationResponse is the RFC 7591 registration response.
type ClientRegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	ClientSecretExpiresAt   int64    `json:"client_secret_expires_at,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// RegistrationError is the RFC 7591 error body.
type RegistrationError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer" for OAuth 2.0).
	Scheme string

	// Realm is the protection realm.
	Realm string

	// ResourceMetadataURL is the URL to the protected resource metadata (RFC 9728).
	ResourceMetadataURL string

	// Scope is the space-separated list of required OAuth scopes.
	Scope string

	// Error is the error code from the WWW-Authenticate header (if any).
	Error string

	// ErrorDescription is a human-readable error description (if any).
	ErrorDescription string
}

// IsBearer reports whether the challenge uses the Bearer scheme.
func (c *AuthChallenge) IsBearer() bool {
	return c != nil && strings.EqualFold(c.Scheme, "Bearer")
}

// RealmURL returns the realm when it is an absolute http(s) URL.
func (c *AuthChallenge) RealmURL() string {
	if c == nil {
		return ""
	}
	if strings.HasPrefix(c.Realm, "http://") || strings.HasPrefix(c.Realm, "https://") {
		return c.Realm
	}
	return ""
}

// Scopes returns the challenge scope as a slice.
func (c *AuthChallenge) Scopes() []string {
	if c == nil || c.Scope == "" {
		return nil
	}
	return strings.Fields(c.Scope)
}
