package store

import (
	"errors"
	"fmt"
	"time"

	"mcpconnect/pkg/oauth"
)

// Record is the persisted OAuth state of one remote MCP server. Its field
// names are an on-disk contract read by administration tooling.
type Record struct {
	ID   string `json:"id" yaml:"id" firestore:"id"`
	Name string `json:"name" yaml:"name" firestore:"name"`
	URL  string `json:"url" yaml:"url" firestore:"url"`

	OAuthStatus oauth.Status `json:"oauthStatus" yaml:"oauthStatus" firestore:"oauthStatus"`

	ClientInfo   *oauth.ClientInfo  `json:"clientInfo,omitempty" yaml:"clientInfo,omitempty" firestore:"clientInfo,omitempty"`
	AuthTokens   *oauth.TokenBundle `json:"authTokens,omitempty" yaml:"authTokens,omitempty" firestore:"authTokens,omitempty"`
	CodeVerifier string             `json:"codeVerifier,omitempty" yaml:"codeVerifier,omitempty" firestore:"codeVerifier,omitempty"`

	// OAuthState is the state parameter sent with the pending authorization
	// request. It lives and dies with CodeVerifier.
	OAuthState string `json:"oauthState,omitempty" yaml:"oauthState,omitempty" firestore:"oauthState,omitempty"`

	// LastError is the user-facing message of the last failed flow step.
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty" firestore:"lastError,omitempty"`

	// Encrypted marks secret fields as AES-256-GCM ciphertext.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty" firestore:"encrypted,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt" firestore:"updatedAt"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ClientInfo = r.ClientInfo.Clone()
	c.AuthTokens = r.AuthTokens.Clone()
	return &c
}

// DisplayName returns the name, falling back to the id.
func (r *Record) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// HasPendingAuthorization reports whether a verifier is waiting for a callback.
func (r *Record) HasPendingAuthorization() bool {
	return r.CodeVerifier != ""
}

var (
	// ErrConflict is returned when an authorization attempt is already in
	// flight for the same server.
	ErrConflict = errors.New("authorization already in progress")

	// ErrInvalidTransition is returned when an update would move a record
	// along an edge the status machine does not allow.
	ErrInvalidTransition = errors.New("invalid oauth status transition")
)

// NotFoundError is returned when no record exists for an id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("mcp server %q not found", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
