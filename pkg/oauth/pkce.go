package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// stateBytes is the number of random bytes for the OAuth state parameter.
	// 32 bytes encodes to 43 base64url characters, satisfying OAuth servers that
	// require a minimum of 32 characters.
	stateBytes = 32

	// PKCEMethodS256 is the only code challenge method this client sends.
	PKCEMethodS256 = "S256"
)

// GenerateState generates a random state parameter for OAuth.
// The state links the authorization response back to the request that
// started it.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ChallengeS256 derives the PKCE S256 code challenge for a verifier.
func ChallengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
