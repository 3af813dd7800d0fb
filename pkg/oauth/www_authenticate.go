package oauth

import (
	"fmt"
	"net/http"
	"strings"
)

// ParseWWWAuthenticate parses a single WWW-Authenticate challenge.
// Quoted and unquoted parameter values are both accepted.
//
// Example headers:
//
//	Bearer realm="https://auth.example.com"
//	Bearer realm="https://auth.example.com", scope="openid profile"
//	Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &AuthChallenge{
		Scheme: parts[0],
	}
	if len(parts) < 2 {
		return challenge, nil
	}

	params := parseAuthParams(parts[1])
	challenge.Realm = params["realm"]
	challenge.ResourceMetadataURL = params["resource_metadata"]
	challenge.Scope = params["scope"]
	challenge.Error = params["error"]
	challenge.ErrorDescription = params["error_description"]

	return challenge, nil
}

// BearerChallenge returns the first Bearer challenge among the
// WWW-Authenticate headers of resp, or nil if none is present.
func BearerChallenge(resp *http.Response) *AuthChallenge {
	if resp == nil {
		return nil
	}
	for _, value := range resp.Header.Values("WWW-Authenticate") {
		challenge, err := ParseWWWAuthenticate(value)
		if err != nil {
			continue
		}
		if challenge.IsBearer() {
			return challenge
		}
	}
	return nil
}

// parseAuthParams parses the parameter portion of a challenge.
// Format: key1="value1", key2="value2", key3=value3
func parseAuthParams(params string) map[string]string {
	result := make(map[string]string)

	for _, part := range splitPreservingQuotes(params, ',') {
		part = strings.TrimSpace(part)
		eq := strings.Index(part, "=")
		if eq <= 0 {
			continue
		}

		key := strings.ToLower(strings.TrimSpace(part[:eq]))
		value := strings.TrimSpace(part[eq+1:])
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		result[key] = value
	}

	return result
}

// splitPreservingQuotes splits s on delimiter outside of quoted sections.
func splitPreservingQuotes(s string, delimiter byte) []string {
	var result []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteByte(ch)
		case ch == delimiter && !inQuotes:
			result = append(result, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}
