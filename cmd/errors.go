package cmd

import "fmt"

// AuthRequiredError is returned when a server needs the user to open an
// authorization URL before it can be used.
type AuthRequiredError struct {
	ServerID string
	// URL is empty when the authorization could not be started.
	URL string
}

func (e *AuthRequiredError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("authorization required for %s", e.ServerID)
	}
	return fmt.Sprintf("authorization required for %s: open the URL above to continue", e.ServerID)
}

// AuthFailedError is returned when a step of the OAuth flow failed.
type AuthFailedError struct {
	ServerID string
	Reason   string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`authorization for %s failed: %s

To retry, run:
  mcpconnect check %s`, e.ServerID, e.Reason, e.ServerID)
}
