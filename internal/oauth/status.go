package oauth

import (
	"context"
	"time"

	pkgoauth "mcpconnect/pkg/oauth"
)

// ServerStatus is the displayable state of one record. Token values are
// redacted.
type ServerStatus struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	URL         string                 `json:"url" yaml:"url"`
	OAuthStatus pkgoauth.Status        `json:"oauthStatus" yaml:"oauthStatus"`
	Connected   bool                   `json:"connected" yaml:"connected"`
	Pending     bool                   `json:"authorizationPending" yaml:"authorizationPending"`
	ClientID    string                 `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	Tokens      *pkgoauth.TokenSummary `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	LastError   string                 `json:"lastError,omitempty" yaml:"lastError,omitempty"`
	UpdatedAt   time.Time              `json:"updatedAt" yaml:"updatedAt"`
}

// Statuses lists every record sorted by id. Connected is true only while
// the stored access token is usable.
func (m *Manager) Statuses(ctx context.Context) ([]ServerStatus, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.store.Now()
	out := make([]ServerStatus, 0, len(records))
	for _, rec := range records {
		st := ServerStatus{
			ID:          rec.ID,
			Name:        rec.DisplayName(),
			URL:         rec.URL,
			OAuthStatus: rec.OAuthStatus,
			Connected:   rec.OAuthStatus == pkgoauth.StatusConnected && !rec.AuthTokens.IsExpired(now),
			Pending:     rec.HasPendingAuthorization(),
			Tokens:      rec.AuthTokens.Summary(),
			LastError:   rec.LastError,
			UpdatedAt:   rec.UpdatedAt,
		}
		if rec.ClientInfo != nil {
			st.ClientID = rec.ClientInfo.ClientID
		}
		out = append(out, st)
	}
	return out, nil
}
