package oauth

import (
	"context"
	"fmt"

	"mcpconnect/internal/store"
	"mcpconnect/internal/telemetry"
	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"

	"golang.org/x/sync/singleflight"
)

// Credentials are what a transport needs to call a server.
// Tokens is nil for servers that do not require OAuth.
type Credentials struct {
	ServerID   string
	ClientInfo *pkgoauth.ClientInfo
	Tokens     *pkgoauth.TokenBundle
}

// CredentialResult is either Ready or AuthorizationRequired.
type CredentialResult interface {
	isCredentialResult()
}

// Ready carries usable credentials.
type Ready struct {
	Credentials Credentials
}

// AuthorizationRequired tells the transport to stop and send the user to
// URL. URL is empty when the authorization could not be started; Reason
// then says why.
type AuthorizationRequired struct {
	ServerID string
	URL      string
	Status   pkgoauth.Status
	Reason   string
}

func (Ready) isCredentialResult()                 {}
func (AuthorizationRequired) isCredentialResult() {}

// Authorizer starts authorizations. Manager implements it.
type Authorizer interface {
	Check(ctx context.Context, serverID string) (*CheckResult, error)
}

// CredentialProvider hands out current credentials to MCP transports. It
// never redirects; when no valid session exists it returns
// AuthorizationRequired.
type CredentialProvider struct {
	store      *store.Store
	exchanger  *TokenExchanger
	authorizer Authorizer
	metrics    *telemetry.Metrics

	// recoveries runs one expiry recovery per server at a time. A refresh
	// token may be single use, so concurrent callers share the result.
	recoveries singleflight.Group
}

// NewCredentialProvider creates a provider. metrics may be nil.
func NewCredentialProvider(s *store.Store, exchanger *TokenExchanger, authorizer Authorizer, metrics *telemetry.Metrics) *CredentialProvider {
	return &CredentialProvider{
		store:      s,
		exchanger:  exchanger,
		authorizer: authorizer,
		metrics:    metrics,
	}
}

// Credentials returns the credentials for serverID. Expiry is checked
// here, on use: an expired CONNECTED record becomes EXPIRED, is refreshed
// when a refresh token exists, and falls back to a new authorization
// otherwise.
func (p *CredentialProvider) Credentials(ctx context.Context, serverID string) (CredentialResult, error) {
	rec, err := p.store.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}

	switch rec.OAuthStatus {
	case pkgoauth.StatusNotRequired:
		return Ready{Credentials: Credentials{ServerID: serverID}}, nil

	case pkgoauth.StatusConnected:
		if !rec.AuthTokens.IsExpired(p.store.Now()) {
			return ready(rec), nil
		}
		return p.recoverSession(ctx, serverID)

	case pkgoauth.StatusExpired:
		return p.recoverSession(ctx, serverID)

	default:
		return p.authorize(ctx, serverID)
	}
}

// SaveTokens stores tokens obtained outside the callback flow, e.g. by a
// transport that refreshed them itself.
func (p *CredentialProvider) SaveTokens(ctx context.Context, serverID string, tokens *pkgoauth.TokenBundle) error {
	if _, err := p.store.Transition(ctx, serverID, store.Connected{Tokens: tokens}); err != nil {
		return fmt.Errorf("failed to save tokens for %s: %w", serverID, err)
	}
	return nil
}

// Rejected records that the MCP server answered 401 to the stored access
// token. A CONNECTED record becomes EXPIRED so the next Credentials call
// refreshes or re-authorizes.
func (p *CredentialProvider) Rejected(ctx context.Context, serverID string) error {
	rec, err := p.store.Get(ctx, serverID)
	if err != nil {
		return err
	}
	if rec.OAuthStatus != pkgoauth.StatusConnected {
		return nil
	}
	logging.Info("CredentialProvider", "MCP server %s rejected its access token", serverID)
	_, err = p.store.Transition(ctx, serverID, store.Expired{Tokens: rec.AuthTokens})
	return err
}

// recoverSession refreshes or re-authorizes serverID. Callers arriving while a
// recovery is running wait for it and get its result.
func (p *CredentialProvider) recoverSession(ctx context.Context, serverID string) (CredentialResult, error) {
	v, err, shared := p.recoveries.Do(serverID, func() (interface{}, error) {
		// Read again: a recovery that finished just before this one started
		// may already have stored fresh tokens.
		rec, err := p.store.Get(ctx, serverID)
		if err != nil {
			return nil, err
		}
		switch rec.OAuthStatus {
		case pkgoauth.StatusConnected:
			if !rec.AuthTokens.IsExpired(p.store.Now()) {
				return ready(rec), nil
			}
			logging.Debug("CredentialProvider", "Tokens for %s expired at %s", serverID, rec.AuthTokens.Expiry())
			rec, err = p.store.Transition(ctx, serverID, store.Expired{Tokens: rec.AuthTokens})
			if err != nil {
				return nil, err
			}
			return p.recoverExpired(ctx, rec)
		case pkgoauth.StatusExpired:
			return p.recoverExpired(ctx, rec)
		case pkgoauth.StatusNotRequired:
			return Ready{Credentials: Credentials{ServerID: serverID}}, nil
		default:
			return p.authorize(ctx, serverID)
		}
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.Debug("CredentialProvider", "Shared recovery result for %s", serverID)
	}
	return v.(CredentialResult), nil
}

func (p *CredentialProvider) recoverExpired(ctx context.Context, rec *store.Record) (CredentialResult, error) {
	if rec.AuthTokens != nil && rec.AuthTokens.RefreshToken != "" {
		refreshed, err := p.exchanger.Refresh(ctx, rec)
		p.metrics.RecordRefresh(ctx, rec.ID, err)
		if err == nil {
			logging.Audit(logging.AuditEvent{Action: "tokens_refreshed", ServerID: rec.ID, Outcome: "success"})
			return ready(refreshed), nil
		}
		logging.Audit(logging.AuditEvent{Action: "tokens_refreshed", ServerID: rec.ID, Outcome: "failure", Detail: string(KindOf(err))})
		logging.Warn("CredentialProvider", "Refresh for %s failed: %v", rec.ID, err)
		if _, tErr := p.store.Transition(ctx, rec.ID, store.Failed{Reason: UserMessage(err)}); tErr != nil {
			return nil, tErr
		}
	} else if _, err := p.store.Transition(ctx, rec.ID, store.Required{}); err != nil {
		return nil, err
	}
	return p.authorize(ctx, rec.ID)
}

func (p *CredentialProvider) authorize(ctx context.Context, serverID string) (CredentialResult, error) {
	if p.authorizer == nil {
		return AuthorizationRequired{ServerID: serverID, Status: pkgoauth.StatusRequired}, nil
	}

	result, err := p.authorizer.Check(ctx, serverID)
	if err != nil {
		return nil, err
	}

	switch {
	case result.Connected:
		rec, err := p.store.Get(ctx, serverID)
		if err != nil {
			return nil, err
		}
		return ready(rec), nil
	case !result.RequiresAuth:
		// Also taken when the probe failed; the transport's own request
		// then reports the real error.
		return Ready{Credentials: Credentials{ServerID: serverID}}, nil
	default:
		return AuthorizationRequired{
			ServerID: serverID,
			URL:      result.AuthorizationURL,
			Status:   result.OAuthStatus,
			Reason:   result.Error,
		}, nil
	}
}

func ready(rec *store.Record) Ready {
	return Ready{Credentials: Credentials{
		ServerID:   rec.ID,
		ClientInfo: rec.ClientInfo.Clone(),
		Tokens:     rec.AuthTokens.Clone(),
	}}
}
