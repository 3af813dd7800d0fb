package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"
)

// CallbackParams are the query parameters of an authorization response.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// errNoPendingFlow tells fail that there is nothing to reset.
var errNoPendingFlow = errors.New("no pending authorization")

// TokenExchanger finishes an authorization: it trades the code for tokens
// and refreshes expired tokens.
type TokenExchanger struct {
	store     *store.Store
	resolver  *MetadataResolver
	initiator *AuthorizationInitiator
	client    *http.Client
}

// NewTokenExchanger creates an exchanger. The initiator supplies the
// redirect URI, which must match the one sent with the authorization request.
func NewTokenExchanger(s *store.Store, resolver *MetadataResolver, initiator *AuthorizationInitiator, client *http.Client) *TokenExchanger {
	if client == nil {
		client = http.DefaultClient
	}
	return &TokenExchanger{
		store:     s,
		resolver:  resolver,
		initiator: initiator,
		client:    client,
	}
}

// Exchange handles a callback for serverID. On success the record is
// CONNECTED; on any failure a pending authorization is reset to REQUIRED.
// Either way the verifier is gone afterwards.
func (e *TokenExchanger) Exchange(ctx context.Context, serverID string, params CallbackParams) (*store.Record, error) {
	rec, err := e.exchange(ctx, serverID, params)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, err
		}
		if failErr := e.fail(ctx, serverID, err); failErr != nil {
			logging.Error("TokenExchanger", failErr, "Failed to reset %s after callback failure", serverID)
		}
		return nil, err
	}
	return rec, nil
}

func (e *TokenExchanger) exchange(ctx context.Context, serverID string, params CallbackParams) (*store.Record, error) {
	const op = "exchange code"

	// Provider errors and missing codes never reach the token endpoint.
	if params.Error != "" {
		fe := newFlowError(KindCallbackRejected, op, serverID, fmt.Errorf("provider returned %s", params.Error))
		fe.Message = params.ErrorDescription
		if fe.Message == "" {
			fe.Message = params.Error
		}
		return nil, fe
	}
	if params.Code == "" {
		fe := newFlowError(KindCallbackRejected, op, serverID, errors.New("callback carried no authorization code"))
		fe.Message = "No authorization code received"
		return nil, fe
	}

	if err := e.initiator.CheckConfigured(op, serverID); err != nil {
		return nil, err
	}

	rec, err := e.store.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !rec.HasPendingAuthorization() || rec.ClientInfo == nil {
		return nil, newFlowError(KindMissingVerifier, op, serverID, errors.New("no code verifier stored"))
	}
	if rec.OAuthState != "" && params.State != "" && rec.OAuthState != params.State {
		return nil, newFlowError(KindMissingVerifier, op, serverID, errors.New("state does not match the pending authorization"))
	}

	meta, err := e.authorizationServer(ctx, rec)
	if err != nil {
		return nil, err
	}
	redirectURI, err := e.initiator.RedirectURI(serverID)
	if err != nil {
		return nil, err
	}

	cfg := oauth2Config(rec.ClientInfo, meta, redirectURI, nil)
	tok, err := cfg.Exchange(e.httpContext(ctx), params.Code,
		oauth2.VerifierOption(rec.CodeVerifier),
		oauth2.SetAuthURLParam("resource", rec.URL),
	)
	if err != nil {
		return nil, classifyTokenError(op, serverID, err)
	}

	bundle := pkgoauth.TokenBundleFromOAuth2(tok)
	updated, err := e.store.Transition(ctx, serverID, store.Connected{Tokens: bundle})
	if err != nil {
		return nil, fmt.Errorf("failed to store tokens for %s: %w", serverID, err)
	}

	logging.Info("TokenExchanger", "Connected %s (token %s)", serverID, pkgoauth.NewRedactedToken(bundle.AccessToken).Fingerprint())
	return updated, nil
}

// Refresh uses the record's refresh token to obtain new tokens and moves
// the record to CONNECTED. The caller handles failure.
func (e *TokenExchanger) Refresh(ctx context.Context, rec *store.Record) (*store.Record, error) {
	const op = "refresh token"

	if rec.AuthTokens == nil || rec.AuthTokens.RefreshToken == "" {
		return nil, newFlowError(KindExchangeRejected, op, rec.ID, errors.New("no refresh token stored"))
	}
	if rec.ClientInfo == nil {
		return nil, newFlowError(KindExchangeRejected, op, rec.ID, errors.New("no client registered"))
	}

	meta, err := e.authorizationServer(ctx, rec)
	if err != nil {
		return nil, err
	}

	// x/oauth2 only refreshes tokens it considers expired itself, which
	// uses a shorter margin than ExpiryBuffer.
	current := rec.AuthTokens.ToOAuth2Token()
	current.Expiry = e.store.Now().Add(-time.Second)

	cfg := oauth2Config(rec.ClientInfo, meta, "", nil)
	tok, err := cfg.TokenSource(e.httpContext(ctx), current).Token()
	if err != nil {
		return nil, classifyTokenError(op, rec.ID, err)
	}

	bundle := pkgoauth.TokenBundleFromOAuth2(tok)
	if bundle.Scope == "" {
		bundle.Scope = rec.AuthTokens.Scope
	}
	updated, err := e.store.Transition(ctx, rec.ID, store.Connected{Tokens: bundle})
	if err != nil {
		return nil, fmt.Errorf("failed to store refreshed tokens for %s: %w", rec.ID, err)
	}
	logging.Info("TokenExchanger", "Refreshed tokens for %s", rec.ID)
	return updated, nil
}

// authorizationServer finds the metadata for the server the client was
// registered with. Pre-provisioned clients carry no issuer, so discovery
// runs again for them.
func (e *TokenExchanger) authorizationServer(ctx context.Context, rec *store.Record) (*pkgoauth.Metadata, error) {
	if rec.ClientInfo.Issuer != "" {
		return e.resolver.ResolveAuthorizationServer(ctx, rec.ID, rec.ClientInfo.Issuer)
	}
	disc, err := e.resolver.Discover(ctx, rec.ID, rec.URL, ResourceHint{})
	if err != nil {
		return nil, err
	}
	return disc.Metadata, nil
}

// fail resets a pending authorization to REQUIRED with the error's user
// message. Records without a pending flow are left alone, so a stray
// callback cannot disconnect a working session.
func (e *TokenExchanger) fail(ctx context.Context, serverID string, cause error) error {
	_, err := e.store.Update(ctx, serverID, func(rec *store.Record) error {
		if !rec.HasPendingAuthorization() && rec.OAuthStatus != pkgoauth.StatusRequired {
			return errNoPendingFlow
		}
		return rec.Apply(store.Failed{Reason: UserMessage(cause)}, e.store.Now())
	})
	if errors.Is(err, errNoPendingFlow) {
		return nil
	}
	return err
}

func (e *TokenExchanger) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.client)
}

// classifyTokenError maps an x/oauth2 error onto the error taxonomy.
func classifyTokenError(op, serverID string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		fe := newFlowError(KindExchangeRejected, op, serverID, err)
		if retrieveErr.ErrorDescription != "" {
			fe.Message = "Token request rejected: " + retrieveErr.ErrorDescription
		} else if retrieveErr.ErrorCode != "" {
			fe.Message = "Token request rejected: " + retrieveErr.ErrorCode
		}
		return fe
	}
	if isTransportError(err) {
		return newFlowError(KindTransportFailure, op, serverID, err)
	}
	return newFlowError(KindExchangeRejected, op, serverID, err)
}
