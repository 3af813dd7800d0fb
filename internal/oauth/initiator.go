package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"mcpconnect/internal/config"
	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"
)

// AuthorizationInitiator builds authorization URLs and persists the PKCE
// verifier that the callback will need.
type AuthorizationInitiator struct {
	store        *store.Store
	publicURL    config.PublicURL
	callbackPath string
}

// NewAuthorizationInitiator creates an initiator. callbackPath is the fixed
// path segment in front of the server id, e.g. "/api/oauth/callback".
func NewAuthorizationInitiator(s *store.Store, publicURL config.PublicURL, callbackPath string) *AuthorizationInitiator {
	if callbackPath == "" {
		callbackPath = config.DefaultOAuthCallbackPath
	}
	if !strings.HasPrefix(callbackPath, "/") {
		callbackPath = "/" + callbackPath
	}
	return &AuthorizationInitiator{
		store:        s,
		publicURL:    publicURL,
		callbackPath: strings.TrimSuffix(callbackPath, "/"),
	}
}

// CallbackPath returns the normalized callback path prefix.
func (a *AuthorizationInitiator) CallbackPath() string {
	return a.callbackPath
}

// CheckConfigured fails with Misconfiguration when no public URL is set.
func (a *AuthorizationInitiator) CheckConfigured(op, serverID string) error {
	if err := a.publicURL.Err(); err != nil {
		return newFlowError(KindMisconfiguration, op, serverID, err)
	}
	return nil
}

// RedirectURI returns the redirect URI for a server. The server id is the
// last path segment so the callback can recover it from the URL alone.
func (a *AuthorizationInitiator) RedirectURI(serverID string) (string, error) {
	base, err := a.publicURL.Base()
	if err != nil {
		return "", newFlowError(KindMisconfiguration, "build redirect uri", serverID, err)
	}
	return base + a.callbackPath + "/" + url.PathEscape(serverID), nil
}

// Initiate creates a verifier and state, persists them on the record and
// returns the authorization URL to send the user to.
func (a *AuthorizationInitiator) Initiate(ctx context.Context, rec *store.Record, info *pkgoauth.ClientInfo, disc *Discovery, scope string) (string, error) {
	redirectURI, err := a.RedirectURI(rec.ID)
	if err != nil {
		return "", err
	}

	verifier := oauth2.GenerateVerifier()
	state, err := pkgoauth.GenerateState()
	if err != nil {
		return "", err
	}

	cfg := oauth2Config(info, disc.Metadata, redirectURI, strings.Fields(scope))
	authURL := cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("resource", rec.URL),
	)

	if _, err := a.store.Transition(ctx, rec.ID, store.AwaitingCallback{Verifier: verifier, State: state}); err != nil {
		return "", fmt.Errorf("failed to persist code verifier for %s: %w", rec.ID, err)
	}

	logging.Info("AuthorizationInitiator", "Authorization started for %s via %s", rec.ID, disc.Metadata.AuthorizationEndpoint)
	return authURL, nil
}

// oauth2Config maps a client and authorization server onto x/oauth2.
func oauth2Config(info *pkgoauth.ClientInfo, meta *pkgoauth.Metadata, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     info.ClientID,
		ClientSecret: info.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   meta.AuthorizationEndpoint,
			TokenURL:  meta.TokenEndpoint,
			AuthStyle: info.AuthStyle(),
		},
	}
}
