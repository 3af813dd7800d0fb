package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"
)

// ClientRegistrar obtains an OAuth client for a server: the persisted one
// when it is still usable, otherwise a new one through dynamic client
// registration (RFC 7591).
type ClientRegistrar struct {
	store  *store.Store
	client *http.Client

	clientName         string
	initialAccessToken string
}

// NewClientRegistrar creates a registrar. initialAccessToken is optional.
func NewClientRegistrar(s *store.Store, client *http.Client, clientName, initialAccessToken string) *ClientRegistrar {
	if client == nil {
		client = http.DefaultClient
	}
	return &ClientRegistrar{
		store:              s,
		client:             client,
		clientName:         clientName,
		initialAccessToken: initialAccessToken,
	}
}

// EnsureClient returns usable client info for rec and reports whether a
// registration took place. A second call after a successful registration
// returns the persisted client without contacting the server.
func (r *ClientRegistrar) EnsureClient(ctx context.Context, rec *store.Record, disc *Discovery, redirectURI, scope string) (*pkgoauth.ClientInfo, bool, error) {
	const op = "register client"

	if info := rec.ClientInfo; info != nil {
		reason := r.staleReason(info, disc.Issuer, redirectURI)
		if reason == "" {
			return info.Clone(), false, nil
		}
		logging.Info("ClientRegistrar", "Re-registering client for %s: %s", rec.ID, reason)
	}

	if disc.Metadata.RegistrationEndpoint == "" {
		return nil, false, newFlowError(KindManualRegistrationRequired, op, rec.ID,
			fmt.Errorf("issuer %s has no registration_endpoint", disc.Issuer))
	}

	info, err := r.register(ctx, rec, disc, redirectURI, scope)
	if err != nil {
		return nil, false, err
	}

	if _, err := r.store.Update(ctx, rec.ID, func(stored *store.Record) error {
		stored.ClientInfo = info.Clone()
		return nil
	}); err != nil {
		return nil, false, fmt.Errorf("failed to persist client for %s: %w", rec.ID, err)
	}

	logging.Info("ClientRegistrar", "Registered client %s for %s with %s", info.ClientID, rec.ID, disc.Issuer)
	return info, true, nil
}

// staleReason returns why persisted client info cannot be reused, or "".
// Pre-provisioned clients (no issuer) are always reused.
func (r *ClientRegistrar) staleReason(info *pkgoauth.ClientInfo, issuer, redirectURI string) string {
	if info.Issuer == "" {
		return ""
	}
	if info.Issuer != issuer {
		return fmt.Sprintf("authorization server changed from %s to %s", info.Issuer, issuer)
	}
	if len(info.RedirectURIs) > 0 && !slices.Contains(info.RedirectURIs, redirectURI) {
		return "redirect URI changed"
	}
	if info.ClientSecretExpiresAt > 0 && time.Now().Unix() >= info.ClientSecretExpiresAt {
		return "client secret expired"
	}
	return ""
}

func (r *ClientRegistrar) register(ctx context.Context, rec *store.Record, disc *Discovery, redirectURI, scope string) (*pkgoauth.ClientInfo, error) {
	const op = "register client"

	payload := pkgoauth.ClientRegistrationRequest{
		ClientName:    fmt.Sprintf("%s (%s)", r.clientName, rec.DisplayName()),
		RedirectURIs:  []string{redirectURI},
		GrantTypes:    []string{pkgoauth.GrantTypeAuthorizationCode, pkgoauth.GrantTypeRefreshToken},
		ResponseTypes: []string{pkgoauth.ResponseTypeCode},
		Scope:         scope,
		SoftwareID:    r.clientName,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, disc.Metadata.RegistrationEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.initialAccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.initialAccessToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, newFlowError(KindTransportFailure, op, rec.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var regErr pkgoauth.RegistrationError
		detail := fmt.Sprintf("status %d", resp.StatusCode)
		if decodeLimited(resp.Body, &regErr) == nil && regErr.Error != "" {
			detail = strings.TrimSpace(fmt.Sprintf("%s %s", regErr.Error, regErr.ErrorDescription))
		}
		return nil, newFlowError(KindRegistrationRejected, op, rec.ID, fmt.Errorf("registration rejected: %s", detail))
	}

	var out pkgoauth.ClientRegistrationResponse
	if err := decodeLimited(resp.Body, &out); err != nil {
		return nil, newFlowError(KindRegistrationRejected, op, rec.ID, err)
	}
	if out.ClientID == "" {
		return nil, newFlowError(KindRegistrationRejected, op, rec.ID, fmt.Errorf("registration response has no client_id"))
	}

	redirectURIs := out.RedirectURIs
	if len(redirectURIs) == 0 {
		redirectURIs = []string{redirectURI}
	}
	return &pkgoauth.ClientInfo{
		ClientID:                out.ClientID,
		ClientSecret:            out.ClientSecret,
		TokenEndpointAuthMethod: out.TokenEndpointAuthMethod,
		RedirectURIs:            redirectURIs,
		Scope:                   out.Scope,
		ClientIDIssuedAt:        out.ClientIDIssuedAt,
		ClientSecretExpiresAt:   out.ClientSecretExpiresAt,
		Issuer:                  disc.Issuer,
	}, nil
}
