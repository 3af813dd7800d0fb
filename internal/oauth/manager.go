package oauth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/giantswarm/mcp-oauth/security"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"mcpconnect/internal/config"
	"mcpconnect/internal/store"
	"mcpconnect/internal/telemetry"
	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"
)

// ManagerConfig wires the flow components.
type ManagerConfig struct {
	// PublicURL is resolved once at startup. A missing URL makes every
	// check and callback fail with Misconfiguration.
	PublicURL    config.PublicURL
	CallbackPath string

	// ClientName prefixes the client_name of registered clients.
	ClientName string

	// DefaultScopes are requested when neither the challenge nor the
	// protected resource metadata names any.
	DefaultScopes []string

	ProbeTimeout       time.Duration
	HTTPTimeout        time.Duration
	MetadataCacheTTL   time.Duration
	InitialAccessToken string

	// HTTPClient is the base client. Its Transport is shared; timeouts
	// are set per use.
	HTTPClient *http.Client

	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
}

// CheckResult is the response of Check.
type CheckResult struct {
	RequiresAuth     bool            `json:"requiresAuth"`
	Connected        bool            `json:"connected"`
	OAuthStatus      pkgoauth.Status `json:"oauthStatus"`
	AuthorizationURL string          `json:"authorizationUrl,omitempty"`
	Error            string          `json:"error,omitempty"`

	kind ErrorKind
}

// Manager drives the OAuth state machine for all registered servers.
type Manager struct {
	store     *store.Store
	detector  *Detector
	resolver  *MetadataResolver
	registrar *ClientRegistrar
	initiator *AuthorizationInitiator
	exchanger *TokenExchanger
	provider  *CredentialProvider

	defaultScopes []string
	metrics       *telemetry.Metrics
	tracer        trace.Tracer
}

// NewManager creates a Manager over s.
func NewManager(s *store.Store, cfg ManagerConfig) *Manager {
	if cfg.ClientName == "" {
		cfg.ClientName = config.DefaultClientName
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = config.DefaultProbeTimeout
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = config.DefaultHTTPTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracenoop.NewTracerProvider().Tracer("mcpconnect/oauth")
	}

	probeClient := clientWithTimeout(cfg.HTTPClient, cfg.ProbeTimeout)
	apiClient := clientWithTimeout(cfg.HTTPClient, cfg.HTTPTimeout)

	resolver := NewMetadataResolver(apiClient, cfg.MetadataCacheTTL)
	initiator := NewAuthorizationInitiator(s, cfg.PublicURL, cfg.CallbackPath)
	exchanger := NewTokenExchanger(s, resolver, initiator, apiClient)

	m := &Manager{
		store:         s,
		detector:      NewDetector(probeClient),
		resolver:      resolver,
		registrar:     NewClientRegistrar(s, apiClient, cfg.ClientName, cfg.InitialAccessToken),
		initiator:     initiator,
		exchanger:     exchanger,
		defaultScopes: cfg.DefaultScopes,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
	}
	m.provider = NewCredentialProvider(s, exchanger, m, cfg.Metrics)
	return m
}

func clientWithTimeout(base *http.Client, timeout time.Duration) *http.Client {
	if base == nil {
		return &http.Client{Timeout: timeout}
	}
	c := *base
	c.Timeout = timeout
	return &c
}

// Store returns the StatusStore.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Provider returns the CredentialProvider.
func (m *Manager) Provider() *CredentialProvider {
	return m.provider
}

// CallbackPath returns the path prefix callbacks arrive on.
func (m *Manager) CallbackPath() string {
	return m.initiator.CallbackPath()
}

// Check probes serverID and, when it requires OAuth, runs discovery and
// registration and starts an authorization. Step failures are reported in
// CheckResult.Error with the record left in REQUIRED; the returned error
// is reserved for unknown servers, conflicts, misconfiguration and storage
// failures.
func (m *Manager) Check(ctx context.Context, serverID string) (result *CheckResult, err error) {
	ctx, span := m.tracer.Start(ctx, "oauth.check", trace.WithAttributes(attribute.String("mcp.server.id", serverID)))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.metrics.RecordCheck(ctx, serverID, "", string(KindOf(err)))
		case result != nil:
			span.SetAttributes(attribute.String("oauth.status", string(result.OAuthStatus)))
			if result.Error != "" {
				span.SetStatus(codes.Error, result.Error)
			}
			m.metrics.RecordCheck(ctx, serverID, string(result.OAuthStatus), string(result.kind))
		}
		span.End()
	}()

	if _, err := m.store.Get(ctx, serverID); err != nil {
		return nil, err
	}
	if err := m.initiator.CheckConfigured("check", serverID); err != nil {
		logging.Error("OAuthManager", err, "Cannot check %s", serverID)
		return nil, err
	}

	release, err := m.store.TryBeginAuthorization(serverID)
	if err != nil {
		return nil, newFlowError(KindConflict, "check", serverID, err)
	}
	defer release()

	// Read again now that no other attempt can write the flow fields.
	rec, err := m.store.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return m.check(ctx, rec)
}

func (m *Manager) check(ctx context.Context, rec *store.Record) (*CheckResult, error) {
	serverID := rec.ID
	var err error

	if rec.OAuthStatus == pkgoauth.StatusConnected {
		if !rec.AuthTokens.IsExpired(m.store.Now()) {
			return &CheckResult{RequiresAuth: true, Connected: true, OAuthStatus: pkgoauth.StatusConnected}, nil
		}
		if rec, err = m.store.Transition(ctx, serverID, store.Expired{Tokens: rec.AuthTokens}); err != nil {
			return nil, err
		}
	}

	det := m.detector.Detect(ctx, rec.URL)
	if det.TransportError != nil {
		m.metrics.RecordDetection(ctx, serverID, "unreachable")
		fe := newFlowError(KindTransportFailure, "detect", serverID, det.TransportError)
		logging.Warn("OAuthManager", "Could not probe %s: %v", serverID, det.TransportError)
		return &CheckResult{OAuthStatus: rec.OAuthStatus, Error: fe.UserMessage(), kind: fe.Kind}, nil
	}

	if !det.RequiresAuth {
		m.metrics.RecordDetection(ctx, serverID, "not_required")
		if _, err := m.store.Transition(ctx, serverID, store.NotRequired{}); err != nil {
			return nil, err
		}
		logging.Debug("OAuthManager", "%s does not require OAuth (status %d)", serverID, det.StatusCode)
		return &CheckResult{OAuthStatus: pkgoauth.StatusNotRequired}, nil
	}

	m.metrics.RecordDetection(ctx, serverID, "required")
	if rec, err = m.store.Transition(ctx, serverID, store.Required{}); err != nil {
		return nil, err
	}
	logging.Info("OAuthManager", "%s requires OAuth (hint %q from %s)", serverID, det.ResourceMetadataURL, det.HintSource)

	disc, err := m.resolver.Discover(ctx, serverID, rec.URL, det.Hint())
	if err != nil {
		return m.stepFailed(ctx, serverID, err)
	}

	scope := selectScope(det.Scope, disc.Resource.ScopesSupported, m.defaultScopes)
	redirectURI, err := m.initiator.RedirectURI(serverID)
	if err != nil {
		return nil, err
	}

	info, registered, err := m.registrar.EnsureClient(ctx, rec, disc, redirectURI, scope)
	if registered || (err != nil && !IsKind(err, KindManualRegistrationRequired)) {
		m.metrics.RecordRegistration(ctx, serverID, err)
	}
	if err != nil {
		return m.stepFailed(ctx, serverID, err)
	}

	authURL, err := m.initiator.Initiate(ctx, rec, info, disc, scope)
	if err != nil {
		return m.stepFailed(ctx, serverID, err)
	}

	logging.Audit(logging.AuditEvent{
		Action:    "authorization_started",
		ServerID:  serverID,
		Outcome:   "success",
		Detail:    disc.Issuer,
		RequestID: security.GetRequestID(ctx),
	})
	return &CheckResult{
		RequiresAuth:     true,
		OAuthStatus:      pkgoauth.StatusRequired,
		AuthorizationURL: authURL,
	}, nil
}

// stepFailed moves the record to REQUIRED with the step's user message.
// Errors outside the taxonomy are internal and returned as such.
func (m *Manager) stepFailed(ctx context.Context, serverID string, stepErr error) (*CheckResult, error) {
	kind := KindOf(stepErr)
	if kind == "" || kind == KindMisconfiguration {
		return nil, stepErr
	}

	msg := UserMessage(stepErr)
	if _, err := m.store.Transition(ctx, serverID, store.Failed{Reason: msg}); err != nil {
		return nil, err
	}

	logging.Warn("OAuthManager", "Authorization for %s failed: %v", serverID, stepErr)
	logging.Audit(logging.AuditEvent{
		Action:    "authorization_started",
		ServerID:  serverID,
		Outcome:   "failure",
		Detail:    string(kind),
		RequestID: security.GetRequestID(ctx),
	})
	return &CheckResult{RequiresAuth: true, OAuthStatus: pkgoauth.StatusRequired, Error: msg, kind: kind}, nil
}

// Callback finishes the authorization for serverID and returns the
// redirect target: the root path with oauth_success or oauth_error.
func (m *Manager) Callback(ctx context.Context, serverID string, params CallbackParams) string {
	ctx, span := m.tracer.Start(ctx, "oauth.callback", trace.WithAttributes(attribute.String("mcp.server.id", serverID)))
	defer span.End()

	// A callback racing the check that created its verifier waits for it,
	// then holds the guard so no check can start a new attempt whose
	// verifier the exchange would clear.
	rec, err := m.exchangeGuarded(ctx, serverID, params)
	m.metrics.RecordCallback(ctx, serverID, err)
	if err == nil || IsKind(err, KindExchangeRejected) || IsKind(err, KindTransportFailure) {
		m.metrics.RecordExchange(ctx, serverID, err)
	}

	event := logging.AuditEvent{
		Action:    "callback_completed",
		ServerID:  serverID,
		Outcome:   "success",
		RequestID: security.GetRequestID(ctx),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		msg := UserMessage(err)
		if store.IsNotFound(err) {
			msg = "Unknown MCP server"
		}
		event.Action = "callback_failed"
		event.Outcome = "failure"
		event.Detail = string(KindOf(err))
		logging.Audit(event)
		logging.Warn("OAuthManager", "Callback for %s failed: %v", serverID, err)
		return ErrorRedirect(msg)
	}

	logging.Audit(event)
	return SuccessRedirect(rec.DisplayName())
}

func (m *Manager) exchangeGuarded(ctx context.Context, serverID string, params CallbackParams) (*store.Record, error) {
	release, err := m.store.BeginAuthorization(ctx, serverID)
	if err != nil {
		logging.Warn("OAuthManager", "Gave up waiting for authorization of %s: %v", serverID, err)
		return nil, newFlowError(KindConflict, "callback", serverID, err)
	}
	defer release()

	return m.exchanger.Exchange(ctx, serverID, params)
}

// SuccessRedirect is the redirect target after a completed authorization.
func SuccessRedirect(serverName string) string {
	return "/?oauth_success=true&server=" + queryEscape(serverName)
}

// ErrorRedirect is the redirect target after a failed authorization.
func ErrorRedirect(reason string) string {
	return "/?oauth_error=" + queryEscape(reason)
}

// queryEscape escapes spaces as %20 rather than "+".
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// selectScope picks the scope to request: the challenge's, else the
// resource's scopes_supported, else the configured defaults.
func selectScope(challenge string, supported, defaults []string) string {
	if challenge = strings.TrimSpace(challenge); challenge != "" {
		return challenge
	}
	if len(supported) > 0 {
		return strings.Join(supported, " ")
	}
	return strings.Join(defaults, " ")
}
