package mcpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpconnect/internal/oauth"
	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
)

// ConnectResult is either Connected or NeedsAuthorization.
type ConnectResult interface {
	isConnectResult()
}

// Connected reports a successful MCP handshake.
type Connected struct {
	ServerID        string
	ProtocolVersion string
	ServerInfo      mcp.Implementation
	Tools           []mcp.Tool
}

// NeedsAuthorization means the user has to authorize the server first.
// URL is empty when the authorization could not be started; Reason then
// says why.
type NeedsAuthorization struct {
	ServerID string
	URL      string
	Reason   string
}

func (Connected) isConnectResult()          {}
func (NeedsAuthorization) isConnectResult() {}

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	// HTTPClient is used for MCP requests. Nil uses mcp-go's default.
	HTTPClient *http.Client

	// ClientName and ClientVersion are sent in the initialize request.
	ClientName    string
	ClientVersion string
}

// Connector opens short-lived MCP sessions to registered servers.
type Connector struct {
	store      *store.Store
	provider   *oauth.CredentialProvider
	authorizer oauth.Authorizer
	opts       ConnectorOptions
}

// NewConnector creates a Connector. authorizer re-runs detection when a
// server believed to be open answers 401; it may be nil.
func NewConnector(s *store.Store, provider *oauth.CredentialProvider, authorizer oauth.Authorizer, opts ConnectorOptions) *Connector {
	if opts.ClientName == "" {
		opts.ClientName = "mcpconnect"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	return &Connector{
		store:      s,
		provider:   provider,
		authorizer: authorizer,
		opts:       opts,
	}
}

// Connect initializes an MCP session with serverID and lists its tools.
// A token the server rejects is retried once with fresh credentials.
func (c *Connector) Connect(ctx context.Context, serverID string) (ConnectResult, error) {
	rec, err := c.store.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		creds, err := c.provider.Credentials(ctx, serverID)
		if err != nil {
			return nil, err
		}

		var ready oauth.Ready
		switch v := creds.(type) {
		case oauth.AuthorizationRequired:
			return NeedsAuthorization{ServerID: serverID, URL: v.URL, Reason: v.Reason}, nil
		case oauth.Ready:
			ready = v
		default:
			return nil, fmt.Errorf("unexpected credential result %T", creds)
		}

		result, err := c.session(ctx, rec.URL, ready.Credentials)
		if err == nil {
			return result, nil
		}

		if ready.Credentials.Tokens == nil {
			return c.redetect(ctx, serverID, err)
		}
		if !client.IsOAuthAuthorizationRequiredError(err) || attempt > 0 {
			return nil, err
		}
		if rErr := c.provider.Rejected(ctx, serverID); rErr != nil {
			return nil, rErr
		}
	}
}

// redetect handles a failure on a server called without a token. If a
// fresh check finds that OAuth is now required, the authorization it
// started is returned instead of connErr.
func (c *Connector) redetect(ctx context.Context, serverID string, connErr error) (ConnectResult, error) {
	if c.authorizer == nil {
		return nil, connErr
	}
	result, err := c.authorizer.Check(ctx, serverID)
	if err != nil {
		logging.Debug("Connector", "Re-detection for %s failed: %v", serverID, err)
		return nil, connErr
	}
	if !result.RequiresAuth || result.Connected {
		return nil, connErr
	}
	return NeedsAuthorization{ServerID: serverID, URL: result.AuthorizationURL, Reason: result.Error}, nil
}

func (c *Connector) session(ctx context.Context, url string, creds oauth.Credentials) (Connected, error) {
	var opts []transport.StreamableHTTPCOption
	if creds.Tokens != nil {
		oauthCfg := transport.OAuthConfig{
			TokenStore: NewTokenStore(creds.ServerID, c.provider),
		}
		if creds.ClientInfo != nil {
			oauthCfg.ClientID = creds.ClientInfo.ClientID
		}
		opts = append(opts, transport.WithHTTPOAuth(oauthCfg))
	}
	if c.opts.HTTPClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(c.opts.HTTPClient))
	}

	logging.Debug("Connector", "Connecting to %s (%s), authenticated=%t", creds.ServerID, url, creds.Tokens != nil)

	mcpClient, err := client.NewStreamableHttpClient(url, opts...)
	if err != nil {
		return Connected{}, fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}
	defer mcpClient.Close()

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    c.opts.ClientName,
				Version: c.opts.ClientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return Connected{}, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	result := Connected{
		ServerID:        creds.ServerID,
		ProtocolVersion: initResult.ProtocolVersion,
		ServerInfo:      initResult.ServerInfo,
	}

	if initResult.Capabilities.Tools != nil {
		tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return Connected{}, fmt.Errorf("failed to list tools: %w", err)
		}
		result.Tools = tools.Tools
	}

	logging.Info("Connector", "Connected to %s: %s %s, %d tools",
		creds.ServerID, initResult.ServerInfo.Name, initResult.ServerInfo.Version, len(result.Tools))
	return result, nil
}
