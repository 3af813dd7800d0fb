package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/client/transport"

	"mcpconnect/internal/oauth"
	pkgoauth "mcpconnect/pkg/oauth"
)

// TokenStore implements mcp-go's transport.TokenStore for one MCP server.
// It has no storage of its own: reads go through the CredentialProvider,
// which refreshes expired tokens, and writes are saved as a CONNECTED
// session.
type TokenStore struct {
	serverID string
	provider *oauth.CredentialProvider
}

// NewTokenStore binds serverID to provider.
func NewTokenStore(serverID string, provider *oauth.CredentialProvider) *TokenStore {
	return &TokenStore{serverID: serverID, provider: provider}
}

// GetToken returns the current access token. transport.ErrNoToken is
// returned whenever the server has no usable token, including when a new
// authorization is needed.
func (s *TokenStore) GetToken(ctx context.Context) (*transport.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.provider.Credentials(ctx, s.serverID)
	if err != nil {
		return nil, err
	}
	ready, ok := result.(oauth.Ready)
	if !ok || ready.Credentials.Tokens == nil || ready.Credentials.Tokens.AccessToken == "" {
		return nil, transport.ErrNoToken
	}
	return toTransportToken(ready.Credentials.Tokens), nil
}

// SaveToken stores a token the transport obtained itself.
func (s *TokenStore) SaveToken(ctx context.Context, token *transport.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == nil {
		return nil
	}
	return s.provider.SaveTokens(ctx, s.serverID, fromTransportToken(token))
}

func toTransportToken(tokens *pkgoauth.TokenBundle) *transport.Token {
	tokenType := tokens.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &transport.Token{
		AccessToken:  tokens.AccessToken,
		TokenType:    tokenType,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.Expiry(),
	}
}

func fromTransportToken(token *transport.Token) *pkgoauth.TokenBundle {
	bundle := &pkgoauth.TokenBundle{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
	}
	if !token.ExpiresAt.IsZero() {
		bundle.ExpiresAt = token.ExpiresAt.Unix()
	}
	return bundle
}

var _ transport.TokenStore = (*TokenStore)(nil)
