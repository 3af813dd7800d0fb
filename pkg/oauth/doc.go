// Package oauth holds the OAuth 2.1 wire types shared by mcpconnect's
// flow components, storage backends and CLI.
//
// # Core Components
//
//   - Status: the five persisted record statuses and the transition table
//   - TokenBundle: stored tokens with a 60 second expiry buffer
//   - ClientInfo: a registered client and its token endpoint auth method
//   - ProtectedResourceMetadata (RFC 9728) and Metadata (RFC 8414)
//   - ClientRegistrationRequest/Response (RFC 7591)
//   - AuthChallenge: parsed WWW-Authenticate challenges (RFC 6750)
//
// # Usage
//
//	challenge := oauth.BearerChallenge(resp)
//	if challenge != nil && challenge.ResourceMetadataURL != "" {
//	    // discover the authorization server from the hint
//	}
//
//	if bundle.IsExpired(time.Now()) {
//	    // refresh or re-authorize
//	}
package oauth
