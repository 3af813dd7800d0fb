// Package oauth implements the client side of the MCP authorization flow
// for remote HTTP servers.
//
// The flow is split into components that each own one protocol step:
//
//   - Detector probes a server without credentials and reads the 401 challenge
//   - MetadataResolver discovers protected resource (RFC 9728) and
//     authorization server (RFC 8414) metadata
//   - ClientRegistrar reuses or dynamically registers a client (RFC 7591)
//   - AuthorizationInitiator builds the PKCE authorization URL and persists
//     the verifier
//   - TokenExchanger trades the code for tokens and refreshes them
//   - CredentialProvider hands tokens to transports, or AuthorizationRequired
//
// Manager ties them together behind Check and Callback. All state lives in
// the store package; every step failure leaves the record in REQUIRED with
// a user-facing message.
package oauth
