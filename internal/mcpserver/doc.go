// Package mcpserver connects to remote MCP servers over streamable HTTP
// using the credentials managed by the oauth package.
//
// # Overview
//
// A Connector asks the CredentialProvider for credentials before each
// connection. Servers that do not require OAuth are called without an
// Authorization header. Servers with stored tokens are called through
// mcp-go's OAuth transport, fed by a TokenStore bound to the server id.
//
// When the MCP server rejects the stored token, the record is marked
// expired and credentials are requested once more, which refreshes the
// tokens or starts a new authorization. A connection that cannot proceed
// without the user returns NeedsAuthorization with the URL to open.
//
// # Usage
//
//	connector := mcpserver.NewConnector(manager.Store(), manager.Provider(), manager, mcpserver.ConnectorOptions{})
//	result, err := connector.Connect(ctx, "github")
//	switch r := result.(type) {
//	case mcpserver.Connected:
//	    fmt.Println(r.ServerInfo.Name, len(r.Tools))
//	case mcpserver.NeedsAuthorization:
//	    fmt.Println("open", r.URL)
//	}
package mcpserver
