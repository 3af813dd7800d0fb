package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"

	"github.com/mark3labs/mcp-go/mcp"
)

// Hint sources reported by Detection.
const (
	HintResourceMetadata = "resource_metadata"
	HintRealm            = "realm"
)

// Detection is the outcome of one unauthenticated probe.
type Detection struct {
	RequiresAuth bool

	// ResourceMetadataURL is the discovery hint from the challenge, if any.
	ResourceMetadataURL string

	// HintSource says which challenge parameter the hint came from.
	HintSource string

	// Scope is the scope requested by the challenge, if any.
	Scope string

	StatusCode int

	// TransportError is set when the probe never got an HTTP response.
	// Detection then reports RequiresAuth=false; a real connection attempt
	// will surface the error.
	TransportError error
}

// Hint returns the discovery hint carried by the challenge.
func (d Detection) Hint() ResourceHint {
	return ResourceHint{URL: d.ResourceMetadataURL, Source: d.HintSource}
}

// Detector is the RequirementDetector: it probes a resource server and
// interprets a 401 challenge.
type Detector struct {
	client *http.Client
}

// NewDetector creates a Detector. The client's timeout bounds the probe.
func NewDetector(client *http.Client) *Detector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Detector{client: client}
}

// Detect sends an MCP initialize request without credentials and
// classifies the response. It has no side effects besides the probe.
func (d *Detector) Detect(ctx context.Context, serverURL string) Detection {
	req, err := newProbeRequest(ctx, serverURL)
	if err != nil {
		return Detection{TransportError: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		logging.Debug("Detector", "Probe of %s failed: %v", serverURL, err)
		return Detection{TransportError: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
		_ = resp.Body.Close()
	}()

	return classify(resp)
}

func classify(resp *http.Response) Detection {
	det := Detection{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusUnauthorized {
		return det
	}

	det.RequiresAuth = true
	challenge := pkgoauth.BearerChallenge(resp)
	if challenge == nil {
		return det
	}

	det.Scope = challenge.Scope
	switch {
	case challenge.ResourceMetadataURL != "":
		det.ResourceMetadataURL = challenge.ResourceMetadataURL
		det.HintSource = HintResourceMetadata
	case challenge.RealmURL() != "":
		det.ResourceMetadataURL = challenge.RealmURL()
		det.HintSource = HintRealm
	}
	return det
}

func newProbeRequest(ctx context.Context, serverURL string) (*http.Request, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  string(mcp.MethodInitialize),
		"params": map[string]interface{}{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"capabilities":    map[string]interface{}{},
			"clientInfo": map[string]string{
				"name":    "mcpconnect-probe",
				"version": "1.0.0",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode probe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}
