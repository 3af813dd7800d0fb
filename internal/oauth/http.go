package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	// maxDocumentSize caps metadata and registration responses (1MB).
	maxDocumentSize = 1024 * 1024

	userAgent = "mcpconnect/1.0"
)

// httpStatusError is a non-success HTTP response.
type httpStatusError struct {
	URL        string
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.StatusCode)
}

// getJSON fetches rawURL and decodes a JSON document into v. Transport
// errors are returned unwrapped so callers can classify them.
func getJSON(ctx context.Context, client *http.Client, rawURL string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "json") {
		return fmt.Errorf("unexpected Content-Type %q from %s", contentType, rawURL)
	}

	return decodeLimited(resp.Body, v)
}

func decodeLimited(r io.Reader, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r, maxDocumentSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) >= maxDocumentSize {
		return fmt.Errorf("response exceeds maximum size of %d bytes", maxDocumentSize)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// isTransportError reports whether err happened below HTTP: DNS,
// connection refused, TLS or a timeout.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// validateEndpoint requires an absolute URL using https, or http on a
// loopback host.
func validateEndpoint(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("missing required field: %s", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL: %s", name, raw)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(parsed.Hostname()) {
			return nil
		}
		return fmt.Errorf("%s must use https (http only allowed for localhost): %s", name, raw)
	default:
		return fmt.Errorf("%s must use http or https: %s", name, raw)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
