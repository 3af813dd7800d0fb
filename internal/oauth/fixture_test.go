package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"mcpconnect/internal/config"
	"mcpconnect/internal/store"
	pkgoauth "mcpconnect/pkg/oauth"

	"github.com/stretchr/testify/require"
)

const testPublicURL = "https://chat.example.com"

// fakeProvider is an MCP resource server, its protected resource metadata
// and an authorization server on one httptest server.
type fakeProvider struct {
	srv *httptest.Server

	mu sync.Mutex

	// probeStatus is the status of unauthenticated MCP requests.
	probeStatus int
	// challenge is the WWW-Authenticate header sent with a 401. Empty
	// sends none.
	challenge string

	emptyAuthServers bool
	noRegistration   bool

	// tokenStatus and tokenBody override the token endpoint response.
	tokenStatus int
	tokenBody   string

	// onToken runs before the token endpoint answers, without f.mu held.
	onToken func(r *http.Request)

	// rotateRefresh rejects a refresh token that was already redeemed.
	rotateRefresh bool
	redeemed      map[string]bool

	probes        int
	registrations int
	tokenRequests int
	prmFetches    int
	asFetches     int

	lastRegistration     pkgoauth.ClientRegistrationRequest
	lastRegistrationAuth string
	lastTokenForm        url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	f := &fakeProvider{probeStatus: http.StatusUnauthorized}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", f.handleProbe)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", f.handlePRM)
	mux.HandleFunc("GET /.well-known/oauth-protected-resource/mcp", f.handlePRM)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", f.handleASMetadata)
	mux.HandleFunc("POST /register", f.handleRegister)
	mux.HandleFunc("POST /token", f.handleToken)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.challenge = fmt.Sprintf(`Bearer resource_metadata="%s/.well-known/oauth-protected-resource/mcp"`, f.srv.URL)
	return f
}

func (f *fakeProvider) resourceURL() string {
	return f.srv.URL + "/mcp"
}

func (f *fakeProvider) set(fn func(f *fakeProvider)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeProvider) counts() (probes, registrations, tokenRequests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, f.registrations, f.tokenRequests
}

func (f *fakeProvider) tokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenForm
}

func (f *fakeProvider) handleProbe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++

	if f.probeStatus == http.StatusUnauthorized && f.challenge != "" {
		w.Header().Set("WWW-Authenticate", f.challenge)
	}
	w.WriteHeader(f.probeStatus)
}

func (f *fakeProvider) handlePRM(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prmFetches++

	servers := []string{f.srv.URL}
	if f.emptyAuthServers {
		servers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resource":              f.resourceURL(),
		"authorization_servers": servers,
		"scopes_supported":      []string{"read"},
	})
}

func (f *fakeProvider) handleASMetadata(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asFetches++

	meta := pkgoauth.Metadata{
		Issuer:                        f.srv.URL,
		AuthorizationEndpoint:         f.srv.URL + "/authorize",
		TokenEndpoint:                 f.srv.URL + "/token",
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	if !f.noRegistration {
		meta.RegistrationEndpoint = f.srv.URL + "/register"
	}
	writeJSON(w, http.StatusOK, meta)
}

func (f *fakeProvider) handleRegister(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations++

	var req pkgoauth.ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, pkgoauth.RegistrationError{Error: "invalid_client_metadata"})
		return
	}
	f.lastRegistration = req
	f.lastRegistrationAuth = r.Header.Get("Authorization")

	writeJSON(w, http.StatusCreated, pkgoauth.ClientRegistrationResponse{
		ClientID:                fmt.Sprintf("client-%d", f.registrations),
		TokenEndpointAuthMethod: pkgoauth.AuthMethodNone,
		RedirectURIs:            req.RedirectURIs,
	})
}

func (f *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	hook := f.onToken
	f.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenRequests++
	f.lastTokenForm = r.PostForm

	if f.rotateRefresh && r.PostForm.Get("grant_type") == "refresh_token" {
		rt := r.PostForm.Get("refresh_token")
		if f.redeemed[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		if f.redeemed == nil {
			f.redeemed = make(map[string]bool)
		}
		f.redeemed[rt] = true
	}

	if f.tokenStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(f.tokenBody))
		return
	}

	access := "access-1"
	if r.PostForm.Get("grant_type") == "refresh_token" {
		access = "access-2"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"token_type":    "Bearer",
		"refresh_token": "refresh-1",
		"expires_in":    3600,
		"scope":         "read",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestManager registers one server, "github", pointing at f.
func newTestManager(t *testing.T, f *fakeProvider) (*Manager, *store.Store) {
	t.Helper()

	st := store.NewMemory()
	_, _, err := st.Register(context.Background(), store.Definition{ID: "github", Name: "GitHub", URL: f.resourceURL()})
	require.NoError(t, err)

	m := NewManager(st, ManagerConfig{
		PublicURL:  config.NewPublicURL(testPublicURL),
		HTTPClient: f.srv.Client(),
	})
	return m, st
}

func getRecord(t *testing.T, st *store.Store, id string) *store.Record {
	t.Helper()
	rec, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}
