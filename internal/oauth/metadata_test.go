package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgoauth "mcpconnect/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtectedResourceURIs(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		hint     string
		want     []string
		wantErr  bool
	}{
		{
			name:     "root resource",
			resource: "https://mcp.example.com",
			want:     []string{"https://mcp.example.com/.well-known/oauth-protected-resource"},
		},
		{
			name:     "resource with path",
			resource: "https://mcp.example.com/v1/mcp/",
			want: []string{
				"https://mcp.example.com/.well-known/oauth-protected-resource/v1/mcp",
				"https://mcp.example.com/.well-known/oauth-protected-resource",
			},
		},
		{
			name:     "hint first",
			resource: "https://mcp.example.com/mcp",
			hint:     "https://meta.example.com/prm",
			want: []string{
				"https://meta.example.com/prm",
				"https://mcp.example.com/.well-known/oauth-protected-resource/mcp",
				"https://mcp.example.com/.well-known/oauth-protected-resource",
			},
		},
		{
			name:     "insecure hint dropped",
			resource: "https://mcp.example.com",
			hint:     "http://evil.example.com/prm",
			want:     []string{"https://mcp.example.com/.well-known/oauth-protected-resource"},
		},
		{
			name:     "relative resource",
			resource: "/mcp",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protectedResourceURIs(tt.resource, tt.hint)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizationServerMetadataURIs(t *testing.T) {
	got, err := authorizationServerMetadataURIs("https://auth.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://auth.example.com/.well-known/oauth-authorization-server",
		"https://auth.example.com/.well-known/openid-configuration",
	}, got)

	got, err = authorizationServerMetadataURIs("https://auth.example.com/tenant1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://auth.example.com/.well-known/oauth-authorization-server/tenant1",
		"https://auth.example.com/.well-known/openid-configuration/tenant1",
		"https://auth.example.com/tenant1/.well-known/openid-configuration",
	}, got)

	_, err = authorizationServerMetadataURIs("http://auth.example.com")
	assert.Error(t, err)
}

func TestResolveAuthorizationServer_OpenIDFallbackAndCache(t *testing.T) {
	var fetches atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		writeJSON(w, http.StatusOK, pkgoauth.Metadata{
			AuthorizationEndpoint: srv.URL + "/authorize",
			TokenEndpoint:         srv.URL + "/token",
		})
	}))
	defer srv.Close()

	r := NewMetadataResolver(srv.Client(), time.Minute)
	ctx := context.Background()

	meta, err := r.ResolveAuthorizationServer(ctx, "github", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, meta.Issuer, "empty issuer is filled in")
	assert.Equal(t, srv.URL+"/token", meta.TokenEndpoint)

	_, err = r.ResolveAuthorizationServer(ctx, "github", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load())

	r.Invalidate(srv.URL)
	_, err = r.ResolveAuthorizationServer(ctx, "github", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestResolveAuthorizationServer_CacheExpires(t *testing.T) {
	var fetches atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		writeJSON(w, http.StatusOK, pkgoauth.Metadata{
			Issuer:                srv.URL,
			AuthorizationEndpoint: srv.URL + "/authorize",
			TokenEndpoint:         srv.URL + "/token",
		})
	}))
	defer srv.Close()

	now := time.Now()
	r := NewMetadataResolver(srv.Client(), time.Minute)
	r.now = func() time.Time { return now }

	_, err := r.ResolveAuthorizationServer(context.Background(), "github", srv.URL)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = r.ResolveAuthorizationServer(context.Background(), "github", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestResolveAuthorizationServer_Invalid(t *testing.T) {
	tests := []struct {
		name string
		meta func(base string) pkgoauth.Metadata
	}{
		{
			name: "missing token endpoint",
			meta: func(base string) pkgoauth.Metadata {
				return pkgoauth.Metadata{AuthorizationEndpoint: base + "/authorize"}
			},
		},
		{
			name: "missing authorization endpoint",
			meta: func(base string) pkgoauth.Metadata {
				return pkgoauth.Metadata{TokenEndpoint: base + "/token"}
			},
		},
		{
			name: "no S256",
			meta: func(base string) pkgoauth.Metadata {
				return pkgoauth.Metadata{
					AuthorizationEndpoint:         base + "/authorize",
					TokenEndpoint:                 base + "/token",
					CodeChallengeMethodsSupported: []string{"plain"},
				}
			},
		},
		{
			name: "insecure token endpoint",
			meta: func(string) pkgoauth.Metadata {
				return pkgoauth.Metadata{
					AuthorizationEndpoint: "https://auth.example.com/authorize",
					TokenEndpoint:         "http://auth.example.com/token",
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srv *httptest.Server
			srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.meta(srv.URL))
			}))
			defer srv.Close()

			_, err := NewMetadataResolver(srv.Client(), 0).ResolveAuthorizationServer(context.Background(), "github", srv.URL)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindMetadataMissing))
		})
	}
}

func TestResolveProtectedResource_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name:    "not found",
			handler: http.NotFound,
		},
		{
			name: "not JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
		},
		{
			name: "no authorization servers",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{"resource": "x"})
			},
		},
		{
			name: "insecure authorization server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"resource":              "x",
					"authorization_servers": []string{"http://auth.example.com"},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewMetadataResolver(srv.Client(), 0).ResolveProtectedResource(context.Background(), "github", srv.URL+"/mcp", ResourceHint{})
			require.Error(t, err)
			assert.True(t, IsKind(err, KindNoAuthorizationServer))
			assert.Equal(t, "Could not find authorization server for this MCP server", UserMessage(err))
		})
	}
}

func TestResolveProtectedResource_UnusableHintedDocument(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantIssuer string
		wantErr    bool
	}{
		{
			name:       "realm falls back to well-known",
			source:     HintRealm,
			wantIssuer: "https://auth.example.com",
		},
		{
			name:    "resource_metadata is authoritative",
			source:  HintResourceMetadata,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var wellKnown atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("GET /hinted", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{"resource": "x"})
			})
			mux.HandleFunc("GET /.well-known/oauth-protected-resource/mcp", func(w http.ResponseWriter, r *http.Request) {
				wellKnown.Add(1)
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"resource":              "x",
					"authorization_servers": []string{"https://auth.example.com"},
				})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			hint := ResourceHint{URL: srv.URL + "/hinted", Source: tt.source}
			prm, err := NewMetadataResolver(srv.Client(), 0).ResolveProtectedResource(context.Background(), "github", srv.URL+"/mcp", hint)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindNoAuthorizationServer))
				assert.Zero(t, wellKnown.Load())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.wantIssuer}, prm.AuthorizationServers)
			assert.Equal(t, int32(1), wellKnown.Load())
		})
	}
}

func TestDiscover_UsesFirstAuthorizationServer(t *testing.T) {
	f := newFakeProvider(t)

	var second atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
		http.NotFound(w, r)
	}))
	defer other.Close()

	prmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"resource":              "x",
			"authorization_servers": []string{f.srv.URL, other.URL},
		})
	}))
	defer prmSrv.Close()

	disc, err := NewMetadataResolver(nil, 0).Discover(context.Background(), "github", prmSrv.URL+"/mcp", ResourceHint{})
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL, disc.Issuer)
	assert.Equal(t, f.srv.URL+"/token", disc.Metadata.TokenEndpoint)
	assert.Zero(t, second.Load())
}
