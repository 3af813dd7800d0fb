package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mcpconnect/pkg/logging"
	pkgoauth "mcpconnect/pkg/oauth"
)

// DefaultMetadataCacheTTL is how long authorization server metadata is
// reused before it is fetched again.
const DefaultMetadataCacheTTL = 30 * time.Minute

var errNoAuthorizationServers = errors.New("protected resource metadata lists no authorization servers")

// metadataCacheEntry holds cached metadata with its fetch time.
type metadataCacheEntry struct {
	metadata  *pkgoauth.Metadata
	fetchedAt time.Time
}

// Discovery is the result of both discovery steps.
type Discovery struct {
	Resource *pkgoauth.ProtectedResourceMetadata

	// Issuer is the authorization server identifier taken from the
	// protected resource metadata.
	Issuer   string
	Metadata *pkgoauth.Metadata
}

// MetadataResolver discovers protected resource metadata (RFC 9728) and
// authorization server metadata (RFC 8414 / OpenID Connect Discovery).
type MetadataResolver struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*metadataCacheEntry

	// group deduplicates concurrent fetches for the same issuer
	group singleflight.Group
}

// NewMetadataResolver creates a resolver. A ttl <= 0 uses the default.
func NewMetadataResolver(client *http.Client, ttl time.Duration) *MetadataResolver {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = DefaultMetadataCacheTTL
	}
	return &MetadataResolver{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]*metadataCacheEntry),
	}
}

// ResourceHint is where a challenge pointed for the resource's metadata.
// A zero ResourceHint means no hint.
type ResourceHint struct {
	URL string

	// Source is HintResourceMetadata or HintRealm. A realm only guesses at
	// the metadata location, so an unusable document behind it does not end
	// discovery.
	Source string
}

// Discover runs both steps. Only the first authorization server listed by
// the resource is considered.
func (r *MetadataResolver) Discover(ctx context.Context, serverID, resourceURL string, hint ResourceHint) (*Discovery, error) {
	prm, err := r.ResolveProtectedResource(ctx, serverID, resourceURL, hint)
	if err != nil {
		return nil, err
	}

	issuer := prm.AuthorizationServers[0]
	if len(prm.AuthorizationServers) > 1 {
		logging.Debug("MetadataResolver", "Server %s lists %d authorization servers, using %s", serverID, len(prm.AuthorizationServers), issuer)
	}

	meta, err := r.ResolveAuthorizationServer(ctx, serverID, issuer)
	if err != nil {
		return nil, err
	}
	return &Discovery{Resource: prm, Issuer: issuer, Metadata: meta}, nil
}

// ResolveProtectedResource fetches the resource's metadata document. The
// hint is tried first, then the path-suffixed and root well-known URIs.
// The first document that parses is authoritative, except one reached
// through a realm hint: when that lists no usable authorization server the
// well-known URIs are still tried.
func (r *MetadataResolver) ResolveProtectedResource(ctx context.Context, serverID, resourceURL string, hint ResourceHint) (*pkgoauth.ProtectedResourceMetadata, error) {
	const op = "resolve protected resource"

	candidates, err := protectedResourceURIs(resourceURL, hint.URL)
	if err != nil {
		return nil, newFlowError(KindNoAuthorizationServer, op, serverID, err)
	}

	var lastErr error
	for _, uri := range candidates {
		var prm pkgoauth.ProtectedResourceMetadata
		if err := getJSON(ctx, r.client, uri, &prm); err != nil {
			logging.Debug("MetadataResolver", "No protected resource metadata at %s: %v", uri, err)
			lastErr = err
			continue
		}

		if err := checkAuthorizationServers(&prm); err != nil {
			if hint.Source == HintRealm && uri == hint.URL {
				logging.Debug("MetadataResolver", "Realm %s gave no usable metadata for %s: %v", uri, serverID, err)
				lastErr = err
				continue
			}
			return nil, newFlowError(KindNoAuthorizationServer, op, serverID, err)
		}

		logging.Debug("MetadataResolver", "Discovered protected resource metadata for %s at %s", serverID, uri)
		return &prm, nil
	}

	return nil, newFlowError(KindNoAuthorizationServer, op, serverID,
		fmt.Errorf("no protected resource metadata found (last error: %w)", lastErr))
}

func checkAuthorizationServers(prm *pkgoauth.ProtectedResourceMetadata) error {
	if len(prm.AuthorizationServers) == 0 {
		return errNoAuthorizationServers
	}
	return validateEndpoint("authorization_servers[0]", prm.AuthorizationServers[0])
}

// ResolveAuthorizationServer returns the metadata of issuer, from cache
// when fresh.
func (r *MetadataResolver) ResolveAuthorizationServer(ctx context.Context, serverID, issuer string) (*pkgoauth.Metadata, error) {
	if meta := r.cached(issuer); meta != nil {
		return meta, nil
	}

	result, err, _ := r.group.Do(issuer, func() (interface{}, error) {
		if meta := r.cached(issuer); meta != nil {
			return meta, nil
		}
		return r.fetchAuthorizationServer(ctx, issuer)
	})
	if err != nil {
		return nil, newFlowError(KindMetadataMissing, "resolve authorization server", serverID, err)
	}
	return result.(*pkgoauth.Metadata), nil
}

// Invalidate drops cached metadata for issuer.
func (r *MetadataResolver) Invalidate(issuer string) {
	r.mu.Lock()
	delete(r.cache, issuer)
	r.mu.Unlock()
}

func (r *MetadataResolver) cached(issuer string) *pkgoauth.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[issuer]
	if !ok || r.now().Sub(entry.fetchedAt) >= r.ttl {
		return nil
	}
	return entry.metadata
}

func (r *MetadataResolver) fetchAuthorizationServer(ctx context.Context, issuer string) (*pkgoauth.Metadata, error) {
	endpoints, err := authorizationServerMetadataURIs(issuer)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, endpoint := range endpoints {
		var meta pkgoauth.Metadata
		if err := getJSON(ctx, r.client, endpoint, &meta); err != nil {
			lastErr = err
			continue
		}
		if err := validateAuthorizationServerMetadata(&meta); err != nil {
			logging.Warn("MetadataResolver", "Invalid metadata from %s: %v", endpoint, err)
			lastErr = err
			continue
		}
		if meta.Issuer == "" {
			meta.Issuer = issuer
		}

		r.mu.Lock()
		r.cache[issuer] = &metadataCacheEntry{metadata: &meta, fetchedAt: r.now()}
		r.mu.Unlock()

		logging.Debug("MetadataResolver", "Fetched metadata for issuer=%s (auth=%s, token=%s, registration=%s)",
			issuer, meta.AuthorizationEndpoint, meta.TokenEndpoint, meta.RegistrationEndpoint)
		return &meta, nil
	}

	return nil, fmt.Errorf("no valid authorization server metadata for %s (last error: %w)", issuer, lastErr)
}

func validateAuthorizationServerMetadata(meta *pkgoauth.Metadata) error {
	if err := validateEndpoint("authorization_endpoint", meta.AuthorizationEndpoint); err != nil {
		return err
	}
	if err := validateEndpoint("token_endpoint", meta.TokenEndpoint); err != nil {
		return err
	}
	if meta.RegistrationEndpoint != "" {
		if err := validateEndpoint("registration_endpoint", meta.RegistrationEndpoint); err != nil {
			return err
		}
	}
	if !meta.SupportsPKCE() {
		return fmt.Errorf("authorization server does not support PKCE S256")
	}
	return nil
}

// protectedResourceURIs lists the documents to try for a resource, hint
// first (RFC 9728 §3).
func protectedResourceURIs(resourceURL, hint string) ([]string, error) {
	parsed, err := url.Parse(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resource URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("resource URL must include scheme and host: %s", resourceURL)
	}

	var uris []string
	if hint != "" {
		if err := validateEndpoint("resource_metadata", hint); err != nil {
			logging.Warn("MetadataResolver", "Ignoring discovery hint: %v", err)
		} else {
			uris = append(uris, hint)
		}
	}

	base := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		uris = append(uris, fmt.Sprintf("%s/.well-known/oauth-protected-resource/%s", base, path))
	}
	uris = append(uris, base+"/.well-known/oauth-protected-resource")
	return uris, nil
}

// authorizationServerMetadataURIs lists the discovery endpoints for an
// issuer in priority order (RFC 8414 §3, OpenID Connect Discovery §4).
func authorizationServerMetadataURIs(issuer string) ([]string, error) {
	if err := validateEndpoint("issuer", issuer); err != nil {
		return nil, err
	}
	parsed, _ := url.Parse(issuer)
	base := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return []string{
			base + "/.well-known/oauth-authorization-server",
			base + "/.well-known/openid-configuration",
		}, nil
	}
	return []string{
		fmt.Sprintf("%s/.well-known/oauth-authorization-server/%s", base, path),
		fmt.Sprintf("%s/.well-known/openid-configuration/%s", base, path),
		fmt.Sprintf("%s/%s/.well-known/openid-configuration", base, path),
	}, nil
}
