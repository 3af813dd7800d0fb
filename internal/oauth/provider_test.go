package oauth

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"mcpconnect/internal/store"
	pkgoauth "mcpconnect/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRecord(t *testing.T, st *store.Store, id string, fn func(rec *store.Record)) {
	t.Helper()
	_, err := st.Update(context.Background(), id, func(rec *store.Record) error {
		fn(rec)
		return nil
	})
	require.NoError(t, err)
}

func TestCredentials_NotRequired(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) { rec.OAuthStatus = pkgoauth.StatusNotRequired })

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	ready, ok := result.(Ready)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "github", ready.Credentials.ServerID)
	assert.Nil(t, ready.Credentials.Tokens)
}

func TestCredentials_ConnectedAndValid(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusConnected
		rec.ClientInfo = &pkgoauth.ClientInfo{ClientID: "client-1"}
		rec.AuthTokens = &pkgoauth.TokenBundle{AccessToken: "at", ExpiresAt: time.Now().Add(2 * time.Minute).Unix()}
	})

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	ready, ok := result.(Ready)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "at", ready.Credentials.Tokens.AccessToken)
	assert.Equal(t, "client-1", ready.Credentials.ClientInfo.ClientID)

	probes, _, tokenRequests := f.counts()
	assert.Zero(t, probes)
	assert.Zero(t, tokenRequests)
}

func TestCredentials_ExpiredTokensAreRefreshed(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusConnected
		rec.ClientInfo = &pkgoauth.ClientInfo{ClientID: "client-1", Issuer: f.srv.URL}
		rec.AuthTokens = &pkgoauth.TokenBundle{
			AccessToken:  "old",
			RefreshToken: "refresh-0",
			Scope:        "read",
			// Within the expiry buffer.
			ExpiresAt: time.Now().Add(30 * time.Second).Unix(),
		}
	})

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	ready, ok := result.(Ready)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "access-2", ready.Credentials.Tokens.AccessToken)

	form := f.tokenForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-0", form.Get("refresh_token"))

	rec := getRecord(t, st, "github")
	assert.Equal(t, pkgoauth.StatusConnected, rec.OAuthStatus)
	assert.Equal(t, "access-2", rec.AuthTokens.AccessToken)
}

func TestCredentials_ConcurrentCallersRefreshOnce(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	f.set(func(f *fakeProvider) {
		f.rotateRefresh = true
		f.onToken = func(*http.Request) { time.Sleep(50 * time.Millisecond) }
	})
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusConnected
		rec.ClientInfo = &pkgoauth.ClientInfo{ClientID: "client-1", Issuer: f.srv.URL}
		rec.AuthTokens = &pkgoauth.TokenBundle{
			AccessToken:  "old",
			RefreshToken: "refresh-0",
			ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
		}
	})

	const callers = 8
	results := make([]CredentialResult, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = m.Provider().Credentials(context.Background(), "github")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		ready, ok := results[i].(Ready)
		require.True(t, ok, "caller %d got %T", i, results[i])
		assert.Equal(t, "access-2", ready.Credentials.Tokens.AccessToken)
	}

	_, _, tokenRequests := f.counts()
	assert.Equal(t, 1, tokenRequests)

	rec := getRecord(t, st, "github")
	assert.Equal(t, pkgoauth.StatusConnected, rec.OAuthStatus)
	assert.Equal(t, "access-2", rec.AuthTokens.AccessToken)
}

func TestCredentials_FailedRefreshStartsAuthorization(t *testing.T) {
	f := newFakeProvider(t)
	f.set(func(f *fakeProvider) {
		f.tokenStatus = http.StatusBadRequest
		f.tokenBody = `{"error":"invalid_grant"}`
	})
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusExpired
		rec.ClientInfo = &pkgoauth.ClientInfo{ClientID: "client-1", Issuer: f.srv.URL}
		rec.AuthTokens = &pkgoauth.TokenBundle{AccessToken: "old", RefreshToken: "revoked", ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	})

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	required, ok := result.(AuthorizationRequired)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "github", required.ServerID)
	assert.Equal(t, pkgoauth.StatusRequired, required.Status)
	assert.NotEmpty(t, required.URL)

	rec := getRecord(t, st, "github")
	assert.Equal(t, pkgoauth.StatusRequired, rec.OAuthStatus)
	assert.Nil(t, rec.AuthTokens)
	assert.NotEmpty(t, rec.CodeVerifier)
}

func TestCredentials_ExpiredWithoutRefreshToken(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusConnected
		rec.AuthTokens = &pkgoauth.TokenBundle{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Second).Unix()}
	})

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	required, ok := result.(AuthorizationRequired)
	require.True(t, ok, "got %T", result)
	assert.NotEmpty(t, required.URL)

	_, _, tokenRequests := f.counts()
	assert.Zero(t, tokenRequests)
}

func TestCredentials_UnknownRunsDetection(t *testing.T) {
	f := newFakeProvider(t)
	f.set(func(f *fakeProvider) { f.probeStatus = http.StatusOK })
	m, st := newTestManager(t, f)

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	_, ok := result.(Ready)
	assert.True(t, ok, "got %T", result)
	assert.Equal(t, pkgoauth.StatusNotRequired, getRecord(t, st, "github").OAuthStatus)
}

func TestCredentials_ReportsAuthorizationFailure(t *testing.T) {
	f := newFakeProvider(t)
	f.set(func(f *fakeProvider) { f.emptyAuthServers = true })
	m, _ := newTestManager(t, f)

	result, err := m.Provider().Credentials(context.Background(), "github")
	require.NoError(t, err)

	required, ok := result.(AuthorizationRequired)
	require.True(t, ok, "got %T", result)
	assert.Empty(t, required.URL)
	assert.Equal(t, userMessages[KindNoAuthorizationServer], required.Reason)
}

func TestSaveTokens(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) { rec.OAuthStatus = pkgoauth.StatusRequired })

	err := m.Provider().SaveTokens(context.Background(), "github", &pkgoauth.TokenBundle{AccessToken: "external"})
	require.NoError(t, err)

	rec := getRecord(t, st, "github")
	assert.Equal(t, pkgoauth.StatusConnected, rec.OAuthStatus)
	assert.Equal(t, "external", rec.AuthTokens.AccessToken)

	// UNKNOWN -> CONNECTED is not an allowed edge.
	_, _, err = st.Register(context.Background(), store.Definition{ID: "other", URL: f.resourceURL()})
	require.NoError(t, err)
	err = m.Provider().SaveTokens(context.Background(), "other", &pkgoauth.TokenBundle{AccessToken: "x"})
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}

func TestCredentials_RejectedTokensAreRefreshed(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) {
		rec.OAuthStatus = pkgoauth.StatusConnected
		rec.ClientInfo = &pkgoauth.ClientInfo{ClientID: "client-1", Issuer: f.srv.URL}
		rec.AuthTokens = &pkgoauth.TokenBundle{
			AccessToken:  "revoked",
			RefreshToken: "refresh-0",
			ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		}
	})

	ctx := context.Background()
	require.NoError(t, m.Provider().Rejected(ctx, "github"))

	rec := getRecord(t, st, "github")
	assert.Equal(t, pkgoauth.StatusExpired, rec.OAuthStatus)
	assert.Equal(t, "refresh-0", rec.AuthTokens.RefreshToken)

	result, err := m.Provider().Credentials(ctx, "github")
	require.NoError(t, err)
	ready, ok := result.(Ready)
	require.True(t, ok, "got %T", result)
	assert.Equal(t, "access-2", ready.Credentials.Tokens.AccessToken)
}

func TestCredentials_RejectedIgnoresOtherStatuses(t *testing.T) {
	f := newFakeProvider(t)
	m, st := newTestManager(t, f)
	setRecord(t, st, "github", func(rec *store.Record) { rec.OAuthStatus = pkgoauth.StatusNotRequired })

	require.NoError(t, m.Provider().Rejected(context.Background(), "github"))
	assert.Equal(t, pkgoauth.StatusNotRequired, getRecord(t, st, "github").OAuthStatus)
}
