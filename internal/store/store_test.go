package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mcpconnect/pkg/oauth"

	"github.com/giantswarm/mcp-oauth/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(NewMemoryBackend(), opts...)
}

func TestRegister_CreatesUnknownRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, created, err := s.Register(ctx, Definition{ID: "gh", Name: "GitHub", URL: "https://mcp.example.com"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, oauth.StatusUnknown, rec.OAuthStatus)
	assert.Equal(t, testNow, rec.CreatedAt)

	exists, err := s.Exists(ctx, "gh")
	require.NoError(t, err)
	assert.True(t, exists)

	_, changed, err := s.Register(ctx, Definition{ID: "gh", Name: "GitHub", URL: "https://mcp.example.com"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRegister_URLChangeResetsState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, err := s.Register(ctx, Definition{ID: "gh", URL: "https://old.example.com"})
	require.NoError(t, err)
	_, err = s.Update(ctx, "gh", func(rec *Record) error {
		rec.ClientInfo = &oauth.ClientInfo{ClientID: "dyn", Issuer: "https://as.old.example.com"}
		if err := rec.Apply(Required{}, testNow); err != nil {
			return err
		}
		return rec.Apply(Connected{Tokens: validTokens()}, testNow)
	})
	require.NoError(t, err)

	rec, changed, err := s.Register(ctx, Definition{ID: "gh", URL: "https://new.example.com"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, oauth.StatusUnknown, rec.OAuthStatus)
	assert.Nil(t, rec.ClientInfo)
	assert.Nil(t, rec.AuthTokens)
}

func TestRegister_PreProvisionedClient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, _, err := s.Register(ctx, Definition{
		ID:         "gh",
		URL:        "https://mcp.example.com",
		ClientInfo: &oauth.ClientInfo{ClientID: "static", ClientSecret: "shh"},
	})
	require.NoError(t, err)
	require.NotNil(t, rec.ClientInfo)
	assert.Equal(t, "static", rec.ClientInfo.ClientID)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, IsNotFound(err))

	_, err = s.Transition(context.Background(), "missing", Required{})
	assert.True(t, IsNotFound(err))
}

func TestUpdate_ErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.Register(ctx, Definition{ID: "gh", URL: "https://mcp.example.com"})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Update(ctx, "gh", func(rec *Record) error {
		rec.Name = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := s.Get(ctx, "gh")
	require.NoError(t, err)
	assert.Empty(t, rec.Name)
}

func TestUpdate_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.Register(ctx, Definition{ID: "gh", URL: "https://mcp.example.com"})
	require.NoError(t, err)

	_, err = s.Update(ctx, "gh", func(rec *Record) error {
		rec.OAuthStatus = "PENDING"
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	rec, err := s.Get(ctx, "gh")
	require.NoError(t, err)
	assert.Equal(t, oauth.StatusUnknown, rec.OAuthStatus)
}

func TestUpdate_SerializesPerID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, err := s.Register(ctx, Definition{ID: "gh", URL: "https://mcp.example.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "gh", func(rec *Record) error {
				rec.Name += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, "gh")
	require.NoError(t, err)
	assert.Len(t, rec.Name, 50)
}

func TestTryBeginAuthorization_Conflict(t *testing.T) {
	s := newTestStore(t)

	release, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)

	_, err = s.TryBeginAuthorization("gh")
	assert.ErrorIs(t, err, ErrConflict)

	other, err := s.TryBeginAuthorization("other")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)
	again()
}

func TestTryBeginAuthorization_OneWinner(t *testing.T) {
	s := newTestStore(t)

	var winners int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.TryBeginAuthorization("gh"); err == nil {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestWaitAuthorization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WaitAuthorization(ctx, "gh"))

	release, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.WaitAuthorization(ctx, "gh") }()

	select {
	case <-done:
		t.Fatal("WaitAuthorization returned while an attempt was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitAuthorization did not return after release")
	}

	release2, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)
	defer release2()
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.WaitAuthorization(cctx, "gh"), context.Canceled)
}

func TestBeginAuthorization_WaitsForRelease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		release, err := s.BeginAuthorization(ctx, "gh")
		if err == nil {
			acquired <- release
		}
	}()

	select {
	case <-acquired:
		t.Fatal("BeginAuthorization acquired while an attempt was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	first()
	var second func()
	select {
	case second = <-acquired:
	case <-time.After(time.Second):
		t.Fatal("BeginAuthorization did not acquire after release")
	}

	// The second holder now excludes others.
	_, err = s.TryBeginAuthorization("gh")
	assert.ErrorIs(t, err, ErrConflict)
	second()

	held, err := s.TryBeginAuthorization("gh")
	require.NoError(t, err)
	defer held()
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.BeginAuthorization(cctx, "gh")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncryptionAtRest(t *testing.T) {
	ctx := context.Background()
	key := []byte(strings.Repeat("k", 32))
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	backend := NewMemoryBackend()
	s := New(backend, WithEncryptor(enc), WithClock(func() time.Time { return testNow }))

	_, _, err = s.Register(ctx, Definition{
		ID:         "gh",
		URL:        "https://mcp.example.com",
		ClientInfo: &oauth.ClientInfo{ClientID: "c", ClientSecret: "client-secret"},
	})
	require.NoError(t, err)
	_, err = s.Transition(ctx, "gh", AwaitingCallback{Verifier: "the-verifier", State: "the-state"})
	require.NoError(t, err)

	raw, err := backend.Get(ctx, "gh")
	require.NoError(t, err)
	assert.True(t, raw.Encrypted)
	assert.NotEqual(t, "the-verifier", raw.CodeVerifier)
	assert.NotEqual(t, "the-state", raw.OAuthState)
	assert.NotEqual(t, "client-secret", raw.ClientInfo.ClientSecret)
	assert.Equal(t, "c", raw.ClientInfo.ClientID)

	rec, err := s.Get(ctx, "gh")
	require.NoError(t, err)
	assert.False(t, rec.Encrypted)
	assert.Equal(t, "the-verifier", rec.CodeVerifier)
	assert.Equal(t, "the-state", rec.OAuthState)
	assert.Equal(t, "client-secret", rec.ClientInfo.ClientSecret)

	plain := New(backend)
	_, err = plain.Get(ctx, "gh")
	assert.ErrorContains(t, err, "no encryption key")
}
