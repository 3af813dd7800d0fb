package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mcpconnect/pkg/logging"
	"mcpconnect/pkg/oauth"

	"github.com/giantswarm/mcp-oauth/security"
)

// Definition describes a server to register.
type Definition struct {
	ID   string
	Name string
	URL  string

	// ClientInfo is an optional pre-provisioned OAuth client.
	ClientInfo *oauth.ClientInfo
}

// Store is the StatusStore: the single shared mutable resource of the
// OAuth flow. Every read-then-write on a record runs under a per-id lock,
// and at most one authorization attempt per id may be in flight.
type Store struct {
	backend Backend
	sealer  sealer
	now     func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptor encrypts secret fields at rest.
func WithEncryptor(enc *security.Encryptor) Option {
	return func(s *Store) { s.sealer = sealer{enc: enc} }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
		inflight: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemory creates an unencrypted in-memory Store.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

// Now returns the store's notion of the current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Get returns a decrypted copy of the record.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.backend.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.sealer.open(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Exists reports whether a record exists for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.backend.Get(ctx, id)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// List returns all records sorted by id.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	recs, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := s.sealer.open(rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Register creates a record in UNKNOWN or reconciles an existing one with
// def. A changed URL resets the record to UNKNOWN and drops its client
// info and tokens, since they belong to the old server. It reports whether
// anything was written.
func (s *Store) Register(ctx context.Context, def Definition) (*Record, bool, error) {
	if def.ID == "" || def.URL == "" {
		return nil, false, fmt.Errorf("server id and url are required")
	}

	unlock := s.lock(def.ID)
	defer unlock()

	now := s.now()
	rec, err := s.Get(ctx, def.ID)
	switch {
	case IsNotFound(err):
		rec = &Record{
			ID:          def.ID,
			Name:        def.Name,
			URL:         def.URL,
			OAuthStatus: oauth.StatusUnknown,
			ClientInfo:  def.ClientInfo.Clone(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.put(ctx, rec); err != nil {
			return nil, false, err
		}
		logging.Info("StatusStore", "Registered MCP server %s (%s)", def.ID, def.URL)
		return rec.Clone(), true, nil
	case err != nil:
		return nil, false, err
	}

	changed := false
	if rec.URL != def.URL {
		logging.Info("StatusStore", "URL of MCP server %s changed from %s to %s, resetting OAuth state", def.ID, rec.URL, def.URL)
		rec.URL = def.URL
		rec.OAuthStatus = oauth.StatusUnknown
		rec.ClientInfo = nil
		rec.AuthTokens = nil
		rec.LastError = ""
		rec.clearFlow()
		changed = true
	}
	if rec.Name != def.Name {
		rec.Name = def.Name
		changed = true
	}
	if def.ClientInfo != nil && (rec.ClientInfo == nil || rec.ClientInfo.ClientID != def.ClientInfo.ClientID) {
		rec.ClientInfo = def.ClientInfo.Clone()
		changed = true
	}
	if !changed {
		return rec, false, nil
	}

	rec.UpdatedAt = now
	if err := s.put(ctx, rec); err != nil {
		return nil, false, err
	}
	return rec.Clone(), true, nil
}

// Update applies fn to the record atomically with respect to other
// updates of the same id. When fn returns an error nothing is written.
func (s *Store) Update(ctx context.Context, id string, fn func(rec *Record) error) (*Record, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if !rec.OAuthStatus.IsValid() {
		return nil, fmt.Errorf("%w: refusing to persist status %q for %s", ErrInvalidTransition, rec.OAuthStatus, id)
	}
	rec.UpdatedAt = s.now()
	if err := s.put(ctx, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Transition moves the record into session.
func (s *Store) Transition(ctx context.Context, id string, session Session) (*Record, error) {
	return s.Update(ctx, id, func(rec *Record) error {
		return rec.Apply(session, s.now())
	})
}

// Delete removes a record. The OAuth flow never deletes records; this
// serves administrative removal of a server.
func (s *Store) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	return s.backend.Delete(ctx, id)
}

// TryBeginAuthorization marks an authorization attempt in flight for id.
// It returns ErrConflict when one already is. The returned release func
// must be called when the attempt's synchronous part is over.
func (s *Store) TryBeginAuthorization(id string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[id]; busy {
		return nil, fmt.Errorf("%w for %s", ErrConflict, id)
	}
	done := make(chan struct{})
	s.inflight[id] = done

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inflight, id)
			s.mu.Unlock()
			close(done)
		})
	}, nil
}

// BeginAuthorization is the blocking form of TryBeginAuthorization: it
// waits for the attempt in flight for id to finish and then marks its
// own. It fails only when ctx is done.
func (s *Store) BeginAuthorization(ctx context.Context, id string) (release func(), err error) {
	for {
		release, err := s.TryBeginAuthorization(id)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		if err := s.WaitAuthorization(ctx, id); err != nil {
			return nil, err
		}
	}
}

// WaitAuthorization blocks until no attempt is in flight for id.
func (s *Store) WaitAuthorization(ctx context.Context, id string) error {
	s.mu.Lock()
	done, busy := s.inflight[id]
	s.mu.Unlock()
	if !busy {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) put(ctx context.Context, rec *Record) error {
	sealed, err := s.sealer.seal(rec)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, sealed)
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
