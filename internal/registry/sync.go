package registry

import (
	"context"
	"fmt"
	"sync"

	"mcpconnect/internal/config"
	"mcpconnect/internal/store"
	"mcpconnect/pkg/logging"
	"mcpconnect/pkg/oauth"
)

// SyncResult counts what a Sync did.
type SyncResult struct {
	Created   int
	Updated   int
	Unchanged int
	Invalid   int
}

func (r SyncResult) String() string {
	return fmt.Sprintf("%d created, %d updated, %d unchanged, %d invalid", r.Created, r.Updated, r.Unchanged, r.Invalid)
}

// Syncer registers server definitions from config.yaml and the servers
// directory in the store. Definitions from the directory win over seeds
// with the same id. Records whose definition disappears are kept; removing
// a server is an explicit administrative action.
type Syncer struct {
	store *store.Store
	dir   string
	seeds []config.ServerDefinition

	mu sync.Mutex
}

// NewSyncer creates a Syncer. dir may be empty to use seeds only.
func NewSyncer(s *store.Store, dir string, seeds []config.ServerDefinition) *Syncer {
	return &Syncer{store: s, dir: dir, seeds: seeds}
}

// Sync loads all definitions and registers them.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.definitions()
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, def := range defs {
		if err := config.ValidateServerDefinition(def); err != nil {
			logging.Warn("Registry", "Ignoring invalid server definition %q: %v", def.ID, err)
			result.Invalid++
			continue
		}

		existed, err := s.store.Exists(ctx, def.ID)
		if err != nil {
			return result, err
		}
		_, changed, err := s.store.Register(ctx, ToStoreDefinition(def))
		if err != nil {
			return result, fmt.Errorf("failed to register %s: %w", def.ID, err)
		}
		switch {
		case !existed:
			result.Created++
		case changed:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	logging.Debug("Registry", "Synced server definitions: %s", result)
	return result, nil
}

func (s *Syncer) definitions() ([]config.ServerDefinition, error) {
	byID := make(map[string]int)
	var defs []config.ServerDefinition
	add := func(def config.ServerDefinition) {
		if i, ok := byID[def.ID]; ok {
			defs[i] = def
			return
		}
		byID[def.ID] = len(defs)
		defs = append(defs, def)
	}

	for _, def := range s.seeds {
		add(def)
	}
	if s.dir != "" {
		fromDir, err := LoadDir(s.dir)
		if err != nil {
			return nil, err
		}
		for _, def := range fromDir {
			add(def)
		}
	}
	return defs, nil
}

// ToStoreDefinition converts a configured definition. A configured client
// id becomes pre-provisioned client info.
func ToStoreDefinition(def config.ServerDefinition) store.Definition {
	out := store.Definition{ID: def.ID, Name: def.Name, URL: def.URL}
	if def.ClientID != "" {
		out.ClientInfo = &oauth.ClientInfo{
			ClientID:                def.ClientID,
			ClientSecret:            def.ClientSecret,
			TokenEndpointAuthMethod: def.TokenEndpointAuthMethod,
		}
	}
	return out
}
