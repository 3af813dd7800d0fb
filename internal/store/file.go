package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mcpconnect/pkg/logging"

	"gopkg.in/yaml.v3"
)

// FileBackend stores one <id>.yaml file per record in a directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record behind.
type FileBackend struct {
	mu  sync.RWMutex
	dir string
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileBackend) Dir() string {
	return f.dir
}

func (f *FileBackend) Get(_ context.Context, id string) (*Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.load(f.pathFor(id), id)
}

func (f *FileBackend) Put(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	filePath := f.pathFor(rec.ID)
	tmp, err := os.CreateTemp(f.dir, ".tmp-"+sanitizeFilename(rec.ID)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", f.dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		return fmt.Errorf("failed to write file %s: %w", filePath, err)
	}

	logging.Debug("FileStore", "Saved record %s to %s", rec.ID, filePath)
	return nil
}

func (f *FileBackend) List(_ context.Context) ([]*Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files, err := filepath.Glob(filepath.Join(f.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob yaml files: %w", err)
	}

	out := make([]*Record, 0, len(files))
	for _, filePath := range files {
		name := strings.TrimSuffix(filepath.Base(filePath), ".yaml")
		rec, err := f.load(filePath, name)
		if err != nil {
			logging.Warn("FileStore", "Skipping unreadable record %s: %v", filePath, err)
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (f *FileBackend) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	filePath := f.pathFor(id)
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{ID: id}
		}
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}

	logging.Info("FileStore", "Deleted record %s from %s", id, filePath)
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) load(filePath, id string) (*Record, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	return &rec, nil
}

func (f *FileBackend) pathFor(id string) string {
	return filepath.Join(f.dir, sanitizeFilename(id)+".yaml")
}

// sanitizeFilename maps an id onto a safe file name. Valid server ids
// pass through unchanged.
func sanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '.', ' ':
			return '_'
		}
		return r
	}, name)

	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		sanitized = "unnamed"
	}
	return sanitized
}
