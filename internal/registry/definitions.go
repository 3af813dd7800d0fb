package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mcpconnect/internal/config"
	"mcpconnect/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DirName is the directory under the config path holding one YAML file
// per server definition.
const DirName = "servers"

// Dir returns the definitions directory for a config path.
func Dir(configPath string) string {
	return filepath.Join(configPath, DirName)
}

// LoadDir reads every *.yaml and *.yml file in dir. A missing directory
// yields no definitions. Files that fail to parse are skipped with a
// warning so one bad file does not hide the others. A definition without
// an id takes the file name.
func LoadDir(dir string) ([]config.ServerDefinition, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	defs := make([]config.ServerDefinition, 0, len(files))
	for _, path := range files {
		def, err := loadFile(path)
		if err != nil {
			logging.Warn("Registry", "Skipping %s: %v", path, err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func loadFile(path string) (config.ServerDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.ServerDefinition{}, err
	}

	var def config.ServerDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return config.ServerDefinition{}, fmt.Errorf("malformed definition: %w", err)
	}
	if def.ID == "" {
		base := filepath.Base(path)
		def.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

// Save writes def to <dir>/<id>.yaml, creating dir if needed.
func Save(dir string, def config.ServerDefinition) (string, error) {
	if err := config.ValidateServerDefinition(def); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("failed to encode definition %s: %w", def.ID, err)
	}

	// Definitions may hold a client secret.
	path := filepath.Join(dir, def.ID+".yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Info("Registry", "Saved server definition %s to %s", def.ID, path)
	return path, nil
}

// ErrDefinitionNotFound is returned by Remove when no file exists for an id.
var ErrDefinitionNotFound = errors.New("server definition not found")

// Remove deletes the definition file for id.
func Remove(dir, id string) error {
	if err := config.ValidateServerID(id); err != nil {
		return err
	}

	removed := false
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, id+ext)
		err := os.Remove(path)
		switch {
		case err == nil:
			removed = true
			logging.Info("Registry", "Removed server definition %s", path)
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return nil
}
