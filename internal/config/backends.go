package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BackendOverrides replaces the ordered entrypoint candidate list for the
// named backends. Backends not listed keep their built-in candidates.
type BackendOverrides map[string][]string

// DefaultBackendOverridesPath returns backends.yaml next to the settings file.
func DefaultBackendOverridesPath() string {
	return filepath.Join(filepath.Dir(DefaultStorePath()), "backends.yaml")
}

// LoadBackendOverrides reads entrypoint overrides; a missing file is not an
// error, it simply means built-in candidates apply.
func LoadBackendOverrides(path string) (BackendOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var overrides BackendOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse backend overrides %s: %w", path, err)
	}
	return overrides, nil
}
