package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the settings file read when no path is given
const DefaultPath = "/etc/basecamp/basecamp.yaml"

// EnvPath overrides DefaultPath
const EnvPath = "BASECAMP_CONFIG"

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// ResolvePath returns path, or the BASECAMP_CONFIG value, or DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads settings from path. A missing file yields the defaults; keys
// absent from the file keep their default values.
func Load(path string) (*Settings, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	settings := NewSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if settings.Version != 1 {
		return nil, fmt.Errorf("unsupported settings version: %d (expected 1)", settings.Version)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}

	return settings, nil
}

// Save writes the settings to path atomically.
func (s *Settings) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	header := []byte(`# basecamp daemon settings
#
# Network credentials are not stored here; they live in the configuration
# store below config_dir and are set through the configuration UI.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary settings file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save settings file: %w", err)
	}

	return nil
}
