package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"avatar-pipeline/internal/domain"
)

// Store defines persistence operations for pipeline settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// DefaultStorePath returns the settings location under the user home.
func DefaultStorePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".avatar-pipeline", "settings.json")
}

// Load reads settings from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultSettings(), nil
		}

		return domain.Settings{}, err
	}

	var cfg domain.Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}

	return normalize(cfg), nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o644)
}

// normalize fills gaps in a partially written settings file with defaults.
func normalize(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	if cfg.ReposDir == "" {
		cfg.ReposDir = defaults.ReposDir
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = defaults.CacheDir
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	if cfg.Python == "" {
		cfg.Python = defaults.Python
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = defaults.FFmpeg
	}
	if cfg.FFprobe == "" {
		cfg.FFprobe = defaults.FFprobe
	}
	if cfg.PiperBin == "" {
		cfg.PiperBin = defaults.PiperBin
	}
	if cfg.CoquiScript == "" {
		cfg.CoquiScript = defaults.CoquiScript
	}
	if cfg.CoquiModel == "" {
		cfg.CoquiModel = defaults.CoquiModel
	}
	if cfg.DefaultTTS == "" {
		cfg.DefaultTTS = defaults.DefaultTTS
	}
	if cfg.PiperVoice == "" {
		cfg.PiperVoice = defaults.PiperVoice
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = defaults.FrameRate
	}
	return cfg
}
