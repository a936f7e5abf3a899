package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"avatar-pipeline/internal/domain"
)

// envOverrides maps supported environment variables onto settings fields.
type envOverrides struct {
	Voice    string `env:"AVATAR_PIPELINE_VOICE"`
	CacheDir string `env:"AVATAR_PIPELINE_CACHE_DIR"`
	ReposDir string `env:"AVATAR_PIPELINE_REPOS_DIR"`
	Python   string `env:"AVATAR_PIPELINE_PYTHON"`
}

// ApplyEnv overlays environment variable overrides onto loaded settings.
func ApplyEnv(cfg domain.Settings) (domain.Settings, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return domain.Settings{}, fmt.Errorf("parse environment overrides: %w", err)
	}

	if overrides.Voice != "" {
		cfg.PiperVoice = overrides.Voice
	}
	if overrides.CacheDir != "" {
		cfg.CacheDir = overrides.CacheDir
	}
	if overrides.ReposDir != "" {
		cfg.ReposDir = overrides.ReposDir
	}
	if overrides.Python != "" {
		cfg.Python = overrides.Python
	}
	return cfg, nil
}
