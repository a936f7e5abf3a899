package config

import (
	"os"
	"path/filepath"

	"avatar-pipeline/internal/domain"
)

// DefaultCoquiModel mirrors the default of the bundled coqui helper script.
const DefaultCoquiModel = "tts_models/en/ljspeech/tacotron2-DDC"

// DefaultSettings returns baseline local configuration for first run.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	root := filepath.Join(homeDir, ".avatar-pipeline")
	return domain.Settings{
		ReposDir:    filepath.Join(root, "repos"),
		CacheDir:    filepath.Join(root, "cache"),
		OutputDir:   filepath.Join(root, "results"),
		Python:      "python3",
		FFmpeg:      "ffmpeg",
		FFprobe:     "ffprobe",
		PiperBin:    "piper",
		CoquiScript: filepath.Join(root, "repos", "common", "coqui_tts_say.py"),
		CoquiModel:  DefaultCoquiModel,
		DefaultTTS:  "coqui",
		PiperVoice:  "en_US-lessac-medium",
		FrameRate:   25,
	}
}
