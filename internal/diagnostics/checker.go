package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"avatar-pipeline/internal/backend"
	"avatar-pipeline/internal/domain"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all dependency checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, registry *backend.Registry) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool(settings.FFmpeg, "install ffmpeg and ensure it is on PATH"),
		c.checkTool(settings.FFprobe, "install ffmpeg; ffprobe ships with it"),
		c.checkTool(settings.Python, "install python3 and ensure it is on PATH"),
		c.checkTTSEngine(settings),
		c.checkBackends(settings, registry),
		c.checkWritableDir("cache_dir", "Cache directory", settings.CacheDir),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is on PATH.
func (c *Checker) checkTool(name, hint string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found in PATH: %s", name),
			Hint:    hint,
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkTTSEngine validates the configured default TTS engine's dependency:
// the helper script for coqui, the binary for piper.
func (c *Checker) checkTTSEngine(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "tts_" + settings.DefaultTTS,
		Name: "TTS engine (" + settings.DefaultTTS + ")",
	}

	switch settings.DefaultTTS {
	case "coqui":
		if _, err := c.stat(settings.CoquiScript); err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Coqui helper script not found: %s", settings.CoquiScript)
			item.Hint = "run tts/setup_coqui.sh to install Coqui TTS and its helper script"
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Helper script found: %s", settings.CoquiScript)
	case "piper":
		path, err := c.lookPath(settings.PiperBin)
		if err != nil {
			item.Status = domain.DiagnosticStatusFail
			item.Message = fmt.Sprintf("Piper executable not found in PATH: %s", settings.PiperBin)
			item.Hint = "run tts/setup_piper.sh to install the piper binary"
			return item
		}
		item.Status = domain.DiagnosticStatusPass
		item.Message = fmt.Sprintf("Found at %s", path)
	default:
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Unknown default TTS engine: %s", settings.DefaultTTS)
		item.Hint = "set defaultTts to coqui or piper in settings.json"
	}
	return item
}

// checkBackends reports which backend checkouts are present under reposDir.
func (c *Checker) checkBackends(settings domain.Settings, registry *backend.Registry) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "backends",
		Name: "Backend checkouts",
	}

	found := 0
	missing := ""
	for _, name := range registry.Names() {
		desc, _ := registry.Get(name)
		if _, err := c.stat(filepath.Join(settings.ReposDir, desc.Dir)); err == nil {
			found++
			continue
		}
		if missing != "" {
			missing += ", "
		}
		missing += name
	}

	if found == 0 {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("No backend checkouts found under %s", settings.ReposDir)
		item.Hint = "run setup/<backend>.sh for at least one backend"
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("%d backend checkout(s) present under %s", found, settings.ReposDir)
	if missing != "" {
		item.Message += " (missing: " + missing + ")"
	}
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if dir == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = name + " is empty."
		item.Hint = "set a valid directory in settings.json"
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "choose a writable location or adjust filesystem permissions"
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "choose a writable directory"
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}
