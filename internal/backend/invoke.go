package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"avatar-pipeline/internal/config"
	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
)

// Invoker runs one backend entrypoint as a subprocess and resolves the
// produced artifact.
type Invoker struct {
	runner    execx.Runner
	python    string
	reposDir  string
	outputDir string
	overrides config.BackendOverrides
	tempDir   string
	stat      func(string) (os.FileInfo, error)
	readDir   func(string) ([]os.DirEntry, error)
	mkdirAll  func(string, os.FileMode) error
	remove    func(string) error
	newID     func() string
}

// NewInvoker builds the production invoker from settings.
func NewInvoker(runner execx.Runner, settings domain.Settings, overrides config.BackendOverrides) *Invoker {
	return &Invoker{
		runner:    runner,
		python:    settings.Python,
		reposDir:  settings.ReposDir,
		outputDir: settings.OutputDir,
		overrides: overrides,
		tempDir:   os.TempDir(),
		stat:      os.Stat,
		readDir:   os.ReadDir,
		mkdirAll:  os.MkdirAll,
		remove:    os.Remove,
		newID:     uuid.NewString,
	}
}

// Invoke selects the entrypoint, constructs the backend-specific command,
// runs it, and resolves the output artifact path. The temporary stage
// config, when one is written, is removed on every exit path.
func (v *Invoker) Invoke(ctx context.Context, desc *Descriptor, media domain.ResolvedMedia, audio domain.ResolvedAudio, checkpoint string) (domain.InferenceResult, execx.Log, error) {
	toolDir := filepath.Join(v.reposDir, desc.Dir)
	if _, err := v.stat(toolDir); err != nil {
		return domain.InferenceResult{}, execx.Log{}, &domain.DependencyError{
			Message: fmt.Sprintf("%s checkout not found at %s", desc.Name, toolDir),
			Hint:    desc.SetupHint,
		}
	}

	entrypoint, err := v.selectEntrypoint(desc, toolDir)
	if err != nil {
		return domain.InferenceResult{}, execx.Log{}, err
	}

	if err := v.mkdirAll(v.outputDir, 0o755); err != nil {
		return domain.InferenceResult{}, execx.Log{}, fmt.Errorf("create output directory %s: %w", v.outputDir, err)
	}

	id := v.newID()
	output := filepath.Join(v.outputDir, desc.Name+"-"+id+".mp4")
	if desc.OutputIsDir {
		output = filepath.Join(v.outputDir, desc.Name+"-"+id)
	}

	in := Invocation{
		Entrypoint: entrypoint,
		ToolDir:    toolDir,
		Audio:      audio.Path,
		Output:     output,
		Checkpoint: checkpoint,
	}
	switch media.Kind {
	case domain.MediaKindVideo:
		in.Video = media.Path
	default:
		in.Image = media.Path
	}
	if desc.AcceptsCheckpoint && in.Checkpoint == "" {
		in.Checkpoint = filepath.Join(toolDir, desc.DefaultCheckpoint)
	}

	if desc.StageConfig != nil {
		configPath, err := v.writeStageConfig(desc, id, &in)
		if err != nil {
			return domain.InferenceResult{}, execx.Log{}, err
		}
		defer func() {
			if err := v.remove(configPath); err != nil {
				log.Printf("warning: failed to remove stage config %s: %v", configPath, err)
			}
		}()
	}

	cmd := execx.Command{
		Name: v.python,
		Args: append([]string{entrypoint}, desc.Args(in)...),
		Dir:  toolDir,
	}

	res, runErr := v.runner.Run(ctx, cmd)
	cmdLog := execx.LogFor(cmd, res)
	if runErr != nil {
		return domain.InferenceResult{}, cmdLog, fmt.Errorf("%s inference failed: %w", desc.Name, runErr)
	}

	outputPath, err := v.resolveOutput(desc, output)
	if err != nil {
		return domain.InferenceResult{}, cmdLog, err
	}

	return domain.InferenceResult{
		OutputPath: outputPath,
		Backend:    desc.Name,
		ExitCode:   res.ExitCode,
	}, cmdLog, nil
}

// selectEntrypoint picks the first existing candidate script, honoring
// configured overrides over the built-in list.
func (v *Invoker) selectEntrypoint(desc *Descriptor, toolDir string) (string, error) {
	candidates := desc.Entrypoints
	if override, ok := v.overrides[desc.Name]; ok && len(override) > 0 {
		candidates = override
	}

	for _, candidate := range candidates {
		path := filepath.Join(toolDir, candidate)
		if _, err := v.stat(path); err == nil {
			return path, nil
		}
	}

	return "", &domain.DependencyError{
		Message: fmt.Sprintf("no entrypoint found for %s in %s (tried: %s)",
			desc.Name, toolDir, strings.Join(candidates, ", ")),
		Hint: desc.SetupHint,
	}
}

// writeStageConfig marshals the backend's stage config to a temporary YAML
// file and records its path on the invocation.
func (v *Invoker) writeStageConfig(desc *Descriptor, id string, in *Invocation) (string, error) {
	data, err := yaml.Marshal(desc.StageConfig(*in))
	if err != nil {
		return "", fmt.Errorf("marshal %s stage config: %w", desc.Name, err)
	}

	configPath := filepath.Join(v.tempDir, fmt.Sprintf("avatar-%s-%s.yaml", desc.Name, id))
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s stage config: %w", desc.Name, err)
	}

	in.ConfigPath = configPath
	return configPath, nil
}

// resolveOutput verifies the fixed output file, or enumerates a result
// directory and picks the newest video for backends that report that way.
// Backends drop logs and metadata next to the artifact, and some nest the
// video one directory deeper, so the scan filters by extension and descends
// a single level.
func (v *Invoker) resolveOutput(desc *Descriptor, output string) (string, error) {
	if !desc.OutputIsDir {
		if _, err := v.stat(output); err != nil {
			return "", fmt.Errorf("%s completed but output file is missing: %s", desc.Name, output)
		}
		return output, nil
	}

	entries, err := v.readDir(output)
	if err != nil {
		return "", fmt.Errorf("%s completed but result directory is unreadable: %s: %w", desc.Name, output, err)
	}

	var newest string
	var newestMod int64
	consider := func(dir string, entry os.DirEntry) {
		if !isVideoFile(entry.Name()) {
			return
		}
		info, err := entry.Info()
		if err != nil {
			return
		}
		if newest == "" || info.ModTime().UnixNano() > newestMod {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime().UnixNano()
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			subDir := filepath.Join(output, entry.Name())
			subEntries, err := v.readDir(subDir)
			if err != nil {
				continue
			}
			for _, sub := range subEntries {
				if sub.IsDir() {
					continue
				}
				consider(subDir, sub)
			}
			continue
		}
		consider(output, entry)
	}
	if newest == "" {
		return "", fmt.Errorf("%s completed but produced no video in %s", desc.Name, output)
	}
	return newest, nil
}

// isVideoFile matches the container formats the wrapped tools emit.
func isVideoFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return true
	}
	return false
}

// NewInvokerForTests constructs an invoker with injectable dependencies.
func NewInvokerForTests(
	runner execx.Runner,
	python string,
	reposDir string,
	outputDir string,
	overrides config.BackendOverrides,
	tempDir string,
	newID func() string,
) *Invoker {
	inv := NewInvoker(runner, domain.Settings{
		Python:    python,
		ReposDir:  reposDir,
		OutputDir: outputDir,
	}, overrides)
	if tempDir != "" {
		inv.tempDir = tempDir
	}
	if newID != nil {
		inv.newID = newID
	}
	return inv
}
