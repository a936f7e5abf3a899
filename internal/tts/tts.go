package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
)

// Synthesizer converts text to a WAV file at outPath. Voice selects an
// engine-specific voice or model and may be empty for the engine default.
// The caller owns the produced file and is responsible for cleaning it up.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, voice, outPath string) (execx.Log, error)
}

// Dispatcher routes synthesis requests to a registered engine by name.
type Dispatcher struct {
	engines map[string]Synthesizer
	tempDir string
	stat    func(string) (os.FileInfo, error)
}

// NewDispatcher registers the given engines under their names.
func NewDispatcher(engines ...Synthesizer) *Dispatcher {
	byName := make(map[string]Synthesizer, len(engines))
	for _, engine := range engines {
		byName[engine.Name()] = engine
	}
	return &Dispatcher{
		engines: byName,
		tempDir: os.TempDir(),
		stat:    os.Stat,
	}
}

// Engines returns the registered engine names in stable order.
func (d *Dispatcher) Engines() []string {
	names := make([]string, 0, len(d.engines))
	for name := range d.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Synthesize produces a temporary WAV from text via the named engine.
// Unknown engine names are rejected; there is no silent fallback.
func (d *Dispatcher) Synthesize(ctx context.Context, engine, text, voice string) (domain.ResolvedAudio, execx.Log, error) {
	engine = strings.TrimSpace(engine)
	synth, ok := d.engines[engine]
	if !ok {
		return domain.ResolvedAudio{}, execx.Log{}, domain.NewUserInputError(
			"unsupported tts engine %q (valid: %s)", engine, strings.Join(d.Engines(), ", "))
	}

	if strings.TrimSpace(text) == "" {
		return domain.ResolvedAudio{}, execx.Log{}, domain.NewUserInputError("text to synthesize is empty")
	}

	outPath := filepath.Join(d.tempDir, fmt.Sprintf("avatar-tts-%s.wav", uuid.NewString()))
	log, err := synth.Synthesize(ctx, text, voice, outPath)
	if err != nil {
		return domain.ResolvedAudio{}, log, err
	}

	if _, err := d.stat(outPath); err != nil {
		return domain.ResolvedAudio{}, log, fmt.Errorf("%s completed but audio file is missing: %s", engine, outPath)
	}

	return domain.ResolvedAudio{
		Path:      outPath,
		Source:    domain.AudioSourceTTS,
		Temporary: true,
	}, log, nil
}

// NewDispatcherForTests constructs a dispatcher with injectable temp dir and stat.
func NewDispatcherForTests(tempDir string, stat func(string) (os.FileInfo, error), engines ...Synthesizer) *Dispatcher {
	d := NewDispatcher(engines...)
	if tempDir != "" {
		d.tempDir = tempDir
	}
	if stat != nil {
		d.stat = stat
	}
	return d
}
