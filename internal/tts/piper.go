package tts

import (
	"context"
	"fmt"
	"os/exec"

	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
)

// Piper synthesizes speech through the piper executable, reading text on
// stdin and resolving voice models through the shared cache.
type Piper struct {
	runner       execx.Runner
	bin          string
	defaultVoice string
	voices       *VoiceResolver
	lookPath     func(string) (string, error)
}

// NewPiper builds the piper engine from configured executable and cache.
func NewPiper(runner execx.Runner, bin, defaultVoice string, voices *VoiceResolver) *Piper {
	return &Piper{
		runner:       runner,
		bin:          bin,
		defaultVoice: defaultVoice,
		voices:       voices,
		lookPath:     exec.LookPath,
	}
}

// Name identifies the engine in the dispatcher.
func (p *Piper) Name() string {
	return "piper"
}

// Synthesize resolves the voice model, then pipes text through piper.
func (p *Piper) Synthesize(ctx context.Context, text, voice, outPath string) (execx.Log, error) {
	if _, err := p.lookPath(p.bin); err != nil {
		return execx.Log{}, &domain.DependencyError{
			Message: fmt.Sprintf("piper executable not found on PATH: %s", p.bin),
			Hint:    "run tts/setup_piper.sh to install the piper binary",
		}
	}

	if voice == "" {
		voice = p.defaultVoice
	}
	modelPath, err := p.voices.Resolve(ctx, voice)
	if err != nil {
		return execx.Log{}, fmt.Errorf("resolve piper voice %q: %w", voice, err)
	}

	cmd := execx.Command{
		Name:  p.bin,
		Args:  []string{"--model", modelPath, "--output_file", outPath},
		Stdin: text,
	}

	res, err := p.runner.Run(ctx, cmd)
	log := execx.LogFor(cmd, res)
	if err != nil {
		return log, fmt.Errorf("piper synthesis failed: %w", err)
	}
	return log, nil
}

// NewPiperForTests constructs the engine with an injectable lookPath.
func NewPiperForTests(runner execx.Runner, bin, defaultVoice string, voices *VoiceResolver, lookPath func(string) (string, error)) *Piper {
	return &Piper{runner: runner, bin: bin, defaultVoice: defaultVoice, voices: voices, lookPath: lookPath}
}
