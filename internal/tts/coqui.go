package tts

import (
	"context"
	"fmt"
	"os"

	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
)

// Coqui synthesizes speech through the bundled coqui helper script,
// invoked as: python coqui_tts_say.py <text> <output_path> [model_name].
type Coqui struct {
	runner execx.Runner
	python string
	script string
	model  string
	stat   func(string) (os.FileInfo, error)
}

// NewCoqui builds the coqui engine from configured executable paths.
func NewCoqui(runner execx.Runner, python, script, model string) *Coqui {
	return &Coqui{
		runner: runner,
		python: python,
		script: script,
		model:  model,
		stat:   os.Stat,
	}
}

// Name identifies the engine in the dispatcher.
func (c *Coqui) Name() string {
	return "coqui"
}

// Synthesize runs the helper script. Voice overrides the model name.
func (c *Coqui) Synthesize(ctx context.Context, text, voice, outPath string) (execx.Log, error) {
	if _, err := c.stat(c.script); err != nil {
		return execx.Log{}, &domain.DependencyError{
			Message: fmt.Sprintf("coqui helper script not found: %s", c.script),
			Hint:    "run tts/setup_coqui.sh to install Coqui TTS and its helper script",
		}
	}

	model := c.model
	if voice != "" {
		model = voice
	}

	cmd := execx.Command{
		Name: c.python,
		Args: []string{c.script, text, outPath, model},
	}

	res, err := c.runner.Run(ctx, cmd)
	log := execx.LogFor(cmd, res)
	if err != nil {
		return log, fmt.Errorf("coqui synthesis failed: %w", err)
	}
	return log, nil
}

// NewCoquiForTests constructs the engine with an injectable stat.
func NewCoquiForTests(runner execx.Runner, python, script, model string, stat func(string) (os.FileInfo, error)) *Coqui {
	return &Coqui{runner: runner, python: python, script: script, model: model, stat: stat}
}
