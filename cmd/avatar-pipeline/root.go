package main

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"avatar-pipeline/internal/backend"
	"avatar-pipeline/internal/config"
	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/pipeline"
)

var (
	// version is overridden at linking time
	version = "dev"
)

// newRootCmd builds the command tree: one subcommand per registered backend
// plus the standalone tts and doctor commands. Unknown backends and unknown
// flags are usage errors (exit 2) listing the valid alternatives.
func newRootCmd(settings domain.Settings, overrides config.BackendOverrides, stdout io.Writer) *cobra.Command {
	registry := backend.NewRegistry()
	pipe := pipeline.New(settings, overrides)

	root := &cobra.Command{
		Use:           "avatar-pipeline <backend> [flags]",
		Short:         "Drive talking-head animation backends through one standardized pipeline",
		Long:          "Orchestrates text-to-speech, media preparation, and inference across\ninterchangeable talking-head backends with a single CLI surface.\nThe produced artifact path is printed as the last line on stdout.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		// Unknown flags must not mask the unknown-backend message when the
		// first argument is not a registered subcommand.
		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return domain.NewUsageError("backend name is required (valid: %s)",
					strings.Join(registry.Names(), ", "))
			}
			return domain.NewUsageError("unknown backend %q (valid: %s)",
				args[0], strings.Join(registry.Names(), ", "))
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return domain.NewUsageError("%v", err)
	})

	for _, name := range registry.Names() {
		desc, _ := registry.Get(name)
		root.AddCommand(newBackendCmd(pipe, desc, settings.DefaultTTS, stdout))
	}
	root.AddCommand(newTTSCmd(settings, stdout))
	root.AddCommand(newDoctorCmd(settings, registry, stdout))

	return root
}

// newBackendCmd exposes the standardized inference surface for one backend.
func newBackendCmd(pipe *pipeline.Pipeline, desc *backend.Descriptor, defaultTTS string, stdout io.Writer) *cobra.Command {
	var (
		image      string
		audio      string
		text       string
		ttsEngine  string
		voice      string
		checkpoint string
		keepAudio  bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   desc.Name,
		Short: "Animate a still image with the " + desc.Name + " backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := pipe.Run(cmd.Context(), domain.PipelineRequest{
				Backend:    desc.Name,
				ImagePath:  image,
				AudioPath:  audio,
				Text:       text,
				TTSEngine:  ttsEngine,
				Voice:      voice,
				Checkpoint: checkpoint,
				KeepAudio:  keepAudio,
				Timeout:    timeout,
			})
			if err != nil {
				return err
			}

			log.Printf("%s completed (audio: %s, media: %s)",
				desc.Name, result.Audio.Source, result.Media.Kind)
			if keepAudio && result.Audio.Source == domain.AudioSourceTTS {
				log.Printf("kept synthesized audio at %s", result.Audio.Path)
			}

			// Artifact path is the last line on stdout by contract.
			fmt.Fprintln(stdout, result.Output.OutputPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&image, "image", "", "source still image (required)")
	flags.StringVar(&audio, "audio", "", "source audio; takes precedence over --text")
	flags.StringVar(&text, "text", "", "text to synthesize when --audio is absent")
	flags.StringVar(&ttsEngine, "tts", defaultTTS, "TTS engine: coqui or piper")
	flags.StringVar(&voice, "voice", "", "TTS voice or model override")
	flags.BoolVar(&keepAudio, "keep-audio", false, "keep TTS-generated audio instead of deleting it")
	flags.DurationVar(&timeout, "timeout", 0, "per-subprocess timeout, e.g. 10m (0 = none)")
	if desc.AcceptsCheckpoint {
		flags.StringVar(&checkpoint, "checkpoint", "", "model checkpoint override")
	}

	return cmd
}
