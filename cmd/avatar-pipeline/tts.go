package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
	"avatar-pipeline/internal/tts"
)

// audioPlayers are tried in order when --play is requested.
var audioPlayers = [][]string{
	{"aplay"},
	{"afplay"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error"},
}

// newTTSCmd is the standalone synthesis wrapper: --out keeps the file at a
// chosen location, --play plays it back; with --play alone the temporary
// file is deleted after playback.
func newTTSCmd(settings domain.Settings, stdout io.Writer) *cobra.Command {
	var (
		text   string
		engine string
		voice  string
		out    string
		play   bool
	)

	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Synthesize speech from text without running a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return domain.NewUserInputError("--text is required")
			}

			runner := &execx.ExecRunner{}
			voices := tts.NewVoiceResolver(filepath.Join(settings.CacheDir, "voices"))
			dispatcher := tts.NewDispatcher(
				tts.NewCoqui(runner, settings.Python, settings.CoquiScript, settings.CoquiModel),
				tts.NewPiper(runner, settings.PiperBin, settings.PiperVoice, voices),
			)

			audio, _, err := dispatcher.Synthesize(cmd.Context(), engine, text, voice)
			if err != nil {
				return err
			}

			path := audio.Path
			if out != "" {
				if err := moveFile(audio.Path, out); err != nil {
					return fmt.Errorf("move synthesized audio to %s: %w", out, err)
				}
				path = out
			}

			if play {
				if err := playAudio(cmd.Context(), runner, path); err != nil {
					return err
				}
			}

			if play && out == "" {
				if err := os.Remove(path); err != nil {
					log.Printf("warning: failed to remove temporary audio %s: %v", path, err)
				}
				return nil
			}

			fmt.Fprintln(stdout, path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&text, "text", "", "text to synthesize (required)")
	flags.StringVar(&engine, "tts", settings.DefaultTTS, "TTS engine: coqui or piper")
	flags.StringVar(&voice, "voice", "", "TTS voice or model override")
	flags.StringVar(&out, "out", "", "keep the audio at this path")
	flags.BoolVar(&play, "play", false, "play the audio after synthesis")

	return cmd
}

// playAudio runs the first available player on the file.
func playAudio(ctx context.Context, runner execx.Runner, path string) error {
	for _, player := range audioPlayers {
		if _, err := exec.LookPath(player[0]); err != nil {
			continue
		}
		cmd := execx.Command{
			Name: player[0],
			Args: append(append([]string{}, player[1:]...), path),
		}
		res, err := runner.Run(ctx, cmd)
		if err != nil {
			return fmt.Errorf("playback with %s failed: %w (%s)", player[0], err, res.Stderr)
		}
		return nil
	}

	return &domain.DependencyError{
		Message: "no audio player found on PATH",
		Hint:    "install aplay, afplay, or ffplay, or rerun with --out to keep the file",
	}
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
