package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"avatar-pipeline/internal/execx"
)

// Prober measures the playable duration of an audio file. WAV and MP3 are
// decoded natively; anything else falls back to ffprobe.
type Prober struct {
	runner  execx.Runner
	ffprobe string
}

// NewProber builds a prober using the configured ffprobe executable.
func NewProber(runner execx.Runner, ffprobe string) *Prober {
	return &Prober{runner: runner, ffprobe: ffprobe}
}

// Duration returns the audio duration of the file at path.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wavDuration(path)
	case ".mp3":
		return mp3Duration(path)
	default:
		return p.ffprobeDuration(ctx, path)
	}
}

// wavDuration computes duration from the PCM data chunk. The container-level
// RIFF size includes header bytes and would inflate the result.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if err := decoder.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("decode wav %s: %w", path, err)
	}
	if decoder.AvgBytesPerSec == 0 {
		return 0, fmt.Errorf("decode wav %s: zero byte rate", path)
	}

	seconds := float64(decoder.PCMLen()) / float64(decoder.AvgBytesPerSec)
	return time.Duration(seconds * float64(time.Second)), nil
}

// mp3Duration derives duration from decoded stream length and sample rate.
func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("decode mp3 %s: %w", path, err)
	}

	// Decoded stream is 16-bit stereo, 4 bytes per frame.
	seconds := float64(decoder.Length()) / (4 * float64(decoder.SampleRate()))
	return time.Duration(seconds * float64(time.Second)), nil
}

// ffprobeDuration shells out to ffprobe for formats without a native decoder.
func (p *Prober) ffprobeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := execx.Command{
		Name: p.ffprobe,
		Args: []string{
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			path,
		},
	}

	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w (%s)", path, err, strings.TrimSpace(res.Stderr))
	}

	raw := strings.TrimSpace(res.Stdout)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q for %s", raw, path)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
