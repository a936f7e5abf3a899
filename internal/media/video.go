package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"avatar-pipeline/internal/execx"
)

// Converter turns a still image into a fixed-length silent video for
// backends that accept only video input.
type Converter struct {
	runner    execx.Runner
	ffmpeg    string
	frameRate int
	stat      func(string) (os.FileInfo, error)
}

// NewConverter builds a converter using the configured ffmpeg executable.
func NewConverter(runner execx.Runner, ffmpeg string, frameRate int) *Converter {
	return &Converter{
		runner:    runner,
		ffmpeg:    ffmpeg,
		frameRate: frameRate,
		stat:      os.Stat,
	}
}

// StillToVideo holds imagePath for the full duration at the configured frame
// rate, writing an H.264 yuv420p MP4 to outPath.
func (c *Converter) StillToVideo(ctx context.Context, imagePath, outPath string, duration time.Duration) (execx.Log, error) {
	if _, err := c.stat(imagePath); err != nil {
		return execx.Log{}, fmt.Errorf("source image not accessible: %s: %w", imagePath, err)
	}

	cmd := execx.Command{
		Name: c.ffmpeg,
		Args: buildStillToVideoArgs(imagePath, outPath, duration, c.frameRate),
	}

	res, err := c.runner.Run(ctx, cmd)
	log := execx.LogFor(cmd, res)
	if err != nil {
		return log, fmt.Errorf("ffmpeg image-to-video conversion failed: %w", err)
	}

	if _, err := c.stat(outPath); err != nil {
		return log, fmt.Errorf("ffmpeg completed but video is missing: %s: %w", outPath, err)
	}
	return log, nil
}

// buildStillToVideoArgs builds deterministic ffmpeg args for the conversion.
// Dimensions are padded to even values for yuv420p.
func buildStillToVideoArgs(imagePath, outPath string, duration time.Duration, frameRate int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loop", "1",
		"-i", imagePath,
		"-t", fmt.Sprintf("%.3f", duration.Seconds()),
		"-r", fmt.Sprintf("%d", frameRate),
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	}
}

// NewConverterForTests constructs a converter with an injectable stat.
func NewConverterForTests(runner execx.Runner, ffmpeg string, frameRate int, stat func(string) (os.FileInfo, error)) *Converter {
	return &Converter{runner: runner, ffmpeg: ffmpeg, frameRate: frameRate, stat: stat}
}
