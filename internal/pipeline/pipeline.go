package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"avatar-pipeline/internal/backend"
	"avatar-pipeline/internal/config"
	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
	"avatar-pipeline/internal/media"
	"avatar-pipeline/internal/tts"
)

// Stage names used in errors and logs.
const (
	stageValidation = "validation"
	stageTTS        = "tts"
	stageMediaPrep  = "media-preparation"
	stageInference  = "inference"
)

// synthesizer isolates the TTS dispatcher behind an interface.
type synthesizer interface {
	Synthesize(ctx context.Context, engine, text, voice string) (domain.ResolvedAudio, execx.Log, error)
}

// durationProber measures resolved audio length.
type durationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// videoConverter derives a silent video from a still image.
type videoConverter interface {
	StillToVideo(ctx context.Context, imagePath, outPath string, duration time.Duration) (execx.Log, error)
}

// inferenceInvoker runs one backend subprocess and resolves its artifact.
type inferenceInvoker interface {
	Invoke(ctx context.Context, desc *backend.Descriptor, m domain.ResolvedMedia, a domain.ResolvedAudio, checkpoint string) (domain.InferenceResult, execx.Log, error)
}

// Result contains the produced artifact, intermediate resolutions, final
// run state, and captured command logs for one pipeline run.
type Result struct {
	Output domain.InferenceResult
	Audio  domain.ResolvedAudio
	Media  domain.ResolvedMedia
	Status domain.RunStatus
	Logs   []execx.Log
}

// Pipeline orchestrates TTS, media preparation, and backend inference as a
// strictly sequential run with scoped cleanup of temporary artifacts.
type Pipeline struct {
	registry  *backend.Registry
	tts       synthesizer
	prober    durationProber
	converter videoConverter
	invoker   inferenceInvoker
	tempDir   string
	stat      func(string) (os.FileInfo, error)
	remove    func(string) error
	newID     func() string
}

// New constructs the production pipeline from settings.
func New(settings domain.Settings, overrides config.BackendOverrides) *Pipeline {
	runner := &execx.ExecRunner{}
	voices := tts.NewVoiceResolver(filepath.Join(settings.CacheDir, "voices"))
	dispatcher := tts.NewDispatcher(
		tts.NewCoqui(runner, settings.Python, settings.CoquiScript, settings.CoquiModel),
		tts.NewPiper(runner, settings.PiperBin, settings.PiperVoice, voices),
	)

	return &Pipeline{
		registry:  backend.NewRegistry(),
		tts:       dispatcher,
		prober:    media.NewProber(runner, settings.FFprobe),
		converter: media.NewConverter(runner, settings.FFmpeg, settings.FrameRate),
		invoker:   backend.NewInvoker(runner, settings, overrides),
		tempDir:   os.TempDir(),
		stat:      os.Stat,
		remove:    os.Remove,
		newID:     uuid.NewString,
	}
}

// Backends returns the valid backend identifiers.
func (p *Pipeline) Backends() []string {
	return p.registry.Names()
}

// Run executes validation, optional TTS, optional media preparation, and
// backend inference. Temporary artifacts created along the way are removed
// on every exit path; removal failures are logged, never escalated.
func (p *Pipeline) Run(ctx context.Context, req domain.PipelineRequest) (result Result, err error) {
	lc := newLifecycle()
	var temps []string
	defer func() {
		p.cleanup(temps)
		result.Status = lc.Status()
	}()
	fail := func(failErr error) (Result, error) {
		lc.fail()
		return result, failErr
	}

	desc, ok := p.registry.Get(req.Backend)
	if !ok {
		return fail(domain.NewUsageError("unknown backend %q (valid: %s)",
			req.Backend, strings.Join(p.registry.Names(), ", ")))
	}

	if err := validateRequest(req, p.stat); err != nil {
		return fail(err)
	}
	if err := lc.advance(domain.RunStatusValidated); err != nil {
		return fail(err)
	}

	// Audio resolution: user-provided audio always wins over text.
	if req.AudioPath != "" {
		result.Audio = domain.ResolvedAudio{
			Path:   req.AudioPath,
			Source: domain.AudioSourceUser,
		}
	} else {
		engine := req.TTSEngine
		if engine == "" {
			engine = "coqui"
		}

		sctx, cancel := p.stageContext(ctx, req.Timeout)
		audio, ttsLog, ttsErr := p.tts.Synthesize(sctx, engine, req.Text, req.Voice)
		cancel()
		result.Logs = appendLog(result.Logs, ttsLog)
		if ttsErr != nil {
			return fail(wrapStage(stageTTS, "speech synthesis failed", ttsLog, ttsErr))
		}

		if req.KeepAudio {
			audio.Temporary = false
		} else {
			temps = append(temps, audio.Path)
		}
		result.Audio = audio
	}
	if err := lc.advance(domain.RunStatusAudioResolved); err != nil {
		return fail(err)
	}

	// Media preparation: only backends that consume video instead of a
	// still image need the derived silent video.
	if desc.NeedsVideo {
		sctx, cancel := p.stageContext(ctx, req.Timeout)
		duration, probeErr := p.prober.Duration(sctx, result.Audio.Path)
		cancel()
		if probeErr != nil {
			return fail(wrapStage(stageMediaPrep, "cannot measure audio duration", execx.Log{}, probeErr))
		}

		videoPath := filepath.Join(p.tempDir, fmt.Sprintf("avatar-video-%s.mp4", p.newID()))
		temps = append(temps, videoPath)

		sctx, cancel = p.stageContext(ctx, req.Timeout)
		convLog, convErr := p.converter.StillToVideo(sctx, req.ImagePath, videoPath, duration)
		cancel()
		result.Logs = appendLog(result.Logs, convLog)
		if convErr != nil {
			return fail(wrapStage(stageMediaPrep, "image-to-video conversion failed", convLog, convErr))
		}

		result.Media = domain.ResolvedMedia{
			Path:            videoPath,
			Kind:            domain.MediaKindVideo,
			DurationSeconds: duration.Seconds(),
			Temporary:       true,
		}
	} else {
		result.Media = domain.ResolvedMedia{
			Path: req.ImagePath,
			Kind: domain.MediaKindImage,
		}
	}
	if err := lc.advance(domain.RunStatusMediaResolved); err != nil {
		return fail(err)
	}

	sctx, cancel := p.stageContext(ctx, req.Timeout)
	output, invokeLog, invokeErr := p.invoker.Invoke(sctx, desc, result.Media, result.Audio, req.Checkpoint)
	cancel()
	result.Logs = appendLog(result.Logs, invokeLog)
	if invokeErr != nil {
		return fail(wrapStage(stageInference, "backend invocation failed", invokeLog, invokeErr))
	}
	if err := lc.advance(domain.RunStatusInvoked); err != nil {
		return fail(err)
	}

	if _, statErr := p.stat(output.OutputPath); statErr != nil {
		return fail(wrapStage(stageInference, fmt.Sprintf("output artifact missing: %s", output.OutputPath), invokeLog, statErr))
	}
	if err := lc.advance(domain.RunStatusCompleted); err != nil {
		return fail(err)
	}

	result.Output = output
	return result, nil
}

// validateRequest applies the argument resolution rules in order: image
// presence, image existence, audio-or-text, audio existence.
func validateRequest(req domain.PipelineRequest, stat func(string) (os.FileInfo, error)) error {
	if strings.TrimSpace(req.ImagePath) == "" {
		return domain.NewUserInputError("--image is required")
	}
	if _, err := stat(req.ImagePath); err != nil {
		return domain.NewUserInputError("image not found: %s", req.ImagePath)
	}

	if req.AudioPath == "" && strings.TrimSpace(req.Text) == "" {
		return domain.NewUserInputError("either audio or text required (--audio or --text)")
	}

	if req.AudioPath != "" {
		if _, err := stat(req.AudioPath); err != nil {
			return domain.NewUserInputError("audio not found: %s", req.AudioPath)
		}
	}

	return nil
}

// stageContext applies the optional per-subprocess timeout.
func (p *Pipeline) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// cleanup removes temporary artifacts best-effort, each exactly once.
func (p *Pipeline) cleanup(temps []string) {
	for _, path := range temps {
		if err := p.remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Printf("warning: failed to remove temporary file %s: %v", path, err)
		}
	}
}

// wrapStage attaches stage and command context to an error.
func wrapStage(stage, message string, cmdLog execx.Log, err error) error {
	return &StageError{
		Stage:      stage,
		Message:    message,
		CommandLog: cmdLog,
		Err:        err,
	}
}

// appendLog skips empty logs from stages that failed before running anything.
func appendLog(logs []execx.Log, l execx.Log) []execx.Log {
	if l.Command == "" {
		return logs
	}
	return append(logs, l)
}

// NewForTests constructs a pipeline with injectable stage implementations.
func NewForTests(
	registry *backend.Registry,
	synth synthesizer,
	prober durationProber,
	converter videoConverter,
	invoker inferenceInvoker,
	tempDir string,
	stat func(string) (os.FileInfo, error),
	remove func(string) error,
) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		tts:       synth,
		prober:    prober,
		converter: converter,
		invoker:   invoker,
		tempDir:   tempDir,
		stat:      stat,
		remove:    remove,
		newID:     uuid.NewString,
	}
	if p.stat == nil {
		p.stat = os.Stat
	}
	if p.remove == nil {
		p.remove = os.Remove
	}
	return p
}
