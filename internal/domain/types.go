package domain

import "time"

// RunStatus tracks each stage of a single pipeline run.
type RunStatus string

const (
	RunStatusParsed        RunStatus = "parsed"
	RunStatusValidated     RunStatus = "validated"
	RunStatusAudioResolved RunStatus = "audio_resolved"
	RunStatusMediaResolved RunStatus = "media_resolved"
	RunStatusInvoked       RunStatus = "invoked"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusFailed        RunStatus = "failed"
)

// AudioSource records where the resolved audio came from.
type AudioSource string

const (
	AudioSourceUser AudioSource = "user-provided"
	AudioSourceTTS  AudioSource = "tts-generated"
)

// MediaKind distinguishes still-image inputs from derived videos.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// PipelineRequest is the fully parsed input for one pipeline run.
type PipelineRequest struct {
	Backend    string
	ImagePath  string
	AudioPath  string
	Text       string
	TTSEngine  string
	Voice      string
	Checkpoint string
	KeepAudio  bool
	Timeout    time.Duration
}

// ResolvedAudio is a concrete audio file handed to the inference stage.
type ResolvedAudio struct {
	Path      string
	Source    AudioSource
	Temporary bool
}

// ResolvedMedia is the visual input handed to the inference stage.
type ResolvedMedia struct {
	Path            string
	Kind            MediaKind
	DurationSeconds float64
	Temporary       bool
}

// InferenceResult describes the artifact produced by a backend.
type InferenceResult struct {
	OutputPath string
	Backend    string
	ExitCode   int
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ReposDir    string `json:"reposDir"`
	CacheDir    string `json:"cacheDir"`
	OutputDir   string `json:"outputDir"`
	Python      string `json:"python"`
	FFmpeg      string `json:"ffmpeg"`
	FFprobe     string `json:"ffprobe"`
	PiperBin    string `json:"piperBin"`
	CoquiScript string `json:"coquiScript"`
	CoquiModel  string `json:"coquiModel"`
	DefaultTTS  string `json:"defaultTts"`
	PiperVoice  string `json:"piperVoice"`
	FrameRate   int    `json:"frameRate"`
}
