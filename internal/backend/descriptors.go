package backend

// aniportraitStageConfig is the temporary stage config consumed by the
// AniPortrait entrypoint in place of individual path flags.
type aniportraitStageConfig struct {
	RefImagePath string `yaml:"ref_image_path"`
	AudioPath    string `yaml:"audio_path"`
	SavePath     string `yaml:"save_path"`
}

// descriptors returns the closed set of wrapped backends. Each tool was
// authored independently, so flag names and output conventions differ.
func descriptors() []*Descriptor {
	return []*Descriptor{
		{
			Name:        "sadtalker",
			Dir:         "SadTalker",
			Entrypoints: []string{"inference.py"},
			OutputIsDir: true,
			Args: func(in Invocation) []string {
				return []string{
					"--driven_audio", in.Audio,
					"--source_image", in.Image,
					"--result_dir", in.Output,
					"--still",
					"--preprocess", "full",
				}
			},
			SetupHint: "run setup/sadtalker.sh to clone SadTalker and download its checkpoints",
		},
		{
			Name:              "wav2lip",
			Dir:               "Wav2Lip",
			Entrypoints:       []string{"inference.py"},
			NeedsVideo:        true,
			AcceptsCheckpoint: true,
			DefaultCheckpoint: "checkpoints/wav2lip_gan.pth",
			Args: func(in Invocation) []string {
				return []string{
					"--checkpoint_path", in.Checkpoint,
					"--face", in.Video,
					"--audio", in.Audio,
					"--outfile", in.Output,
				}
			},
			SetupHint: "run setup/wav2lip.sh to clone Wav2Lip and download wav2lip_gan.pth",
		},
		{
			Name:        "echomimic",
			Dir:         "EchoMimic",
			Entrypoints: []string{"infer_audio2vid.py"},
			Args: func(in Invocation) []string {
				return []string{
					"--ref_image_path", in.Image,
					"--audio_path", in.Audio,
					"--save_path", in.Output,
				}
			},
			SetupHint: "run setup/echomimic.sh to clone EchoMimic and download its weights",
		},
		{
			Name:        "hallo",
			Dir:         "hallo",
			Entrypoints: []string{"scripts/inference.py", "inference.py"},
			Args: func(in Invocation) []string {
				return []string{
					"--source_image", in.Image,
					"--driving_audio", in.Audio,
					"--output", in.Output,
				}
			},
			SetupHint: "run setup/hallo.sh to clone hallo and download its pretrained models",
		},
		{
			Name:        "aniportrait",
			Dir:         "AniPortrait",
			Entrypoints: []string{"scripts/audio2vid.py"},
			Args: func(in Invocation) []string {
				return []string{
					"--config", in.ConfigPath,
					"-W", "512",
					"-H", "512",
				}
			},
			StageConfig: func(in Invocation) any {
				return aniportraitStageConfig{
					RefImagePath: in.Image,
					AudioPath:    in.Audio,
					SavePath:     in.Output,
				}
			},
			SetupHint: "run setup/aniportrait.sh to clone AniPortrait and download its weights",
		},
	}
}
