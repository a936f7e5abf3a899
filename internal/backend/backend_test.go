package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"avatar-pipeline/internal/config"
	"avatar-pipeline/internal/domain"
	"avatar-pipeline/internal/execx"
)

// fakeRunner records commands and plays back canned results.
type fakeRunner struct {
	commands []execx.Command
	result   execx.Result
	err      error
	onRun    func(cmd execx.Command)
}

func (f *fakeRunner) Run(ctx context.Context, cmd execx.Command) (execx.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.onRun != nil {
		f.onRun(cmd)
	}
	return f.result, f.err
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}

// mustDescriptor fetches a descriptor or fails the test.
func mustDescriptor(t *testing.T, name string) *Descriptor {
	t.Helper()
	desc, ok := NewRegistry().Get(name)
	if !ok {
		t.Fatalf("backend %q not registered", name)
	}
	return desc
}

// argValue returns the value following a flag in an argument list.
func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

// TestRegistryNames checks the closed backend set and its order.
func TestRegistryNames(t *testing.T) {
	got := NewRegistry().Names()
	want := []string{"sadtalker", "wav2lip", "echomimic", "hallo", "aniportrait"}
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestRegistryExactMatchOnly checks lookups never normalize case.
func TestRegistryExactMatchOnly(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Get("SadTalker"); ok {
		t.Fatal("case-variant lookup should not match")
	}
	if _, ok := registry.Get("sadtalker "); ok {
		t.Fatal("whitespace-variant lookup should not match")
	}
	if _, ok := registry.Get("sadtalker"); !ok {
		t.Fatal("exact lookup should match")
	}
}

// TestInvokeMissingCheckout checks the setup hint fires before any subprocess.
func TestInvokeMissingCheckout(t *testing.T) {
	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", filepath.Join(t.TempDir(), "repos"), t.TempDir(), nil, "", nil)

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "echomimic"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")

	var depErr *domain.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("error = %v, want *domain.DependencyError", err)
	}
	if depErr.Hint == "" {
		t.Fatal("dependency error should carry a setup hint")
	}
	if len(runner.commands) != 0 {
		t.Fatalf("command count = %d, want 0", len(runner.commands))
	}
}

// TestInvokeMissingEntrypoint checks the tried candidates appear in the error.
func TestInvokeMissingEntrypoint(t *testing.T) {
	reposDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(reposDir, "hallo"), 0o755); err != nil {
		t.Fatalf("mkdir checkout: %v", err)
	}

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "", nil)

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "hallo"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")

	var depErr *domain.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("error = %v, want *domain.DependencyError", err)
	}
	if !strings.Contains(depErr.Message, "scripts/inference.py") || !strings.Contains(depErr.Message, "inference.py") {
		t.Fatalf("error should list tried entrypoints, got %q", depErr.Message)
	}
	if len(runner.commands) != 0 {
		t.Fatalf("command count = %d, want 0", len(runner.commands))
	}
}

// TestInvokeEntrypointFallback checks the second candidate is used when the
// first is absent.
func TestInvokeEntrypointFallback(t *testing.T) {
	reposDir := t.TempDir()
	outputDir := t.TempDir()
	entrypoint := filepath.Join(reposDir, "hallo", "inference.py")
	mustWriteFile(t, entrypoint, "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, outputDir, nil, "",
		func() string { return "run1" })
	runner.onRun = func(cmd execx.Command) {
		mustWriteFile(t, argValue(t, cmd.Args, "--output"), "mp4")
	}

	result, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "hallo"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	cmd := runner.commands[0]
	if cmd.Args[0] != entrypoint {
		t.Fatalf("entrypoint = %q, want %q", cmd.Args[0], entrypoint)
	}
	if result.OutputPath != filepath.Join(outputDir, "hallo-run1.mp4") {
		t.Fatalf("output = %q", result.OutputPath)
	}
}

// TestInvokeEntrypointOverride checks configured overrides replace candidates.
func TestInvokeEntrypointOverride(t *testing.T) {
	reposDir := t.TempDir()
	custom := filepath.Join(reposDir, "EchoMimic", "custom_infer.py")
	mustWriteFile(t, custom, "#")
	// Built-in candidate exists too; the override must win.
	mustWriteFile(t, filepath.Join(reposDir, "EchoMimic", "infer_audio2vid.py"), "#")

	runner := &fakeRunner{}
	overrides := config.BackendOverrides{"echomimic": {"custom_infer.py"}}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), overrides, "",
		func() string { return "run1" })
	runner.onRun = func(cmd execx.Command) {
		mustWriteFile(t, argValue(t, cmd.Args, "--save_path"), "mp4")
	}

	if _, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "echomimic"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, ""); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if runner.commands[0].Args[0] != custom {
		t.Fatalf("entrypoint = %q, want override %q", runner.commands[0].Args[0], custom)
	}
}

// TestInvokeWav2LipDefaultCheckpoint checks checkpoint fill and video wiring.
func TestInvokeWav2LipDefaultCheckpoint(t *testing.T) {
	reposDir := t.TempDir()
	toolDir := filepath.Join(reposDir, "Wav2Lip")
	mustWriteFile(t, filepath.Join(toolDir, "inference.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "",
		func() string { return "run1" })
	runner.onRun = func(cmd execx.Command) {
		mustWriteFile(t, argValue(t, cmd.Args, "--outfile"), "mp4")
	}

	if _, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "wav2lip"),
		domain.ResolvedMedia{Path: "/tmp/still.mp4", Kind: domain.MediaKindVideo},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, ""); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	args := runner.commands[0].Args
	wantCheckpoint := filepath.Join(toolDir, "checkpoints", "wav2lip_gan.pth")
	if got := argValue(t, args, "--checkpoint_path"); got != wantCheckpoint {
		t.Fatalf("checkpoint = %q, want %q", got, wantCheckpoint)
	}
	if got := argValue(t, args, "--face"); got != "/tmp/still.mp4" {
		t.Fatalf("face = %q, want prepared video", got)
	}
	if got := argValue(t, args, "--audio"); got != "/in/speech.wav" {
		t.Fatalf("audio = %q", got)
	}
	if runner.commands[0].Dir != toolDir {
		t.Fatalf("working dir = %q, want %q", runner.commands[0].Dir, toolDir)
	}
}

// TestInvokeExplicitCheckpoint checks a user checkpoint is passed untouched.
func TestInvokeExplicitCheckpoint(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "Wav2Lip", "inference.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "",
		func() string { return "run1" })
	runner.onRun = func(cmd execx.Command) {
		mustWriteFile(t, argValue(t, cmd.Args, "--outfile"), "mp4")
	}

	if _, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "wav2lip"),
		domain.ResolvedMedia{Path: "/tmp/still.mp4", Kind: domain.MediaKindVideo},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "/models/wav2lip.pth"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if got := argValue(t, runner.commands[0].Args, "--checkpoint_path"); got != "/models/wav2lip.pth" {
		t.Fatalf("checkpoint = %q, want explicit path", got)
	}
}

// TestInvokeSadTalkerResolvesNewestResult checks directory-output enumeration.
func TestInvokeSadTalkerResolvesNewestResult(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "SadTalker", "inference.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "",
		func() string { return "run1" })

	var resultDir string
	runner.onRun = func(cmd execx.Command) {
		resultDir = argValue(t, cmd.Args, "--result_dir")
		older := filepath.Join(resultDir, "older.mp4")
		newer := filepath.Join(resultDir, "newer.mp4")
		mustWriteFile(t, older, "a")
		mustWriteFile(t, newer, "b")
		base := time.Now()
		if err := os.Chtimes(older, base.Add(-time.Hour), base.Add(-time.Hour)); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		if err := os.Chtimes(newer, base, base); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	result, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "sadtalker"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.OutputPath != filepath.Join(resultDir, "newer.mp4") {
		t.Fatalf("output = %q, want newest file", result.OutputPath)
	}
}

// TestInvokeSadTalkerEmptyResultDir checks an empty result directory fails.
func TestInvokeSadTalkerEmptyResultDir(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "SadTalker", "inference.py"), "#")

	runner := &fakeRunner{onRun: func(cmd execx.Command) {
		if err := os.MkdirAll(argValue(t, cmd.Args, "--result_dir"), 0o755); err != nil {
			t.Fatalf("mkdir result dir: %v", err)
		}
	}}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "", nil)

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "sadtalker"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err == nil {
		t.Fatal("expected error for empty result directory")
	}
	if !strings.Contains(err.Error(), "produced no video") {
		t.Fatalf("error = %q", err.Error())
	}
}

// TestInvokeSadTalkerIgnoresNonVideoFiles checks newer logs and metadata
// never shadow the produced video.
func TestInvokeSadTalkerIgnoresNonVideoFiles(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "SadTalker", "inference.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "",
		func() string { return "run1" })

	var resultDir string
	runner.onRun = func(cmd execx.Command) {
		resultDir = argValue(t, cmd.Args, "--result_dir")
		video := filepath.Join(resultDir, "result.mp4")
		logFile := filepath.Join(resultDir, "inference.log")
		meta := filepath.Join(resultDir, "result.json")
		mustWriteFile(t, video, "mp4")
		mustWriteFile(t, logFile, "log")
		mustWriteFile(t, meta, "{}")
		base := time.Now()
		if err := os.Chtimes(video, base.Add(-time.Hour), base.Add(-time.Hour)); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		for _, p := range []string{logFile, meta} {
			if err := os.Chtimes(p, base, base); err != nil {
				t.Fatalf("chtimes: %v", err)
			}
		}
	}

	result, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "sadtalker"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.OutputPath != filepath.Join(resultDir, "result.mp4") {
		t.Fatalf("output = %q, want the video despite newer non-video files", result.OutputPath)
	}
}

// TestInvokeSadTalkerFindsNestedVideo checks one level of subdirectories is
// scanned for the artifact.
func TestInvokeSadTalkerFindsNestedVideo(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "SadTalker", "inference.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "", nil)

	var nested string
	runner.onRun = func(cmd execx.Command) {
		resultDir := argValue(t, cmd.Args, "--result_dir")
		nested = filepath.Join(resultDir, "full", "result.mp4")
		mustWriteFile(t, nested, "mp4")
	}

	result, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "sadtalker"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if result.OutputPath != nested {
		t.Fatalf("output = %q, want nested video %q", result.OutputPath, nested)
	}
}

// TestInvokeAniPortraitStageConfig checks the temp YAML is written, passed via
// --config, and removed after the run.
func TestInvokeAniPortraitStageConfig(t *testing.T) {
	reposDir := t.TempDir()
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "AniPortrait", "scripts", "audio2vid.py"), "#")

	runner := &fakeRunner{}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, tempDir,
		func() string { return "run1" })

	var configPath string
	var staged aniportraitStageConfig
	runner.onRun = func(cmd execx.Command) {
		configPath = argValue(t, cmd.Args, "--config")
		data, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("read stage config: %v", err)
		}
		if err := yaml.Unmarshal(data, &staged); err != nil {
			t.Fatalf("unmarshal stage config: %v", err)
		}
		mustWriteFile(t, staged.SavePath, "mp4")
	}

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "aniportrait"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if filepath.Dir(configPath) != tempDir {
		t.Fatalf("stage config %q not under temp dir", configPath)
	}
	if staged.RefImagePath != "/in/face.png" || staged.AudioPath != "/in/speech.wav" {
		t.Fatalf("stage config = %+v", staged)
	}
	if _, err := os.Stat(configPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stage config should be removed after the run, stat err = %v", err)
	}
}

// TestInvokeStageConfigRemovedOnFailure checks cleanup on the error path.
func TestInvokeStageConfigRemovedOnFailure(t *testing.T) {
	reposDir := t.TempDir()
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "AniPortrait", "scripts", "audio2vid.py"), "#")

	runner := &fakeRunner{result: execx.Result{ExitCode: 1}, err: errors.New("exit status 1")}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, tempDir,
		func() string { return "run1" })

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "aniportrait"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err == nil {
		t.Fatal("expected inference error")
	}

	entries, readErr := os.ReadDir(tempDir)
	if readErr != nil {
		t.Fatalf("read temp dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned, entries = %d", len(entries))
	}
}

// TestInvokeMissingOutputFile checks a clean exit without an artifact fails.
func TestInvokeMissingOutputFile(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "EchoMimic", "infer_audio2vid.py"), "#")

	invoker := NewInvokerForTests(&fakeRunner{}, "python3", reposDir, t.TempDir(), nil, "", nil)

	_, _, err := invoker.Invoke(context.Background(), mustDescriptor(t, "echomimic"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err == nil {
		t.Fatal("expected error for missing output")
	}
	if !strings.Contains(err.Error(), "output file is missing") {
		t.Fatalf("error = %q", err.Error())
	}
}

// TestInvokeFailureCarriesCommandLog checks the log survives subprocess errors.
func TestInvokeFailureCarriesCommandLog(t *testing.T) {
	reposDir := t.TempDir()
	mustWriteFile(t, filepath.Join(reposDir, "hallo", "scripts", "inference.py"), "#")

	runner := &fakeRunner{result: execx.Result{ExitCode: 2, Stderr: "CUDA out of memory"}, err: errors.New("exit status 2")}
	invoker := NewInvokerForTests(runner, "python3", reposDir, t.TempDir(), nil, "", nil)

	_, cmdLog, err := invoker.Invoke(context.Background(), mustDescriptor(t, "hallo"),
		domain.ResolvedMedia{Path: "/in/face.png", Kind: domain.MediaKindImage},
		domain.ResolvedAudio{Path: "/in/speech.wav"}, "")
	if err == nil {
		t.Fatal("expected inference error")
	}
	if cmdLog.ExitCode != 2 || cmdLog.Stderr != "CUDA out of memory" {
		t.Fatalf("log = %+v, want captured failure", cmdLog)
	}
}
