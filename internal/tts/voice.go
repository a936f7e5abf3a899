package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// VoiceRepoBaseURL is the root of the upstream piper voice repository.
const VoiceRepoBaseURL = "https://huggingface.co/rhasspy/piper-voices/resolve/main"

// VoiceRepoPath expands a short voice name of the form
// <locale>-<voice>-<quality> into its repository-relative model path.
// Underscores inside the voice segment map to hyphens in the directory name
// while the model filename keeps the name as given.
func VoiceRepoPath(name string) (string, error) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return "", fmt.Errorf("voice name %q is not in <locale>-<voice>-<quality> form", name)
	}

	locale := parts[0]
	quality := parts[len(parts)-1]
	voice := strings.Join(parts[1:len(parts)-1], "-")
	voiceDir := strings.ReplaceAll(voice, "_", "-")
	lang := strings.SplitN(locale, "_", 2)[0]

	return path.Join(lang, locale, voiceDir, quality, name+".onnx"), nil
}

// VoiceResolver turns a voice reference into a local model path, downloading
// into a filename-keyed cache when needed. References are tried in order:
// existing local file, direct HTTPS URL, repository-relative path, short name.
type VoiceResolver struct {
	cacheDir string
	baseURL  string
	stat     func(string) (os.FileInfo, error)
	fetch    func(ctx context.Context, sourceURL, destinationPath string) error
}

// NewVoiceResolver builds a resolver caching under cacheDir.
func NewVoiceResolver(cacheDir string) *VoiceResolver {
	return &VoiceResolver{
		cacheDir: cacheDir,
		baseURL:  VoiceRepoBaseURL,
		stat:     os.Stat,
		fetch:    downloadURLToFile,
	}
}

// Resolve returns the local path of the voice model for the given reference.
func (r *VoiceResolver) Resolve(ctx context.Context, voice string) (string, error) {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return "", fmt.Errorf("piper voice is empty")
	}

	if info, err := r.stat(voice); err == nil && !info.IsDir() {
		return voice, nil
	}

	if strings.HasPrefix(voice, "https://") || strings.HasPrefix(voice, "http://") {
		return r.cached(ctx, voice)
	}

	if strings.Contains(voice, "/") {
		return r.cached(ctx, r.baseURL+"/"+voice)
	}

	repoPath, err := VoiceRepoPath(voice)
	if err != nil {
		return "", err
	}
	return r.cached(ctx, r.baseURL+"/"+repoPath)
}

// cached downloads the model and its companion .json metadata unless the
// model is already present in the cache.
func (r *VoiceResolver) cached(ctx context.Context, sourceURL string) (string, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parse voice URL %q: %w", sourceURL, err)
	}

	target := filepath.Join(r.cacheDir, path.Base(parsed.Path))
	if _, err := r.stat(target); err == nil {
		return target, nil
	}

	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare voice cache directory: %w", err)
	}

	if err := r.fetch(ctx, sourceURL, target); err != nil {
		return "", fmt.Errorf("download voice model: %w", err)
	}
	if err := r.fetch(ctx, sourceURL+".json", target+".json"); err != nil {
		return "", fmt.Errorf("download voice metadata: %w", err)
	}

	return target, nil
}

// downloadURLToFile writes the download to a temp name and renames on
// completion so a concurrent duplicate download never leaves a corrupt file.
func downloadURLToFile(ctx context.Context, sourceURL, destinationPath string) error {
	tmpPath := destinationPath + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale temp file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "avatar-pipeline")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write destination file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close destination file: %w", closeErr)
	}

	if err := os.Remove(destinationPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove old destination file: %w", err)
	}
	if err := os.Rename(tmpPath, destinationPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("move downloaded file into place: %w", err)
	}

	return nil
}

// NewVoiceResolverForTests constructs a resolver with injectable fetch and stat.
func NewVoiceResolverForTests(cacheDir, baseURL string, stat func(string) (os.FileInfo, error), fetch func(ctx context.Context, sourceURL, destinationPath string) error) *VoiceResolver {
	r := NewVoiceResolver(cacheDir)
	if baseURL != "" {
		r.baseURL = baseURL
	}
	if stat != nil {
		r.stat = stat
	}
	if fetch != nil {
		r.fetch = fetch
	}
	return r
}
