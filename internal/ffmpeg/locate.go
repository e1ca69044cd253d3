// Package ffmpeg finds the ffmpeg and ffprobe executables, falling back to a
// cached download of a static build when neither is configured nor on PATH.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/mgpai22/capsync/internal/logging"
)

const (
	releaseVersion = "6.1"
	releaseBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"

	EnvFFmpegPath  = "CAPSYNC_FFMPEG_PATH"
	EnvFFprobePath = "CAPSYNC_FFPROBE_PATH"
)

var ErrNotFound = errors.New("ffmpeg binaries not found")

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
}

// Locator resolves binaries in order: explicit paths, environment,
// PATH, the download cache, and finally a fresh download.
type Locator struct {
	FFmpeg        string
	FFprobe       string
	CacheDir      string
	AllowDownload bool
	Client        *http.Client
	Logger        *logging.Logger

	once  sync.Once
	paths BinaryPaths
	err   error
}

var (
	defaultMu      sync.Mutex
	defaultLocator = &Locator{AllowDownload: true}
)

// replaces the process-wide locator, typically from loaded config
func SetDefault(l *Locator) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLocator = l
}

func Default() *Locator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLocator
}

func Ensure(ctx context.Context) (BinaryPaths, error) {
	return Default().Resolve(ctx)
}

// Resolve locates both binaries once; later calls return the cached result.
func (l *Locator) Resolve(ctx context.Context) (BinaryPaths, error) {
	l.once.Do(func() {
		l.paths, l.err = l.resolve(ctx)
		if l.err == nil {
			logging.OrNop(l.Logger).Debugw("ffmpeg resolved",
				"ffmpeg", l.paths.FFmpeg, "ffprobe", l.paths.FFprobe)
		}
	})
	return l.paths, l.err
}

func (l *Locator) resolve(ctx context.Context) (BinaryPaths, error) {
	paths := BinaryPaths{
		FFmpeg:  firstNonEmpty(l.FFmpeg, os.Getenv(EnvFFmpegPath)),
		FFprobe: firstNonEmpty(l.FFprobe, os.Getenv(EnvFFprobePath)),
	}
	if paths.FFmpeg == "" {
		if found, err := exec.LookPath("ffmpeg"); err == nil {
			paths.FFmpeg = found
		}
	}
	if paths.FFprobe == "" {
		if found, err := exec.LookPath("ffprobe"); err == nil {
			paths.FFprobe = found
		}
	}
	if paths.FFmpeg != "" && paths.FFprobe != "" {
		return paths, nil
	}

	installDir, err := l.installDir()
	if err != nil {
		return BinaryPaths{}, err
	}
	cached := BinaryPaths{
		FFmpeg:  filepath.Join(installDir, "ffmpeg"+executableSuffix()),
		FFprobe: filepath.Join(installDir, "ffprobe"+executableSuffix()),
	}
	if binariesExist(cached) {
		return merge(paths, cached), nil
	}

	if !l.AllowDownload {
		return BinaryPaths{}, fmt.Errorf("%w: set %s/%s or install ffmpeg", ErrNotFound, EnvFFmpegPath, EnvFFprobePath)
	}

	assetName, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, err
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("create ffmpeg cache dir: %w", err)
	}

	logging.OrNop(l.Logger).Infow("downloading ffmpeg", "asset", assetName, "dir", installDir)
	if err := l.download(ctx, assetName, installDir); err != nil {
		return BinaryPaths{}, err
	}
	if !binariesExist(cached) {
		return BinaryPaths{}, fmt.Errorf("%w after extraction", ErrNotFound)
	}
	if runtime.GOOS != "windows" {
		for _, p := range []string{cached.FFmpeg, cached.FFprobe} {
			if err := os.Chmod(p, 0o755); err != nil {
				return BinaryPaths{}, fmt.Errorf("chmod %s: %w", filepath.Base(p), err)
			}
		}
	}
	return merge(paths, cached), nil
}

func (l *Locator) installDir() (string, error) {
	base := l.CacheDir
	if base == "" {
		dir, err := os.UserCacheDir()
		if err != nil || dir == "" {
			dir = os.TempDir()
		}
		base = filepath.Join(dir, "capsync")
	}
	return filepath.Join(base, "ffmpeg", releaseVersion, runtime.GOOS, runtime.GOARCH), nil
}

func (l *Locator) download(ctx context.Context, assetName, installDir string) error {
	url := fmt.Sprintf("%s/v%s/%s", releaseBaseURL, releaseVersion, assetName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}

	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download ffmpeg bundle: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download ffmpeg bundle: unexpected status %s", resp.Status)
	}
	return extractArchiveFromReader(assetName, resp.Body, installDir)
}

func assetForPlatform(goos, goarch string) (string, error) {
	switch {
	case goos == "linux" && goarch == "amd64":
		return "ffmpeg-" + releaseVersion + "-linux-64.zip", nil
	case goos == "linux" && goarch == "arm64":
		return "ffmpeg-" + releaseVersion + "-linux-arm-64.zip", nil
	case goos == "darwin" && goarch == "amd64":
		return "ffmpeg-" + releaseVersion + "-macos-64.zip", nil
	case goos == "windows" && goarch == "amd64":
		return "ffmpeg-" + releaseVersion + "-win-64.zip", nil
	default:
		return "", fmt.Errorf("unsupported platform for bundled ffmpeg: %s/%s", goos, goarch)
	}
}

// explicit or PATH entries win over cached ones
func merge(found, cached BinaryPaths) BinaryPaths {
	return BinaryPaths{
		FFmpeg:  firstNonEmpty(found.FFmpeg, cached.FFmpeg),
		FFprobe: firstNonEmpty(found.FFprobe, cached.FFprobe),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func binariesExist(p BinaryPaths) bool {
	return fileExists(p.FFmpeg) && fileExists(p.FFprobe)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

func executableSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
