package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/capsync/internal/caption"
	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/remote"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/storage"
	"github.com/mgpai22/capsync/internal/subtitle"
	"github.com/mgpai22/capsync/internal/transcribe"
	"github.com/mgpai22/capsync/internal/video"
)

// resolves ffmpeg and puts its directory first on PATH so the probe finds
// the same ffprobe
func ensureFFmpeg(ctx context.Context) (ffmpegbin.BinaryPaths, error) {
	paths, err := ffmpegbin.Ensure(ctx)
	if err != nil {
		return paths, err
	}
	dir := filepath.Dir(paths.FFprobe)
	if !strings.HasPrefix(os.Getenv("PATH"), dir+string(os.PathListSeparator)) {
		os.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	return paths, nil
}

func newOrchestrator(ctx context.Context, remoteURL string) (*render.Orchestrator, error) {
	paths, err := ensureFFmpeg(ctx)
	if err != nil {
		return nil, err
	}
	o := render.New(video.NewEncoder(paths.FFmpeg, logger), logger)
	o.ChromePath = cfg.Render.ChromePath
	if remoteURL == "" {
		remoteURL = cfg.Render.RemoteURL
	}
	if remoteURL != "" {
		o.Remote = remote.NewClient(remoteURL, logger)
	}
	return o, nil
}

// job history is best effort; a broken database never blocks a render
func openJobs() *storage.JobDB {
	if cfg.Storage.Database == "" {
		return nil
	}
	db, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		logger.Warnw("job history unavailable", "database", cfg.Storage.Database, "error", err)
		return nil
	}
	return db
}

type transcriberFlags struct {
	provider      string
	apiKey        string
	model         string
	language      string
	transcriptLng string
	serviceURL    string
	chunkDuration float64
	concurrency   int
}

func newTranscriber(ctx context.Context, f transcriberFlags) (transcribe.Transcriber, transcribe.Provider, error) {
	tc := cfg.Transcription
	provider, err := transcribe.ParseProvider(firstNonEmpty(f.provider, tc.Provider))
	if err != nil {
		return nil, "", err
	}

	apiKey := firstNonEmpty(f.apiKey, cfg.APIKey(string(provider)))
	if provider != transcribe.ProviderRemote && apiKey == "" {
		return nil, provider, fmt.Errorf(
			"API key is required for %s: use --api-key flag or set %s environment variable",
			provider, apiKeyEnv(string(provider)),
		)
	}

	opts := transcribe.Options{
		Language:           firstNonEmpty(f.language, tc.Language),
		TranscriptLanguage: f.transcriptLng,
		Model:              firstNonEmpty(f.model, tc.Model),
		ServiceURL:         firstNonEmpty(f.serviceURL, tc.ServiceURL),
		ChunkDuration:      tc.ChunkDuration,
		Concurrency:        tc.Concurrency,
		Logger:             logger,
	}
	if f.chunkDuration > 0 {
		opts.ChunkDuration = f.chunkDuration
	}
	if f.concurrency > 0 {
		opts.Concurrency = f.concurrency
	}

	if provider != transcribe.ProviderRemote {
		if _, err := ensureFFmpeg(ctx); err != nil {
			return nil, provider, err
		}
	}

	t, err := transcribe.Factory(ctx, provider, apiKey, opts)
	if err != nil {
		return nil, provider, fmt.Errorf("failed to create transcriber: %w", err)
	}
	return t, provider, nil
}

func apiKeyEnv(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// reads captions by extension: .json is the native format, anything else
// goes through the subtitle parsers
func loadCaptions(path string) ([]caption.Segment, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return caption.Load(path)
	}
	return subtitle.Open(path)
}

func saveCaptions(path string, segs []caption.Segment) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return caption.Save(path, segs)
	}
	format, err := subtitle.FormatFromPath(path)
	if err != nil {
		return err
	}
	return subtitle.Write(path, format, segs)
}

// input path with its extension replaced by suffix
func siblingPath(input, suffix string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + suffix
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
