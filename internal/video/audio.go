package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/logging"
)

// holds options for audio extraction
type ExtractAudioOptions struct {
	Format     string // wav, mp3, aac, flac
	SampleRate int
	Channels   int
	Bitrate    string // lossy formats only, e.g. "64k"
}

// 16kHz mono wav, what speech models expect
func DefaultExtractAudioOptions() ExtractAudioOptions {
	return ExtractAudioOptions{
		Format:     "wav",
		SampleRate: 16000,
		Channels:   1,
	}
}

func audioArgs(opts ExtractAudioOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "",
		"ar": opts.SampleRate,
		"ac": opts.Channels,
	}

	switch opts.Format {
	case "mp3":
		kwargs["acodec"] = "libmp3lame"
	case "aac":
		kwargs["acodec"] = "aac"
	case "flac":
		kwargs["acodec"] = "flac"
	default:
		kwargs["acodec"] = "pcm_s16le"
	}
	if opts.Bitrate != "" && (opts.Format == "mp3" || opts.Format == "aac") {
		kwargs["b:a"] = opts.Bitrate
	}
	return kwargs
}

// ExtractAudio writes the audio track of source to outputPath.
func (e *Encoder) ExtractAudio(ctx context.Context, source, outputPath string, opts ExtractAudioOptions) error {
	if !IsRemote(source) {
		if _, err := os.Stat(source); os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stream := ffmpeg.Input(source).
		Output(outputPath, audioArgs(opts)).
		OverWriteOutput()
	if e.FFmpegPath != "" {
		stream = stream.SetFfmpegPath(e.FFmpegPath)
	}

	cmd := stream.Compile()
	logging.OrNop(e.Logger).Debugw("extracting audio", "source", source, "output", outputPath)
	if err := ffmpegbin.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg extraction failed: %w", err)
	}
	return nil
}
