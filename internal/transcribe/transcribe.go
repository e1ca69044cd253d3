// Package transcribe turns spoken audio into timed caption segments using a
// remote caption service or a hosted speech model.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/logging"
)

// ErrTranscriptionFailed wraps every provider failure so callers can map it
// to a single user-facing message.
var ErrTranscriptionFailed = errors.New("transcription failed")

// transcription result
type Result struct {
	Segments []caption.Segment
	Language string
	Duration float64
}

// interface for audio transcription
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (*Result, error)
}

// transcription service provider
type Provider string

const (
	ProviderRemote Provider = "remote"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// transcription options
type Options struct {
	Language           string // source language of the audio
	TranscriptLanguage string // output language for the transcript, "native" keeps the source
	Model              string
	Prompt             string

	ServiceURL    string  // remote provider base URL
	ChunkDuration float64 // seconds per upload for hosted models; 0 sends the whole file
	Concurrency   int

	Logger *logging.Logger
}

// creates transcriber based on provider
func Factory(ctx context.Context, provider Provider, apiKey string, opts Options) (Transcriber, error) {
	switch provider {
	case ProviderRemote, "":
		return NewRemoteTranscriber(opts), nil
	case ProviderGemini:
		t, err := NewGeminiTranscriber(ctx, apiKey, opts)
		if err != nil {
			return nil, err
		}
		return NewMediaTranscriber(t, opts), nil
	case ProviderOpenAI:
		t, err := NewOpenAITranscriber(ctx, apiKey, opts)
		if err != nil {
			return nil, err
		}
		return NewMediaTranscriber(t, opts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "", "stt", "whisper":
		return ProviderRemote, nil
	case ProviderRemote, ProviderGemini, ProviderOpenAI:
		return p, nil
	}
	return "", fmt.Errorf("unsupported provider: %s", s)
}

// trims text and assigns ids to segments that lack them
func finalize(segs []caption.Segment) []caption.Segment {
	out := make([]caption.Segment, len(segs))
	for i, seg := range segs {
		seg.Text = strings.TrimSpace(seg.Text)
		out[i] = seg
	}
	return caption.EnsureIDs(out)
}

// marks err as a transcription failure, leaving cancellation recognisable
func failed(err error) error {
	if err == nil || errors.Is(err, ErrTranscriptionFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
}
