package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mgpai22/capsync/internal/audio"
	"github.com/mgpai22/capsync/internal/caption"
	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/video"
)

// MediaTranscriber prepares arbitrary media for a hosted speech model. Video
// inputs have their soundtrack extracted; long audio is split into chunks
// transcribed concurrently and stitched back on the source timeline.
type MediaTranscriber struct {
	inner   Transcriber
	options Options
	logger  *logging.Logger
}

func NewMediaTranscriber(inner Transcriber, opts Options) *MediaTranscriber {
	return &MediaTranscriber{
		inner:   inner,
		options: opts,
		logger:  logging.OrNop(opts.Logger),
	}
}

func (t *MediaTranscriber) Transcribe(ctx context.Context, mediaPath string) (*Result, error) {
	if _, err := os.Stat(mediaPath); err != nil {
		return nil, failed(fmt.Errorf("media file not found: %s", mediaPath))
	}

	tmpDir, err := os.MkdirTemp("", "capsync-audio-*")
	if err != nil {
		return nil, failed(fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	audioPath := mediaPath
	if !audio.IsAudioFile(mediaPath) {
		audioPath, err = t.extract(ctx, mediaPath, tmpDir)
		if err != nil {
			return nil, failed(err)
		}
	}

	if t.options.ChunkDuration <= 0 {
		res, err := t.inner.Transcribe(ctx, audioPath)
		if err != nil {
			return nil, failed(err)
		}
		res.Segments = finalize(res.Segments)
		return res, nil
	}

	chunks, err := audio.Chunk(ctx, audioPath, t.options.ChunkDuration, filepath.Join(tmpDir, "chunks"), t.options.Concurrency)
	if err != nil {
		return nil, failed(fmt.Errorf("failed to split audio: %w", err))
	}
	defer audio.Cleanup(chunks)

	t.logger.Infow("transcribing in chunks", "chunks", len(chunks), "chunk_seconds", t.options.ChunkDuration)

	res, err := transcribeChunks(ctx, t.inner, chunks, t.options.Concurrency)
	if err != nil {
		return nil, failed(err)
	}
	res.Language = t.options.Language
	res.Segments = finalize(res.Segments)
	return res, nil
}

func (t *MediaTranscriber) extract(ctx context.Context, mediaPath, dir string) (string, error) {
	paths, err := ffmpegbin.Ensure(ctx)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	out := filepath.Join(dir, base+".mp3")
	opts := video.ExtractAudioOptions{Format: "mp3", SampleRate: 16000, Channels: 1, Bitrate: "64k"}

	t.logger.Infow("extracting audio", "source", mediaPath)
	enc := video.NewEncoder(paths.FFmpeg, t.logger)
	if err := enc.ExtractAudio(ctx, mediaPath, out, opts); err != nil {
		return "", fmt.Errorf("failed to extract audio: %w", err)
	}
	return out, nil
}

// holds the result of transcribing a chunk
type chunkResult struct {
	Index    int
	Segments []caption.Segment
	Error    error
}

// transcribes chunks with up to concurrency workers, shifting each chunk's
// segments by its offset. The first failure cancels the remaining work.
func transcribeChunks(ctx context.Context, inner Transcriber, chunks []audio.ChunkInfo, concurrency int) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{}, nil
	}
	if concurrency <= 0 {
		concurrency = 3
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workChan := make(chan audio.ChunkInfo)
	resultChan := make(chan chunkResult, len(chunks))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range workChan {
				if ctx.Err() != nil {
					return
				}
				segs, err := transcribeChunk(ctx, inner, chunk)
				if err != nil {
					cancel()
				}
				resultChan <- chunkResult{Index: chunk.Index, Segments: segs, Error: err}
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, chunk := range chunks {
			select {
			case <-ctx.Done():
				return
			case workChan <- chunk:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]chunkResult, 0, len(chunks))
	var firstErr error
	for r := range resultChan {
		if r.Error != nil {
			// a chunk cut short by cancellation is not the root cause
			if firstErr == nil || (errors.Is(firstErr, context.Canceled) && !errors.Is(r.Error, context.Canceled)) {
				firstErr = fmt.Errorf("chunk %d failed: %w", r.Index, r.Error)
			}
			continue
		}
		results = append(results, r)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})

	var all []caption.Segment
	for _, r := range results {
		all = append(all, r.Segments...)
	}

	return &Result{
		Segments: all,
		Duration: chunks[len(chunks)-1].EndTime,
	}, nil
}

func transcribeChunk(ctx context.Context, inner Transcriber, chunk audio.ChunkInfo) ([]caption.Segment, error) {
	res, err := inner.Transcribe(ctx, chunk.Path)
	if err != nil {
		return nil, err
	}

	out := make([]caption.Segment, len(res.Segments))
	for i, seg := range res.Segments {
		out[i] = caption.Segment{
			Start: seg.Start + chunk.StartTime,
			End:   seg.End + chunk.StartTime,
			Text:  seg.Text,
		}
	}
	return out, nil
}
