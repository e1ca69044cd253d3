// Package audio prepares extracted soundtracks for speech-to-text providers:
// probing duration and splitting into upload-sized chunks.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
)

// audio chunk info; times are offsets into the source in seconds
type ChunkInfo struct {
	Path      string
	Index     int
	StartTime float64
	EndTime   float64
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// duration of an audio/video file in seconds
func GetDuration(ctx context.Context, filePath string) (float64, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	paths, err := ffmpegbin.Ensure(ctx)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, paths.FFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseDuration(out.Bytes())
}

func parseDuration(data []byte) (float64, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return seconds, nil
}

// splits [0, total) into consecutive windows of at most chunk seconds
func planChunks(base, ext, outputDir string, total, chunk float64) []ChunkInfo {
	var chunks []ChunkInfo
	for i := 0; ; i++ {
		start := float64(i) * chunk
		if start >= total {
			break
		}
		end := start + chunk
		if end > total {
			end = total
		}
		chunks = append(chunks, ChunkInfo{
			Path:      filepath.Join(outputDir, fmt.Sprintf("%s_chunk_%03d%s", base, i, ext)),
			Index:     i,
			StartTime: start,
			EndTime:   end,
		})
	}
	return chunks
}

// Chunk splits audioPath into pieces of chunkSeconds using up to
// concurrency ffmpeg processes (10 when concurrency <= 0).
func Chunk(ctx context.Context, audioPath string, chunkSeconds float64, outputDir string, concurrency int) ([]ChunkInfo, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", chunkSeconds)
	}
	if concurrency <= 0 {
		concurrency = 10
	}

	total, err := GetDuration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio duration: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths, err := ffmpegbin.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	ext := filepath.Ext(audioPath)
	base := strings.TrimSuffix(filepath.Base(audioPath), ext)
	jobs := planChunks(base, ext, outputDir, total, chunkSeconds)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		chunks   []ChunkInfo
		firstErr error
		wg       sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for _, job := range jobs {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(j ChunkInfo) {
				defer wg.Done()
				defer func() { <-sem }()

				cmd := ffmpeg.Input(audioPath).
					Output(j.Path, ffmpeg.KwArgs{
						"ss": j.StartTime,
						"t":  j.EndTime - j.StartTime,
						"c":  "copy",
					}).
					OverWriteOutput().
					SetFfmpegPath(paths.FFmpeg).
					Compile()
				err := ffmpegbin.Run(ctx, cmd)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("failed to create chunk %d: %w", j.Index, err)
						cancel()
					}
					return
				}
				chunks = append(chunks, j)
			}(job)
		}
	}
	wg.Wait()

	if firstErr != nil {
		_ = Cleanup(chunks)
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		_ = Cleanup(chunks)
		return nil, err
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

var (
	videoExts = map[string]bool{
		".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".wmv": true, ".flv": true,
		".webm": true, ".m4v": true, ".mpeg": true, ".mpg": true, ".3gp": true,
	}
	audioExts = map[string]bool{
		".mp3": true, ".wav": true, ".aac": true, ".flac": true, ".ogg": true,
		".m4a": true, ".wma": true, ".aiff": true, ".opus": true,
	}
)

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

// removes all chunk files
func Cleanup(chunks []ChunkInfo) error {
	var lastErr error
	for _, chunk := range chunks {
		if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}
