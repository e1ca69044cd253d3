// Package video adapts the external encoding engine: probing sources,
// burning overlays onto frames and pulling audio for transcription.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"

	vidio "github.com/AlexEidt/Vidio"

	ffmpegbin "github.com/mgpai22/capsync/internal/ffmpeg"
)

// ErrSourceNotFound reports a local source path that does not exist.
var ErrSourceNotFound = errors.New("video source not found")

// video file information
type Info struct {
	Source   string  `json:"source"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
	Frames   int     `json:"frames"`
	Codec    string  `json:"codec"`
	HasAudio bool    `json:"hasAudio"`
}

// reports whether source is fetched over the network rather than read from disk
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "rtmp", "rtsp", "s3", "gs":
		return true
	}
	return false
}

// Probe reads stream geometry, rate and duration. Local files go through
// Vidio; remote sources are probed with ffprobe directly.
func Probe(ctx context.Context, source string) (*Info, error) {
	if IsRemote(source) {
		return probeRemote(ctx, source)
	}

	if _, err := os.Stat(source); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err := vidio.NewVideo(source)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", source, err)
	}
	defer v.Close()

	return &Info{
		Source:   source,
		Width:    v.Width(),
		Height:   v.Height(),
		FPS:      v.FPS(),
		Duration: v.Duration(),
		Frames:   v.Frames(),
		Codec:    v.Codec(),
		HasAudio: v.HasStreams(),
	}, nil
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func probeRemote(ctx context.Context, source string) (*Info, error) {
	paths, err := ffmpegbin.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, paths.FFprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		source,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(source, out.Bytes())
}

func parseProbe(source string, data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{Source: source}
	foundVideo := false
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.Codec = s.CodecName
			info.FPS = parseRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseRate(s.RFrameRate)
			}
			info.Frames, _ = strconv.Atoi(s.NbFrames)
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, fmt.Errorf("%s has no video stream", source)
	}

	if probe.Format.Duration != "" {
		d, err := strconv.ParseFloat(probe.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration: %w", err)
		}
		info.Duration = d
	}
	if info.Frames == 0 && info.FPS > 0 {
		info.Frames = int(info.Duration * info.FPS)
	}
	return info, nil
}

// "30000/1001" or "25"
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
