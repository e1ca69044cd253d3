package video

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Codec string

const (
	CodecH264   Codec = "h264"
	CodecH265   Codec = "h265"
	CodecVP9    Codec = "vp9"
	CodecProRes Codec = "prores"

	DefaultCodec = CodecH264
)

// ffmpeg encoder and pixel format for each codec
var codecEncoders = map[Codec]struct {
	encoder  string
	pixFmt   string
	audio    string
	extraArg map[string]interface{}
}{
	CodecH264:   {"libx264", "yuv420p", "copy", map[string]interface{}{"preset": "medium", "crf": 18, "movflags": "+faststart"}},
	CodecH265:   {"libx265", "yuv420p", "copy", map[string]interface{}{"preset": "medium", "crf": 22, "tag:v": "hvc1"}},
	CodecVP9:    {"libvpx-vp9", "yuv420p", "libopus", map[string]interface{}{"crf": 32, "b:v": 0}},
	CodecProRes: {"prores_ks", "yuv422p10le", "pcm_s16le", map[string]interface{}{"profile:v": 3}},
}

func ParseCodec(s string) (Codec, error) {
	c := Codec(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return DefaultCodec, nil
	case "hevc":
		return CodecH265, nil
	case "avc":
		return CodecH264, nil
	}
	if _, ok := codecEncoders[c]; !ok {
		return "", fmt.Errorf("unsupported codec %q (want h264, h265, vp9 or prores)", s)
	}
	return c, nil
}

func (c Codec) Encoder() string {
	return codecEncoders[c].encoder
}

// default container extension for the codec
func (c Codec) Ext() string {
	switch c {
	case CodecVP9:
		return ".webm"
	case CodecProRes:
		return ".mov"
	}
	return ".mp4"
}

// IsImagePath reports whether the output is a still image rather than a video.
func IsImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
