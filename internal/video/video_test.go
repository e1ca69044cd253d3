package video

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseProbe(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
			 "r_frame_rate": "30000/1001", "avg_frame_rate": "30000/1001", "nb_frames": "300"}
		],
		"format": {"duration": "10.010000"}
	}`)

	info, err := parseProbe("https://cdn.example.com/v.mp4", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 || info.Codec != "h264" {
		t.Errorf("unexpected geometry %+v", info)
	}
	if math.Abs(info.FPS-29.97) > 0.01 {
		t.Errorf("expected ~29.97 fps, got %v", info.FPS)
	}
	if info.Frames != 300 || !info.HasAudio || info.Duration != 10.01 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestParseProbeWithoutVideo(t *testing.T) {
	_, err := parseProbe("a.mp3", []byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`))
	if err == nil {
		t.Error("expected error for audio-only source")
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{
		"25":         25,
		"30/1":       30,
		"24000/1001": 24000.0 / 1001.0,
		"0/0":        0,
		"":           0,
	}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/a.mp4": true,
		"http://example.com/a.mp4":  true,
		"/tmp/a.mp4":                false,
		"clip.mp4":                  false,
		`C:\videos\a.mp4`:           false,
	}
	for in, want := range tests {
		if got := IsRemote(in); got != want {
			t.Errorf("IsRemote(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProbeMissingFile(t *testing.T) {
	_, err := Probe(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		encoder string
		wantErr bool
	}{
		{"", CodecH264, "libx264", false},
		{"H264", CodecH264, "libx264", false},
		{"hevc", CodecH265, "libx265", false},
		{"vp9", CodecVP9, "libvpx-vp9", false},
		{"prores", CodecProRes, "prores_ks", false},
		{"gif", "", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCodec(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want || got.Encoder() != tt.encoder {
			t.Errorf("ParseCodec(%q) = %q (%s)", tt.in, got, got.Encoder())
		}
	}
}

func TestCodecExt(t *testing.T) {
	for c, want := range map[Codec]string{CodecH264: ".mp4", CodecH265: ".mp4", CodecVP9: ".webm", CodecProRes: ".mov"} {
		if got := c.Ext(); got != want {
			t.Errorf("%s.Ext() = %q, want %q", c, got, want)
		}
	}
}

func TestOutputArgs(t *testing.T) {
	opts := EncodeOptions{
		Source: "in.mp4", OutputPath: "out.mp4", Codec: CodecH264,
		FPS: 30, Width: 1280, Height: 720, FrameCount: 90, HasAudio: true,
	}
	args := outputArgs(opts)
	if args["c:v"] != "libx264" || args["frames:v"] != 90 || args["t"] != "3.000000" {
		t.Errorf("unexpected video args %v", args)
	}
	if args["c:a"] != "copy" {
		t.Errorf("expected audio copy, got %v", args["c:a"])
	}

	opts.OutputPath = "frame.png"
	opts.FrameCount = 1
	still := outputArgs(opts)
	if _, ok := still["c:v"]; ok || still["frames:v"] != 1 {
		t.Errorf("unexpected still args %v", still)
	}
}

func TestEncodeOptionsValidate(t *testing.T) {
	good := EncodeOptions{Source: "a", OutputPath: "b", FPS: 30, Width: 2, Height: 2, FrameCount: 1}
	if err := good.validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := good
	bad.FrameCount = 0
	if bad.validate() == nil {
		t.Error("expected error for empty window")
	}
	bad = good
	bad.StartFrame = -1
	if bad.validate() == nil {
		t.Error("expected error for negative start")
	}
}

func TestBurnCommandLine(t *testing.T) {
	opts := EncodeOptions{
		Source: "in.mp4", OutputPath: "out.mp4", Codec: CodecVP9,
		FPS: 25, Width: 640, Height: 360, StartFrame: 50, FrameCount: 25,
	}
	in := (&Encoder{}).input(opts)
	stream := (&Encoder{}).output(in, burnASS(fitFrame(in.Video(), opts), "overlay.ass"), opts)
	line := strings.Join(stream.GetArgs(), " ")

	for _, want := range []string{"-ss 2.000000", "fps=25", "pad=640", "libvpx-vp9", "-frames:v 25", "out.mp4"} {
		if !strings.Contains(line, want) {
			t.Errorf("command line missing %q: %s", want, line)
		}
	}
}

func TestBurnFilterEscapesScriptPath(t *testing.T) {
	opts := EncodeOptions{
		Source: "in.mp4", OutputPath: "out.mp4", Codec: CodecH264,
		FPS: 30, Width: 1280, Height: 720, FrameCount: 30,
	}
	tests := []struct {
		path string
		want string
	}{
		{"overlay.ass", `ass=filename=overlay.ass`},
		{"/tmp/a b:c/overlay.ass", `ass=filename=/tmp/a b\\:c/overlay.ass`},
		{`C:\Temp\overlay.ass`, `ass=filename=C\\:\\\\Temp\\\\overlay.ass`},
		{"/tmp/it's/overlay.ass", `ass=filename=/tmp/it\\\'s/overlay.ass`},
	}
	for _, tt := range tests {
		in := (&Encoder{}).input(opts)
		line := strings.Join((&Encoder{}).output(in, burnASS(fitFrame(in.Video(), opts), tt.path), opts).GetArgs(), " ")
		if !strings.Contains(line, tt.want) {
			t.Errorf("path %q: command line missing %q: %s", tt.path, tt.want, line)
		}
	}
}

func TestIsImagePath(t *testing.T) {
	if !IsImagePath("a.PNG") || !IsImagePath("b.jpg") || IsImagePath("c.mp4") {
		t.Error("unexpected image path classification")
	}
}
