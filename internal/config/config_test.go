package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capsync.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Render.FPS != 30 || cfg.Render.Width != 1280 || cfg.Render.Height != 720 {
		t.Errorf("render defaults = %+v", cfg.Render)
	}
	if cfg.Render.Style != "bottom-centered" || cfg.Render.Codec != "h264" {
		t.Errorf("style/codec defaults = %q/%q", cfg.Render.Style, cfg.Render.Codec)
	}
	if !cfg.AllowDownload() {
		t.Error("downloads should be allowed by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
render:
  fps: 25
  style: karaoke
  codec: vp9
ffmpeg:
  allow_download: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Render.FPS != 25 || cfg.Render.Style != "karaoke" || cfg.Render.Codec != "vp9" {
		t.Errorf("loaded = %+v", cfg)
	}
	if cfg.Render.Width != 1280 {
		t.Errorf("unset fields should keep defaults, width = %d", cfg.Render.Width)
	}
	if cfg.AllowDownload() {
		t.Error("allow_download: false was ignored")
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"odd width":    "render:\n  width: 641\n",
		"codec":        "render:\n  codec: mpeg2\n",
		"engine":       "render:\n  engine: gpu\n",
		"provider":     "transcription:\n  provider: deepgram\n",
		"syntax error": "render: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadUnknownStyleFallsBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, "render:\n  style: neon\n"))
	if err != nil {
		t.Fatalf("unknown style should not fail Load: %v", err)
	}
	if cfg.Render.Style != "bottom-centered" {
		t.Errorf("style = %q, want bottom-centered", cfg.Render.Style)
	}
	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "neon") {
		t.Errorf("warnings = %v", cfg.Warnings)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("explicit missing config should fail")
	}

	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(""); err != nil {
		t.Errorf("missing default config should be fine: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvGeminiKey:  "g-key",
		EnvOpenAIKey:  "o-key",
		EnvFFmpegPath: "/opt/ffmpeg",
		EnvSTTURL:     "http://stt:9000",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.APIKey("Gemini") != "g-key" || cfg.APIKey("openai") != "o-key" || cfg.APIKey("anthropic") != "" {
		t.Errorf("keys = %+v", cfg.Keys)
	}
	if cfg.FFmpeg.FFmpegPath != "/opt/ffmpeg" || cfg.FFmpeg.FFprobePath != "" {
		t.Errorf("ffmpeg = %+v", cfg.FFmpeg)
	}
	if !strings.HasPrefix(cfg.Transcription.ServiceURL, "http://stt") {
		t.Errorf("service url = %q", cfg.Transcription.ServiceURL)
	}
}
