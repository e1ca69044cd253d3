// Package config loads capsync settings from an optional YAML file with
// environment overrides for secrets and binary locations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/remote"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/transcribe"
	"github.com/mgpai22/capsync/internal/video"
)

const DefaultPath = "capsync.yaml"

// environment variables read by Load
const (
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvFFmpegPath   = "CAPSYNC_FFMPEG_PATH"
	EnvFFprobePath  = "CAPSYNC_FFPROBE_PATH"
	EnvSTTURL       = "CAPSYNC_STT_URL"
	EnvChromePath   = "CAPSYNC_CHROME_PATH"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Render        RenderConfig        `yaml:"render"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Translation   TranslationConfig   `yaml:"translation"`
	Storage       StorageConfig       `yaml:"storage"`
	FFmpeg        FFmpegConfig        `yaml:"ffmpeg"`
	Keys          KeysConfig          `yaml:"-"`

	// values Validate replaced with a default, for the caller to log
	Warnings []string `yaml:"-"`
}

type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	MaxUploadMB            int    `yaml:"max_upload_mb"`
	TempDir                string `yaml:"temp_dir"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	MaxAgeHours            int    `yaml:"max_age_hours"`
}

type RenderConfig struct {
	FPS        int    `yaml:"fps"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Codec      string `yaml:"codec"`
	Style      string `yaml:"style"`
	Engine     string `yaml:"engine"`
	RemoteURL  string `yaml:"remote_url"`
	ChromePath string `yaml:"chrome_path"`
}

type TranscriptionConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	ServiceURL    string  `yaml:"service_url"`
	ChunkDuration float64 `yaml:"chunk_duration_seconds"`
	Concurrency   int     `yaml:"concurrency"`
}

type TranslationConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

type StorageConfig struct {
	Database string `yaml:"database"`
}

type FFmpegConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path"`
	FFprobePath   string `yaml:"ffprobe_path"`
	AllowDownload *bool  `yaml:"allow_download,omitempty"` // nil = true
}

// API keys come only from the environment
type KeysConfig struct {
	Gemini    string
	OpenAI    string
	Anthropic string
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   8000,
			MaxUploadMB:            1024,
			TempDir:                filepath.Join(os.TempDir(), "capsync"),
			CleanupIntervalMinutes: 30,
			MaxAgeHours:            6,
		},
		Render: RenderConfig{
			FPS:    composition.DefaultFPS,
			Width:  composition.DefaultWidth,
			Height: composition.DefaultHeight,
			Codec:  string(video.DefaultCodec),
			Style:  string(style.DefaultKey),
			Engine: string(render.EngineASS),
		},
		Transcription: TranscriptionConfig{
			Provider:    string(transcribe.ProviderRemote),
			ServiceURL:  remote.DefaultBaseURL,
			Concurrency: 3,
		},
		Translation: TranslationConfig{
			Provider:    "gemini",
			BatchSize:   50,
			Concurrency: 3,
		},
		Storage: StorageConfig{
			Database: defaultDatabasePath(),
		},
	}
}

func defaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "capsync.db"
	}
	return filepath.Join(dir, "capsync", "capsync.db")
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.Keys = KeysConfig{
		Gemini:    getenv(EnvGeminiKey),
		OpenAI:    getenv(EnvOpenAIKey),
		Anthropic: getenv(EnvAnthropicKey),
	}
	if v := getenv(EnvFFmpegPath); v != "" {
		c.FFmpeg.FFmpegPath = v
	}
	if v := getenv(EnvFFprobePath); v != "" {
		c.FFmpeg.FFprobePath = v
	}
	if v := getenv(EnvSTTURL); v != "" {
		c.Transcription.ServiceURL = v
	}
	if v := getenv(EnvChromePath); v != "" {
		c.Render.ChromePath = v
	}
}

// Validate rejects values no command could use. An unknown render.style
// degrades to the default style and is reported in Warnings.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	in := composition.Input{FPS: c.Render.FPS, Width: c.Render.Width, Height: c.Render.Height}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if _, err := video.ParseCodec(c.Render.Codec); err != nil {
		return fmt.Errorf("render.codec: %w", err)
	}
	if _, err := render.ParseEngine(c.Render.Engine); err != nil {
		return fmt.Errorf("render.engine: %w", err)
	}
	if _, ok := style.ParseKey(c.Render.Style); !ok && strings.TrimSpace(c.Render.Style) != "" {
		c.Warnings = append(c.Warnings, fmt.Sprintf(
			"render.style: %v; using %s", style.UnknownKeyError(c.Render.Style), style.DefaultKey))
		c.Render.Style = string(style.DefaultKey)
	}
	if _, err := transcribe.ParseProvider(c.Transcription.Provider); err != nil {
		return fmt.Errorf("transcription.provider: %w", err)
	}
	return nil
}

// APIKey returns the key for a hosted provider name.
func (c *Config) APIKey(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return c.Keys.Gemini
	case "openai":
		return c.Keys.OpenAI
	case "anthropic":
		return c.Keys.Anthropic
	}
	return ""
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Server.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Server.MaxAgeHours) * time.Hour
}

func (c *Config) AllowDownload() bool {
	return c.FFmpeg.AllowDownload == nil || *c.FFmpeg.AllowDownload
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
