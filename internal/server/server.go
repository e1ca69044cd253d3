// Package server exposes transcription, rendering and interactive preview
// sessions over HTTP and a websocket frame stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/mgpai22/capsync/internal/logging"
	"github.com/mgpai22/capsync/internal/preview"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/storage"
	"github.com/mgpai22/capsync/internal/transcribe"
	"github.com/mgpai22/capsync/internal/video"
)

// Renderer runs export and still jobs; *render.Orchestrator in production.
type Renderer interface {
	Run(ctx context.Context, job render.Job) (*render.Result, error)
	Still(ctx context.Context, job render.Job, frame int, out string) (*render.Result, error)
}

// JobStore is the render history; *storage.JobDB in production.
type JobStore interface {
	Get(ctx context.Context, jobID string) (*storage.Record, error)
	List(ctx context.Context, limit int) ([]storage.Record, error)
}

type Config struct {
	Renderer    Renderer
	Transcriber transcribe.Transcriber
	Probe       render.ProbeFunc
	Jobs        JobStore
	Sessions    *preview.Store

	TempDir     string
	MaxUploadMB int
	Codec       video.Codec
	Engine      render.Engine

	// request logging; off in tests
	AccessLog bool
	Logger    *logging.Logger
}

type Server struct {
	app    *fiber.App
	cfg    Config
	logger *logging.Logger

	// parent of background transcriptions; cancelled by Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) (*Server, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("server needs a renderer")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = preview.NewStore()
	}
	if cfg.Probe == nil {
		cfg.Probe = video.Probe
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 1024
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "capsync")
	}
	for _, dir := range []string{uploadsDir(cfg.TempDir), sessionsDir(cfg.TempDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		ctx:    ctx,
		cancel: cancel,
	}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.app.Use(recover.New())
	if cfg.AccessLog {
		s.app.Use(fiberlogger.New())
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/styles", s.styles)
	s.app.Get("/jobs", s.listJobs)
	s.app.Get("/jobs/:id", s.getJob)

	s.app.Post("/transcribe", s.transcribe)
	s.app.Post("/render", s.render)

	s.app.Get("/sessions", s.listSessions)
	s.app.Post("/sessions", s.createSession)
	s.app.Get("/sessions/:id", s.getSession)
	s.app.Delete("/sessions/:id", s.deleteSession)
	s.app.Put("/sessions/:id/style", s.setStyle)
	s.app.Put("/sessions/:id/segments", s.setSegments)
	s.app.Post("/sessions/:id/transcribe", s.transcribeSession)
	s.app.Get("/sessions/:id/frames/:frame", s.frame)
	s.app.Get("/sessions/:id/frames/:frame/image", s.frameImage)
	s.app.Post("/sessions/:id/export", s.export)

	s.app.Get("/ws/sessions/:id/preview", s.previewUpgrade, websocket.New(s.previewStream))
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Sessions() *preview.Store {
	return s.cfg.Sessions
}

// ExpireSessions drops idle sessions and their files; used as a cleanup hook.
func (s *Server) ExpireSessions(maxAge time.Duration) {
	for _, sess := range s.cfg.Sessions.Expire(maxAge) {
		sess.Reset()
		s.removeSessionFiles(sess.ID)
		s.logger.Debugw("expired preview session", "session", sess.ID)
	}
}

// KeepPath reports whether path lies in the directory of a live session.
// The cleanup sweep uses it so session videos outlive their upload mtime.
func (s *Server) KeepPath(path string) bool {
	rel, err := filepath.Rel(sessionsDir(s.cfg.TempDir), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	id := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	_, err = s.cfg.Sessions.Get(id)
	return err == nil
}

func (s *Server) Listen(addr string) error {
	s.logger.Infow("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and abandons background transcriptions.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func uploadsDir(tempDir string) string {
	return filepath.Join(tempDir, "uploads")
}

func sessionsDir(tempDir string) string {
	return filepath.Join(tempDir, "sessions")
}
