package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/composition"
	"github.com/mgpai22/capsync/internal/preview"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/video"
)

func (s *Server) session(c *fiber.Ctx) (*preview.Session, error) {
	sess, err := s.cfg.Sessions.Get(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return sess, nil
}

func (s *Server) sessionDir(id string) string {
	return filepath.Join(sessionsDir(s.cfg.TempDir), id)
}

func (s *Server) removeSessionFiles(id string) {
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		s.logger.Warnw("failed to remove session files", "session", id, "error", err)
	}
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Sessions.List())
}

// POST /sessions: optional multipart "file" plus fps, width, height and style
// form values
func (s *Server) createSession(c *fiber.Ctx) error {
	fps, err := formInt(c, "fps")
	if err != nil {
		return err
	}
	width, err := formInt(c, "width")
	if err != nil {
		return err
	}
	height, err := formInt(c, "height")
	if err != nil {
		return err
	}

	sess := s.cfg.Sessions.Create()
	discard := func() {
		s.cfg.Sessions.Delete(sess.ID)
		s.removeSessionFiles(sess.ID)
	}

	if _, ferr := c.FormFile("file"); ferr == nil {
		path, err := s.saveUpload(c, s.sessionDir(sess.ID), "video")
		if err != nil {
			discard()
			return err
		}
		info, err := s.cfg.Probe(c.UserContext(), path)
		if err != nil {
			discard()
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("unreadable video: %v", err))
		}
		sess.SetVideo(path, info.Duration)
		if width == 0 && height == 0 {
			width, height = info.Width&^1, info.Height&^1
		}
	}

	if err := sess.SetGeometry(fps, width, height); err != nil {
		discard()
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if key := c.FormValue("style"); key != "" {
		sess.SetStyle(style.Key(key))
	}

	s.logger.Infow("preview session created", "session", sess.ID, "video", sess.Video())
	return c.Status(fiber.StatusCreated).JSON(sess.State())
}

func (s *Server) getSession(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.State())
}

// DELETE /sessions/:id resets the session, abandons any pending
// transcription and removes its files
func (s *Server) deleteSession(c *fiber.Ctx) error {
	sess, err := s.cfg.Sessions.Delete(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	sess.Reset()
	s.removeSessionFiles(sess.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

type styleRequest struct {
	Style string `json:"style"`
}

func (s *Server) setStyle(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req styleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid style request")
	}
	sess.SetStyle(style.Key(req.Style))
	return c.JSON(sess.State())
}

// PUT /sessions/:id/segments: a captions array or {"segments": [...]}
func (s *Server) setSegments(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	segs, err := caption.Parse(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	sess.SetSegments(segs)
	return c.JSON(sess.State())
}

// POST /sessions/:id/transcribe starts a background transcription and
// answers 202 immediately. The result replaces the captions only if the
// session was not reset or edited in the meantime.
func (s *Server) transcribeSession(c *fiber.Ctx) error {
	if s.cfg.Transcriber == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "transcription is not configured")
	}
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	ticket, err := sess.BeginTranscription()
	if errors.Is(err, preview.ErrNoVideo) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}

	go s.runTranscription(sess, ticket, sess.Video())
	return c.Status(fiber.StatusAccepted).JSON(sess.State())
}

func (s *Server) runTranscription(sess *preview.Session, ticket preview.Ticket, path string) {
	log := s.logger.With("session", sess.ID)

	res, err := s.cfg.Transcriber.Transcribe(s.ctx, path)
	if err != nil {
		sess.Fail(ticket)
		log.Errorw("session transcription failed", "error", err)
		return
	}
	if err := sess.Apply(ticket, res.Segments); err != nil {
		log.Infow("discarded transcription result", "reason", err)
		return
	}
	log.Infow("session transcribed", "segments", len(res.Segments))
}

func (s *Server) frameParam(c *fiber.Ctx) (int, error) {
	n, err := c.ParamsInt("frame")
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "frame must be a non-negative integer")
	}
	return n, nil
}

// GET /sessions/:id/frames/:frame answers the overlay set drawn on that frame
func (s *Server) frame(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	n, err := s.frameParam(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Frame(n))
}

// GET /sessions/:id/frames/:frame/image renders the composed frame as PNG
func (s *Server) frameImage(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	n, err := s.frameParam(c)
	if err != nil {
		return err
	}
	in := sess.Input()
	if in.VideoSource == "" {
		return fiber.NewError(fiber.StatusConflict, preview.ErrNoVideo.Error())
	}

	id := uuid.NewString()
	out := filepath.Join(s.sessionDir(sess.ID), fmt.Sprintf("frame_%d_%s.png", n, id[:8]))
	res, err := s.cfg.Renderer.Still(c.UserContext(), s.jobFor(id, in), n, out)
	if err != nil {
		return s.renderFailed(c, id, err)
	}
	defer os.Remove(res.OutputPath)

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		return err
	}
	c.Type("png")
	return c.Send(data)
}

type exportRequest struct {
	Codec      string `json:"codec"`
	Engine     string `json:"engine"`
	StartFrame int    `json:"startFrame"`
	FrameCount int    `json:"frameCount"`
}

// POST /sessions/:id/export renders the session as it stands when the
// request arrives; later edits do not affect the running export
func (s *Server) export(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req exportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid export request")
		}
	}

	in := sess.Input()
	if in.VideoSource == "" {
		return fiber.NewError(fiber.StatusConflict, preview.ErrNoVideo.Error())
	}

	id := uuid.NewString()
	job := s.jobFor(id, in)
	if strings.TrimSpace(req.Codec) != "" {
		codec, err := video.ParseCodec(req.Codec)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		job.Codec = codec
	}
	if strings.TrimSpace(req.Engine) != "" {
		engine, err := render.ParseEngine(req.Engine)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		job.Engine = engine
	}
	job.StartFrame = req.StartFrame
	job.FrameCount = req.FrameCount
	job.OutputPath = filepath.Join(s.sessionDir(sess.ID), "export_"+id[:8]+job.Codec.Ext())

	res, err := s.cfg.Renderer.Run(c.UserContext(), job)
	if err != nil {
		return s.renderFailed(c, id, err)
	}
	return sendAndRemove(c, res.OutputPath, "captioned"+job.Codec.Ext())
}

func (s *Server) jobFor(id string, in composition.Input) render.Job {
	segs := in.Segments
	if segs == nil {
		segs = []caption.Segment{}
	}
	return render.Job{
		ID:          id,
		VideoSource: in.VideoSource,
		Segments:    segs,
		Style:       in.Style,
		FPS:         in.FPS,
		Width:       in.Width,
		Height:      in.Height,
		Codec:       s.codec(),
		Engine:      s.cfg.Engine,
	}
}

// zero when the field is absent
func formInt(c *fiber.Ctx, key string) (int, error) {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return n, nil
}
