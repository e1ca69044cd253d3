package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mgpai22/capsync/internal/caption"
	"github.com/mgpai22/capsync/internal/render"
	"github.com/mgpai22/capsync/internal/storage"
	"github.com/mgpai22/capsync/internal/style"
	"github.com/mgpai22/capsync/internal/video"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.cfg.Sessions.Len(),
	})
}

type styleInfo struct {
	Key   style.Key `json:"key"`
	Label string    `json:"label"`
}

func (s *Server) styles(c *fiber.Ctx) error {
	out := []styleInfo{}
	for _, st := range style.All() {
		out = append(out, styleInfo{Key: st.Key(), Label: st.Label()})
	}
	return c.JSON(fiber.Map{"styles": out, "default": style.DefaultKey})
}

func (s *Server) listJobs(c *fiber.Ctx) error {
	if s.cfg.Jobs == nil {
		return c.JSON([]storage.Record{})
	}
	jobs, err := s.cfg.Jobs.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []storage.Record{}
	}
	return c.JSON(jobs)
}

func (s *Server) getJob(c *fiber.Ctx) error {
	if s.cfg.Jobs == nil {
		return fiber.NewError(fiber.StatusNotFound, "job history is disabled")
	}
	rec, err := s.cfg.Jobs.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

// POST /transcribe: multipart "file", answers {"segments": [...]}
func (s *Server) transcribe(c *fiber.Ctx) error {
	if s.cfg.Transcriber == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "transcription is not configured")
	}
	path, err := s.saveUpload(c, uploadsDir(s.cfg.TempDir), uuid.NewString())
	if err != nil {
		return err
	}
	defer os.Remove(path)

	res, err := s.cfg.Transcriber.Transcribe(c.UserContext(), path)
	if err != nil {
		s.logger.Errorw("transcription failed", "file", path, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "transcription failed"})
	}

	segs := res.Segments
	if segs == nil {
		segs = []caption.Segment{}
	}
	return c.JSON(fiber.Map{
		"segments": segs,
		"language": res.Language,
		"duration": res.Duration,
	})
}

// POST /render: multipart "file", "segments_json" and "style"; answers with
// the captioned video as an attachment
func (s *Server) render(c *fiber.Ctx) error {
	segs, err := caption.Parse([]byte(c.FormValue("segments_json")))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid segments_json", "detail": err.Error()})
	}

	id := uuid.NewString()
	dir := uploadsDir(s.cfg.TempDir)
	input, err := s.saveUpload(c, dir, id)
	if err != nil {
		return err
	}
	defer os.Remove(input)

	key, _ := style.ParseKey(c.FormValue("style", string(style.DefaultKey)))
	job := render.Job{
		ID:          id,
		VideoSource: input,
		Segments:    segs,
		Style:       key,
		OutputPath:  filepath.Join(dir, id+"_captioned"+s.codec().Ext()),
		Codec:       s.codec(),
		Engine:      s.cfg.Engine,
	}

	res, err := s.cfg.Renderer.Run(c.UserContext(), job)
	if err != nil {
		return s.renderFailed(c, id, err)
	}
	return sendAndRemove(c, res.OutputPath, "captioned"+s.codec().Ext())
}

// streams path as an attachment; the file is deleted once the body has
// been written or the connection drops
func sendAndRemove(c *fiber.Ctx, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	c.Attachment(name)
	c.Context().SetBodyStream(&removeOnClose{File: f}, int(info.Size()))
	return nil
}

// fasthttp closes a body stream that implements io.Closer after sending it
type removeOnClose struct {
	*os.File
}

func (r *removeOnClose) Close() error {
	err := r.File.Close()
	os.Remove(r.File.Name())
	return err
}

func (s *Server) renderFailed(c *fiber.Ctx, id string, err error) error {
	s.logger.Errorw("render failed", "job", id, "error", err)
	return c.Status(renderStatus(err)).JSON(fiber.Map{
		"error":  "render failed",
		"kind":   render.KindOf(err),
		"detail": err.Error(),
	})
}

func renderStatus(err error) int {
	switch render.KindOf(err) {
	case render.KindInput:
		return fiber.StatusBadRequest
	case render.KindCollaborator:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func (s *Server) codec() video.Codec {
	if s.cfg.Codec == "" {
		return video.DefaultCodec
	}
	return s.cfg.Codec
}

// saves the multipart "file" field as dir/<name><ext>
func (s *Server) saveUpload(c *fiber.Ctx, dir, name string) (string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "no file uploaded")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		ext = ".mp4"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+ext)
	if err := c.SaveFile(file, path); err != nil {
		s.logger.Errorw("failed to save uploaded file", "error", err)
		return "", fiber.NewError(fiber.StatusInternalServerError, "failed to save file")
	}
	return path, nil
}
