package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/mgpai22/capsync/internal/preview"
)

type frameRequest struct {
	Frame *int `json:"frame"`
}

// resolves the session before the websocket handshake so unknown ids get a 404
func (s *Server) previewUpgrade(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("session", sess)
	return c.Next()
}

// previewStream answers each {"frame": N} message with that frame's overlay set.
// Every answer reflects the session as it is when the message arrives.
func (s *Server) previewStream(conn *websocket.Conn) {
	defer conn.Close()

	sess, ok := conn.Locals("session").(*preview.Session)
	if !ok {
		return
	}
	log := s.logger.With("session", sess.ID)
	log.Debugw("preview stream opened")

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnw("preview stream read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := conn.WriteJSON(previewReply(sess, message)); err != nil {
			log.Warnw("preview stream write error", "error", err)
			return
		}
	}
}

func previewReply(sess *preview.Session, message []byte) interface{} {
	var req frameRequest
	if err := json.Unmarshal(message, &req); err != nil || req.Frame == nil {
		return fiber.Map{"error": `expected {"frame": N}`}
	}
	if *req.Frame < 0 {
		return fiber.Map{"error": "frame must not be negative"}
	}
	return sess.Frame(*req.Frame)
}
