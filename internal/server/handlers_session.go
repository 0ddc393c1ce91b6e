package server

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

func newSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func (s *Server) initSession(c *fiber.Ctx) error {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	// Body is optional; an empty request gets a generated id.
	_ = c.BodyParser(&body)

	id := body.SessionID
	if id == "" {
		id = newSessionID()
	}

	if err := s.sessions.Create(id); err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not create session: "+err.Error())
	}
	if err := s.manager.Connect(c.Context(), id); err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not start connection: "+err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":   true,
		"sessionId": id,
	})
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	sessions, err := s.sessions.List()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type sessionView struct {
		SessionID   string `json:"sessionId"`
		Status      string `json:"status"`
		PhoneNumber string `json:"phoneNumber,omitempty"`
		Connected   bool   `json:"connected"`
		CreatedAt   int64  `json:"createdAt"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		connected := false
		if conn, ok := s.manager.Registry().Lookup(sess.SessionID); ok {
			connected = conn.IsConnected()
		}
		views = append(views, sessionView{
			SessionID:   sess.SessionID,
			Status:      sess.Status,
			PhoneNumber: sess.PhoneNumber,
			Connected:   connected,
			CreatedAt:   sess.CreatedAt.UnixMilli(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "sessions": views})
}

func (s *Server) sessionQR(c *fiber.Ctx) error {
	id := c.Params("id")
	code := s.manager.PairCode(id)
	if code == "" {
		connected, _ := s.manager.Status(id)
		if connected {
			return fail(c, fiber.StatusConflict, "session is already connected")
		}
		return fail(c, fiber.StatusNotFound, "no pairing code available, reconnect the session first")
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not render QR image")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"qr":      code,
		"image":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}

func (s *Server) sessionStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	connected, status := s.manager.Status(id)
	if !connected {
		stored, err := s.sessions.Get(id)
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown session")
		}
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, err.Error())
		}
		status = stored.Status
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"sessionId": id,
		"status":    status,
		"connected": connected,
	})
}

func (s *Server) reconnectSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.sessions.Get(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown session")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if err := s.manager.Connect(c.Context(), id); err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not start connection: "+err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":   true,
		"sessionId": id,
		"status":    store.SessionDisconnected,
	})
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.manager.Logout(c.Context(), id); err != nil {
		return fail(c, fiber.StatusInternalServerError, "logout failed: "+err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "sessionId": id})
}
