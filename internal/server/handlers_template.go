package server

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

func (s *Server) listTemplates(c *fiber.Ctx) error {
	templates, err := s.templates.List()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type templateView struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, templateView{ID: t.ID, Name: t.Name, Content: t.Content})
	}
	return c.JSON(fiber.Map{"success": true, "templates": views})
}

func (s *Server) createTemplate(c *fiber.Ctx) error {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Content == "" {
		return fail(c, fiber.StatusBadRequest, "name and content are required")
	}

	t := &store.Template{Name: req.Name, Content: req.Content}
	if err := s.templates.Create(t); err != nil {
		return fail(c, fiber.StatusConflict, "could not create template: "+err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "id": t.ID})
}

func (s *Server) updateTemplate(c *fiber.Ctx) error {
	var req struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	id := c.Params("id")
	existing, err := s.templates.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown template")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Content != "" {
		existing.Content = req.Content
	}
	if err := s.templates.Update(existing); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) deleteTemplate(c *fiber.Ctx) error {
	if err := s.templates.Delete(c.Params("id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) listScheduled(c *fiber.Ctx) error {
	rows, err := s.scheduled.List()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type scheduledView struct {
		ID        string `json:"id"`
		SessionID string `json:"sessionId"`
		ChatID    string `json:"chatId"`
		Message   string `json:"message"`
		Schedule  int64  `json:"schedule"`
		Sent      bool   `json:"sent"`
	}
	views := make([]scheduledView, 0, len(rows))
	for _, m := range rows {
		views = append(views, scheduledView{
			ID:        m.ID,
			SessionID: m.SessionID,
			ChatID:    m.ChatID,
			Message:   m.Message,
			Schedule:  m.Schedule.UnixMilli(),
			Sent:      m.Sent,
		})
	}
	return c.JSON(fiber.Map{"success": true, "messages": views})
}

func (s *Server) createScheduled(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
		ChatID    string `json:"jid"`
		Message   string `json:"message"`
		Schedule  int64  `json:"schedule"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.ChatID == "" || req.Message == "" || req.Schedule == 0 {
		return fail(c, fiber.StatusBadRequest, "sessionId, jid, message and schedule are required")
	}

	when := time.UnixMilli(req.Schedule)
	if when.Before(time.Now()) {
		return fail(c, fiber.StatusBadRequest, "schedule must be in the future")
	}

	m := &store.ScheduledMessage{
		SessionID: req.SessionID,
		ChatID:    req.ChatID,
		Message:   req.Message,
		Schedule:  when,
	}
	if err := s.scheduled.Create(m); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "id": m.ID})
}

func (s *Server) updateScheduled(c *fiber.Ctx) error {
	var req struct {
		Message  string `json:"message"`
		Schedule int64  `json:"schedule"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	id := c.Params("id")
	existing, err := s.scheduled.Get(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown scheduled message")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if existing.Sent {
		return fail(c, fiber.StatusConflict, "message was already sent")
	}

	if req.Message != "" {
		existing.Message = req.Message
	}
	if req.Schedule != 0 {
		existing.Schedule = time.UnixMilli(req.Schedule)
	}
	if err := s.scheduled.Update(existing); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) deleteScheduled(c *fiber.Ctx) error {
	if err := s.scheduled.Delete(c.Params("id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}
