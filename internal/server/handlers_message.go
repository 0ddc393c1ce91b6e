package server

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/delivery"
)

type sendRequest struct {
	SessionID string `json:"sessionId"`
	ChatID    string `json:"jid"`
	Message   string `json:"message"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := s.coordinator.Send(c.Context(), req.SessionID, req.ChatID, delivery.Outbound{
		Content: req.Message,
	})
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return sendResult(c, result)
}

func (s *Server) sendMediaMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.MediaURL == "" {
		return fail(c, fiber.StatusBadRequest, "mediaUrl is required")
	}

	result, err := s.coordinator.Send(c.Context(), req.SessionID, req.ChatID, delivery.Outbound{
		Content:   req.Message,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return sendResult(c, result)
}

type sendTemplateRequest struct {
	SessionID    string            `json:"sessionId"`
	ChatID       string            `json:"jid"`
	TemplateName string            `json:"templateName"`
	Parameters   map[string]string `json:"parameters"`
}

func (s *Server) sendTemplate(c *fiber.Ctx) error {
	var req sendTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.TemplateName == "" {
		return fail(c, fiber.StatusBadRequest, "templateName is required")
	}

	tpl, err := s.templates.GetByName(req.TemplateName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown template "+req.TemplateName)
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	result, err := s.coordinator.Send(c.Context(), req.SessionID, req.ChatID, delivery.Outbound{
		Content: renderTemplate(tpl.Content, req.Parameters),
	})
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return sendResult(c, result)
}

// renderTemplate substitutes {{key}} placeholders. Unknown placeholders are
// left as-is so the recipient sees them rather than silently losing text.
func renderTemplate(content string, parameters map[string]string) string {
	for key, value := range parameters {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content
}

// sendResult maps a coordinator result to the wire: 202 with the queued id
// when delivery was deferred, 200 with the transport receipt otherwise.
func sendResult(c *fiber.Ctx, result *delivery.Result) error {
	if result.Queued {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success":  true,
			"queued":   true,
			"queuedId": result.QueuedID,
			"reason":   result.Reason,
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"queued":    false,
		"messageId": result.Receipt.MessageID,
		"timestamp": result.Receipt.Timestamp.UnixMilli(),
	})
}

func (s *Server) getMessages(c *fiber.Ctx) error {
	chatID := c.Params("chatId")
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	msgs, err := s.messages.ListByChat(chatID, page, limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	total, err := s.messages.CountByChat(chatID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type messageView struct {
		MessageID string `json:"messageId"`
		SessionID string `json:"sessionId"`
		ChatID    string `json:"chatId"`
		FromMe    bool   `json:"fromMe"`
		Content   string `json:"content"`
		MediaURL  string `json:"mediaUrl,omitempty"`
		Type      string `json:"type"`
		Status    string `json:"status"`
		Timestamp int64  `json:"timestamp"`
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			MessageID: m.MessageID,
			SessionID: m.SessionID,
			ChatID:    m.ChatID,
			FromMe:    m.FromMe,
			Content:   m.Content,
			MediaURL:  m.MediaURL,
			Type:      m.Type,
			Status:    m.Status,
			Timestamp: m.Timestamp.UnixMilli(),
		})
	}

	totalPages := (total + limit - 1) / limit
	return c.JSON(fiber.Map{
		"success":    true,
		"messages":   views,
		"page":       page,
		"totalPages": totalPages,
		"total":      total,
	})
}

func (s *Server) listQueued(c *fiber.Ctx) error {
	status := c.Query("status")
	limit := c.QueryInt("limit", 100)

	rows, err := s.queue.List(status, limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type queuedView struct {
		ID            string `json:"id"`
		SessionID     string `json:"sessionId"`
		ChatID        string `json:"chatId"`
		Content       string `json:"content"`
		MediaURL      string `json:"mediaUrl,omitempty"`
		MediaType     string `json:"mediaType,omitempty"`
		Attempts      int    `json:"attempts"`
		MaxAttempts   int    `json:"maxAttempts"`
		Status        string `json:"status"`
		NextAttemptAt int64  `json:"nextAttemptAt"`
		LastError     string `json:"lastError,omitempty"`
		CreatedAt     int64  `json:"createdAt"`
	}
	views := make([]queuedView, 0, len(rows))
	for _, q := range rows {
		views = append(views, queuedView{
			ID:            q.ID,
			SessionID:     q.SessionID,
			ChatID:        q.ChatID,
			Content:       q.Content,
			MediaURL:      q.MediaURL,
			MediaType:     q.MediaType,
			Attempts:      q.Attempts,
			MaxAttempts:   q.MaxAttempts,
			Status:        q.Status,
			NextAttemptAt: q.NextAttemptAt.UnixMilli(),
			LastError:     q.LastError,
			CreatedAt:     q.CreatedAt.UnixMilli(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "messages": views})
}

func (s *Server) retryQueued(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.queue.Get(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(c, fiber.StatusNotFound, "unknown queued message")
		}
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	changed, err := s.queue.Rearm(id)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	if !changed {
		return fail(c, fiber.StatusConflict, "message is not in a failed state")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"id":      id,
		"status":  store.QueueStatusQueued,
	})
}
