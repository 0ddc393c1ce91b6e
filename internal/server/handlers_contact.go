package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/session"
)

type contactView struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	PushName     string `json:"pushName,omitempty"`
	BusinessName string `json:"businessName,omitempty"`
}

func contactViews(contacts []session.Contact) []contactView {
	views := make([]contactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, contactView{
			JID:          c.JID,
			Name:         c.DisplayName(),
			PushName:     c.PushName,
			BusinessName: c.BusinessName,
		})
	}
	return views
}

func (s *Server) listContacts(c *fiber.Ctx) error {
	contacts, err := s.manager.Contacts(c.Context(), c.Params("sessionId"))
	if err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "contacts": contactViews(contacts)})
}

func (s *Server) searchContacts(c *fiber.Ctx) error {
	query := c.Query("query")
	if strings.TrimSpace(query) == "" {
		return fail(c, fiber.StatusBadRequest, "query parameter is required")
	}
	contacts, err := s.manager.Contacts(c.Context(), c.Params("sessionId"))
	if err != nil {
		return fail(c, fiber.StatusServiceUnavailable, err.Error())
	}
	matched := session.FilterContacts(contacts, query)
	return c.JSON(fiber.Map{"success": true, "contacts": contactViews(matched)})
}

func (s *Server) listChats(c *fiber.Ctx) error {
	chats, err := s.messages.ListChats(c.Params("sessionId"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	type chatView struct {
		ChatID       string `json:"chatId"`
		Messages     int    `json:"messages"`
		LastActivity int64  `json:"lastActivity"`
	}
	views := make([]chatView, 0, len(chats))
	for _, ch := range chats {
		views = append(views, chatView{
			ChatID:       ch.ChatID,
			Messages:     ch.Messages,
			LastActivity: ch.LastActivity.UnixMilli(),
		})
	}
	return c.JSON(fiber.Map{"success": true, "chats": views})
}
