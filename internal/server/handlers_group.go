package server

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) createGroup(c *fiber.Ctx) error {
	var req struct {
		SessionID    string   `json:"sessionId"`
		Name         string   `json:"name"`
		Participants []string `json:"participants"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.Name == "" || len(req.Participants) == 0 {
		return fail(c, fiber.StatusBadRequest, "sessionId, name and participants are required")
	}

	info, err := s.manager.CreateGroup(c.Context(), req.SessionID, req.Name, req.Participants)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"groupId": info.JID.String(),
		"name":    info.Name,
	})
}

func (s *Server) groupInfo(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return fail(c, fiber.StatusBadRequest, "sessionId query parameter is required")
	}

	info, err := s.manager.GroupInfo(c.Context(), sessionID, c.Params("groupId"))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	participants := make([]string, 0, len(info.Participants))
	for _, p := range info.Participants {
		participants = append(participants, p.JID.String())
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"groupId":      info.JID.String(),
		"name":         info.Name,
		"topic":        info.Topic,
		"participants": participants,
	})
}

func (s *Server) setGroupSubject(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
		Subject   string `json:"subject"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || req.Subject == "" {
		return fail(c, fiber.StatusBadRequest, "sessionId and subject are required")
	}

	if err := s.manager.SetGroupSubject(c.Context(), req.SessionID, c.Params("groupId"), req.Subject); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) updateParticipants(c *fiber.Ctx) error {
	var req struct {
		SessionID    string   `json:"sessionId"`
		Participants []string `json:"participants"`
		Action       string   `json:"action"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" || len(req.Participants) == 0 {
		return fail(c, fiber.StatusBadRequest, "sessionId and participants are required")
	}

	var add bool
	switch req.Action {
	case "add":
		add = true
	case "remove":
		add = false
	default:
		return fail(c, fiber.StatusBadRequest, "action must be add or remove")
	}

	if err := s.manager.UpdateParticipants(c.Context(), req.SessionID, c.Params("groupId"), req.Participants, add); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) leaveGroup(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.SessionID == "" {
		return fail(c, fiber.StatusBadRequest, "sessionId is required")
	}

	if err := s.manager.LeaveGroup(c.Context(), req.SessionID, c.Params("groupId")); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}
