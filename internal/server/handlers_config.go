package server

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
)

func (s *Server) getConfig(c *fiber.Ctx) error {
	cfg, err := s.apiConfig.Get()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "config": cfg})
}

func (s *Server) updateConfig(c *fiber.Ctx) error {
	var req struct {
		WebhookURL       *string               `json:"webhookUrl"`
		WebhookEvents    []string              `json:"webhookEvents"`
		RateLimit        *int                  `json:"rateLimit"`
		AutoReplyEnabled *bool                 `json:"autoReplyEnabled"`
		AutoReplyRules   []store.AutoReplyRule `json:"autoReplyRules"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	cfg, err := s.apiConfig.Get()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}

	// The API key only changes through generate-key; partial updates leave
	// untouched fields as they were.
	if req.WebhookURL != nil {
		cfg.WebhookURL = *req.WebhookURL
	}
	if req.WebhookEvents != nil {
		cfg.WebhookEvents = req.WebhookEvents
	}
	if req.RateLimit != nil {
		cfg.RateLimit = *req.RateLimit
	}
	if req.AutoReplyEnabled != nil {
		cfg.AutoReplyEnabled = *req.AutoReplyEnabled
	}
	if req.AutoReplyRules != nil {
		cfg.AutoReplyRules = req.AutoReplyRules
	}

	if err := s.apiConfig.Save(cfg); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "config": cfg})
}

func (s *Server) generateKey(c *fiber.Ctx) error {
	key, err := s.apiConfig.RotateKey()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "apiKey": key})
}

// apiKeyAuth guards the /api/v1 surface with the configured key.
func (s *Server) apiKeyAuth(c *fiber.Ctx) error {
	key := c.Get("X-API-Key")
	if key == "" {
		return fail(c, fiber.StatusUnauthorized, "missing X-API-Key header")
	}

	cfg, err := s.apiConfig.Get()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "could not load configuration")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
		return fail(c, fiber.StatusUnauthorized, "invalid API key")
	}
	return c.Next()
}
