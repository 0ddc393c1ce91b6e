// Package server exposes the dashboard's REST API and the server-sent
// event stream.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/delivery"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/config"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/session"
)

// Server wires the HTTP API to the core components.
type Server struct {
	app         *fiber.App
	cfg         *config.Config
	manager     *session.Manager
	coordinator *delivery.Coordinator
	sessions    *store.SessionStore
	messages    *store.MessageStore
	queue       *store.QueueStore
	scheduled   *store.ScheduledStore
	templates   *store.TemplateStore
	apiConfig   *store.ConfigStore
	bus         *notify.Bus
	log         waLog.Logger
}

// New creates the Server and registers all routes.
func New(cfg *config.Config, manager *session.Manager, coordinator *delivery.Coordinator,
	sessions *store.SessionStore, messages *store.MessageStore, queue *store.QueueStore,
	scheduled *store.ScheduledStore, templates *store.TemplateStore, apiConfig *store.ConfigStore,
	bus *notify.Bus, log waLog.Logger) *Server {

	s := &Server{
		cfg:         cfg,
		manager:     manager,
		coordinator: coordinator,
		sessions:    sessions,
		messages:    messages,
		queue:       queue,
		scheduled:   scheduled,
		templates:   templates,
		apiConfig:   apiConfig,
		bus:         bus,
		log:         log.Sub("HTTP"),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "whatsapp-dashboard",
		DisableStartupMessage: true,
	})
	s.app.Use(recover.New())
	s.app.Use(fiberlog.New(fiberlog.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	s.app.Use(cors.New(cors.Config{AllowOrigins: cfg.CORSOrigin + ",http://localhost:3000"}))

	s.routes()
	return s
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves the API on the configured address.
func (s *Server) Listen() error {
	s.log.Infof("HTTP API listening on %s", s.cfg.ListenAddr)
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Get("/health", s.health)
	s.app.Get("/api/events", s.streamEvents)

	api := s.app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("/", s.initSession)
	sessions.Get("/", s.listSessions)
	sessions.Get("/:id/qr", s.sessionQR)
	sessions.Get("/:id/status", s.sessionStatus)
	sessions.Post("/:id/reconnect", s.reconnectSession)
	sessions.Delete("/:id", s.deleteSession)

	messages := api.Group("/messages")
	messages.Post("/send", s.sendMessage)
	messages.Post("/send-media", s.sendMediaMessage)
	messages.Post("/send-template", s.sendTemplate)
	messages.Get("/:chatId", s.getMessages)

	queued := api.Group("/queued-messages")
	queued.Get("/", s.listQueued)
	queued.Post("/:id/retry", s.retryQueued)

	groups := api.Group("/groups")
	groups.Post("/", s.createGroup)
	groups.Get("/:groupId", s.groupInfo)
	groups.Put("/:groupId/subject", s.setGroupSubject)
	groups.Post("/:groupId/participants", s.updateParticipants)
	groups.Post("/:groupId/leave", s.leaveGroup)

	templates := api.Group("/templates")
	templates.Get("/", s.listTemplates)
	templates.Post("/", s.createTemplate)
	templates.Put("/:id", s.updateTemplate)
	templates.Delete("/:id", s.deleteTemplate)

	scheduled := api.Group("/scheduled-messages")
	scheduled.Get("/", s.listScheduled)
	scheduled.Post("/", s.createScheduled)
	scheduled.Put("/:id", s.updateScheduled)
	scheduled.Delete("/:id", s.deleteScheduled)

	apiCfg := api.Group("/config")
	apiCfg.Get("/", s.getConfig)
	apiCfg.Put("/", s.updateConfig)
	apiCfg.Post("/generate-key", s.generateKey)

	// Key-authenticated API for external integrations.
	v1 := s.app.Group("/api/v1", s.apiKeyAuth)
	v1.Post("/messages", s.sendMessage)
	v1.Post("/messages/send-template", s.sendTemplate)
	v1.Get("/sessions", s.listSessions)
	v1.Get("/sessions/:id/status", s.sessionStatus)
	v1.Get("/contacts/:sessionId/search", s.searchContacts)
	v1.Get("/contacts/:sessionId", s.listContacts)
	v1.Get("/chats/:sessionId", s.listChats)
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":            "ok",
		"activeConnections": s.manager.Registry().ActiveIDs(),
	})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}
