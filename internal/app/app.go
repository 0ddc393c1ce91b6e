// Package app assembles configuration, storage, the WhatsApp session
// manager, the delivery engine and the HTTP API into one runnable unit.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	wstore "go.mau.fi/whatsmeow/store"
	"google.golang.org/protobuf/proto"

	"github.com/muzzf16/whatsapp-dashboardv3/internal/autoreply"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/data/store"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/delivery"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/config"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/infra/logger"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/notify"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/server"
	"github.com/muzzf16/whatsapp-dashboardv3/internal/session"
)

// App is the main application orchestrator.
type App struct {
	Config      *config.Config
	Log         *logger.Logger
	Store       *store.Store
	Manager     *session.Manager
	Coordinator *delivery.Coordinator
	Scheduler   *delivery.Scheduler
	Server      *server.Server

	// Sub-stores for convenience
	SessionStore   *store.SessionStore
	MessageStore   *store.MessageStore
	QueueStore     *store.QueueStore
	ScheduledStore *store.ScheduledStore
	TemplateStore  *store.TemplateStore
	ConfigStore    *store.ConfigStore

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new App instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New("dashboard", cfg.LogLevel)
	log.Infof("Initializing WhatsApp dashboard...")

	if err := cfg.EnsureStorePath(); err != nil {
		return nil, fmt.Errorf("failed to ensure store path: %w", err)
	}

	appStore, err := store.New(cfg.DatabasePath(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	// Create sub-stores
	sessionStore := store.NewSessionStore(appStore)
	messageStore := store.NewMessageStore(appStore)
	queueStore := store.NewQueueStore(appStore)
	scheduledStore := store.NewScheduledStore(appStore)
	templateStore := store.NewTemplateStore(appStore)
	configStore := store.NewConfigStore(appStore)

	// Notification side-channels
	bus := notify.NewBus(log)
	webhooks := notify.NewWebhookDispatcher(configStore, cfg.WebhookTimeout, log)
	evaluator := autoreply.NewEvaluator(configStore)

	// Session layer
	wstore.DeviceProps.Os = proto.String(cfg.DeviceName)
	registry := session.NewRegistry()
	bridge := session.NewCredentialBridge(sessionStore, cfg.SessionCachePath(), log)
	manager := session.NewManager(registry, bridge, sessionStore, messageStore,
		evaluator, bus, webhooks, cfg.ReconnectDelay, log)

	// Delivery engine
	coordinator := delivery.NewCoordinator(registry, queueStore, bus, cfg.DefaultMaxAttempts, log)
	scheduler := delivery.NewScheduler(registry, queueStore, scheduledStore, bus,
		cfg.SchedulerInterval, cfg.QueueBatchSize, cfg.RetryBackoffBase, log)

	srv := server.New(cfg, manager, coordinator, sessionStore, messageStore,
		queueStore, scheduledStore, templateStore, configStore, bus, log)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		Config:         cfg,
		Log:            log,
		Store:          appStore,
		Manager:        manager,
		Coordinator:    coordinator,
		Scheduler:      scheduler,
		Server:         srv,
		SessionStore:   sessionStore,
		MessageStore:   messageStore,
		QueueStore:     queueStore,
		ScheduledStore: scheduledStore,
		TemplateStore:  templateStore,
		ConfigStore:    configStore,
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.Log.Infof("Starting WhatsApp dashboard...")

	// Setup signal handling to cancel context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		a.Log.Infof("Received %v, initiating shutdown...", sig)
		a.cancel()
	}()

	// Reconnect sessions that were connected before the last shutdown.
	a.Manager.Restore(a.ctx)

	a.Scheduler.Start()

	errChan := make(chan error, 1)
	go func() {
		errChan <- a.Server.Listen()
	}()

	a.Log.Infof("Dashboard is running. Press Ctrl+C to stop.")

	select {
	case err := <-errChan:
		if err != nil {
			a.Shutdown()
			return fmt.Errorf("http server: %w", err)
		}
	case <-a.ctx.Done():
	}
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.cancel()
	if err := a.Server.Shutdown(); err != nil {
		a.Log.Warnf("HTTP shutdown: %v", err)
	}
	a.Scheduler.Stop()
	a.Manager.Shutdown()
	return a.Store.Close()
}
