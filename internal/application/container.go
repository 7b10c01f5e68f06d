// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/bridge"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/notify"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/remote"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/remote/postgres"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/remote/rest"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/adapters/store/sqlite"
	appBridge "github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/bridge"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/connectivity"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/consumers"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/ports"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/queue"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/scheduler"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/application/syncengine"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/config"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/crypto"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/logging"
	"github.com/NocodeBuilds/ppe-inspector-sub000/internal/infrastructure/tracing"
)

// Option customizes container construction.
type Option func(*options)

type options struct {
	verbose       bool
	configDir     string
	notifier      ports.NotifierPort
	remote        ports.RemoteServicePort
	initialOnline bool
}

// WithVerbose raises the log level to info regardless of config.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// WithConfigDir sets the directory holding the salt for sealed secrets.
func WithConfigDir(dir string) Option {
	return func(o *options) { o.configDir = dir }
}

// WithNotifier adds a user-facing notifier, such as terminal toasts, next to
// the structured log notifier.
func WithNotifier(n ports.NotifierPort) Option {
	return func(o *options) { o.notifier = n }
}

// WithRemote replaces the configured remote backend.
func WithRemote(r ports.RemoteServicePort) Option {
	return func(o *options) { o.remote = r }
}

// WithInitialOnline sets the connectivity state assumed before the first probe.
func WithInitialOnline(online bool) Option {
	return func(o *options) { o.initialOnline = online }
}

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	config *config.Config
	opts   options

	// Durable action store
	dbConn *sqlite.Connection
	store  *sqlite.ActionRepository

	// Remote backends
	remoteRegistry *remote.Registry
	remote         ports.RemoteServicePort

	// Observability
	logger   *logging.Logger
	tracer   *tracing.Tracer
	notifier ports.NotifierPort

	// Sync core
	monitor   *connectivity.Monitor
	handlers  *syncengine.Handlers
	engine    *syncengine.Engine
	queue     *queue.Queue
	scheduler *scheduler.Scheduler

	// Consumers
	writer        *consumers.Writer
	inspections   *consumers.InspectionService
	ppe           *consumers.PPEService
	notifications *consumers.NotificationService

	// Background sync bridge
	bridge    *appBridge.Bridge
	decoder   *bridge.Decoder
	websocket *bridge.WebSocketHandler
	inbox     *bridge.Inbox

	bgMu      sync.Mutex
	bgStarted bool
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	o := options{initialOnline: true}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		config: cfg,
		opts:   o,
	}

	if err := c.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initStore(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize action store: %w", err)
	}

	if err := c.initRemote(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize remote backend: %w", err)
	}

	if err := c.initSyncCore(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	if err := c.initBridge(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize background sync bridge: %w", err)
	}

	return c, nil
}

// initObservability initializes logging, tracing and the notifier chain.
func (c *Container) initObservability() error {
	ctx := context.Background()

	logLevel := logging.Level(c.config.Logging.Level)
	if c.opts.verbose {
		logLevel = logging.LevelDebug
	}

	logFormat := logging.FormatText
	if c.config.Logging.Format == "json" {
		logFormat = logging.FormatJSON
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logLevel
	logCfg.Format = logFormat
	c.logger = logging.New(logCfg)

	if c.config.Observability.Tracing.Enabled {
		tracingCfg := tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		}
		tracer, err := tracing.New(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		c.tracer = tracing.Default()
	}

	fanout := notify.Fanout{notify.NewLog(c.logger)}
	if c.opts.notifier != nil {
		fanout = append(fanout, c.opts.notifier)
	}
	c.notifier = fanout
	return nil
}

// initStore opens the SQLite action store.
func (c *Container) initStore() error {
	path, err := config.ExpandPath(c.config.Store.Path)
	if err != nil {
		return err
	}

	conn, err := sqlite.NewConnection(path, sqlite.WithBusyTimeout(c.config.Store.BusyTimeout))
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	c.dbConn = conn

	repo := sqlite.NewActionRepository(conn)
	c.store = repo
	if err := repo.Initialize(context.Background()); err != nil {
		c.logger.Warn("action store unavailable, running degraded", "path", path, "error", err)
	}
	return nil
}

// initRemote registers the configured backends and selects the active one.
func (c *Container) initRemote() error {
	c.remoteRegistry = remote.NewRegistry()

	var active ports.RemoteServicePort
	if c.opts.remote != nil {
		if err := c.remoteRegistry.Register(c.opts.remote); err != nil {
			return err
		}
		active = c.opts.remote
	} else {
		if err := c.registerBackends(); err != nil {
			return err
		}
		var err error
		active, err = c.remoteRegistry.GetRequired(c.config.Remote.Backend)
		if err != nil {
			return err
		}
	}

	c.remote = remote.Instrument(active, c.tracer, c.logger)
	return nil
}

func (c *Container) registerBackends() error {
	restCfg := c.config.Remote.REST
	if restCfg.BaseURL != "" {
		apiKey, err := c.resolveAPIKey(restCfg)
		if err != nil {
			return err
		}
		client, err := rest.New(rest.Config{
			BaseURL: restCfg.BaseURL,
			APIKey:  apiKey,
			Timeout: restCfg.Timeout,
		})
		if err != nil {
			return err
		}
		if err := c.remoteRegistry.Register(client); err != nil {
			return err
		}
	}

	pgCfg := c.config.Remote.Postgres
	if pgCfg.DSN != "" {
		backend, err := postgres.New(pgCfg.DSN, pgCfg.Timeout)
		if err != nil {
			return err
		}
		if err := c.remoteRegistry.Register(backend); err != nil {
			return err
		}
	}
	return nil
}

// resolveAPIKey prefers the sealed key over the plaintext one.
func (c *Container) resolveAPIKey(cfg config.RESTConfig) (string, error) {
	if cfg.APIKeyEncrypted == "" {
		return cfg.APIKey, nil
	}
	sealer, err := NewSealer(c.opts.configDir)
	if err != nil {
		return "", err
	}
	key, err := sealer.Open(cfg.APIKeyEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt rest api key: %w", err)
	}
	return key, nil
}

// initSyncCore wires the monitor, engine, queue, scheduler and consumers.
func (c *Container) initSyncCore() error {
	cc := c.config.Connectivity
	c.monitor = connectivity.NewMonitor(connectivity.Config{
		PollInterval:    cc.PollInterval,
		ProbeTimeout:    cc.ProbeTimeout,
		ReconnectWindow: cc.ReconnectWindow,
	}, c.opts.initialOnline, c.remote, c.notifier, c.logger)

	c.handlers = syncengine.DefaultHandlers()

	sc := c.config.Sync
	c.engine = syncengine.New(syncengine.Config{
		MaxRetryAttempts: sc.MaxRetryAttempts,
		RetryDelay:       sc.RetryDelay,
		TriggerDelay:     sc.TriggerDelay,
	}, syncengine.Deps{
		Store:    c.store,
		Remote:   c.remote,
		Monitor:  c.monitor,
		Handlers: c.handlers,
		Notifier: c.notifier,
		Logger:   c.logger,
		Tracer:   c.tracer,
	})

	c.queue = queue.New(c.store, c.engine, c.monitor, c.logger)

	if sc.PeriodicSchedule != "" {
		s, err := scheduler.New(sc.PeriodicSchedule, c.engine, c.logger)
		if err != nil {
			return err
		}
		c.scheduler = s
	}

	c.writer = consumers.NewWriter(c.remote, c.queue, c.monitor, c.handlers, c.logger)
	c.inspections = consumers.NewInspectionService(c.writer)
	c.ppe = consumers.NewPPEService(c.writer)
	c.notifications = consumers.NewNotificationService(c.writer)
	return nil
}

// initBridge builds the message decoder and transports. The inbox watcher is
// created when background services start.
func (c *Container) initBridge() error {
	c.bridge = appBridge.New(c.engine, c.notifier, c.logger)
	if !c.config.Bridge.Enabled {
		return nil
	}

	decoder, err := bridge.NewDecoder()
	if err != nil {
		return err
	}
	c.decoder = decoder

	if c.config.Bridge.WebSocketAddr != "" {
		c.websocket = bridge.NewWebSocketHandler(decoder, c.bridge, c.logger)
	}
	return nil
}

// StartBackground starts connectivity polling, reconnect catch-up, the
// periodic scheduler and the inbox watcher. It is a no-op when already started.
func (c *Container) StartBackground(ctx context.Context) error {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgStarted {
		return nil
	}

	if err := c.store.Initialize(ctx); err != nil {
		c.logger.WarnContext(ctx, "action store still unavailable", "error", err)
	}

	c.engine.Attach()
	c.monitor.Start(ctx)
	if c.scheduler != nil {
		c.scheduler.Start(ctx)
	}

	if c.decoder != nil && c.config.Bridge.InboxDir != "" {
		dir, err := config.ExpandPath(c.config.Bridge.InboxDir)
		if err != nil {
			return err
		}
		inbox, err := bridge.NewInbox(bridge.InboxConfig{Dir: dir}, c.decoder, c.bridge, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create inbox: %w", err)
		}
		if err := inbox.Start(); err != nil {
			_ = inbox.Close()
			return fmt.Errorf("failed to start inbox: %w", err)
		}
		c.inbox = inbox
	}

	c.bgStarted = true
	return nil
}

// StopBackground stops everything StartBackground started. Background
// services cannot be restarted afterwards.
func (c *Container) StopBackground() {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()

	if c.inbox != nil {
		_ = c.inbox.Close()
		c.inbox = nil
	}
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	c.StopBackground()

	if c.engine != nil {
		c.engine.Close()
	}

	var errs []error
	if c.remoteRegistry != nil {
		errs = append(errs, c.remoteRegistry.Close())
	}
	if c.tracer != nil {
		errs = append(errs, c.tracer.Shutdown(ctx))
	}
	if c.dbConn != nil {
		errs = append(errs, c.dbConn.Close())
	}
	return errors.Join(errs...)
}

// NewSealer opens the secret sealer for configDir, defaulting to ~/.ppesync.
func NewSealer(configDir string) (*crypto.Sealer, error) {
	if configDir == "" {
		loader, err := config.NewLoader("")
		if err != nil {
			return nil, err
		}
		configDir = loader.ConfigDir()
	}
	return crypto.NewSealer(configDir)
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Store returns the durable action store.
func (c *Container) Store() ports.ActionStorePort {
	return c.store
}

// StoreInfo describes the open action database. It fails while the store is
// degraded.
func (c *Container) StoreInfo(ctx context.Context) (sqlite.Info, error) {
	return c.dbConn.Info(ctx)
}

// Remote returns the instrumented active remote backend.
func (c *Container) Remote() ports.RemoteServicePort {
	return c.remote
}

// RemoteRegistry returns the registry of configured backends.
func (c *Container) RemoteRegistry() *remote.Registry {
	return c.remoteRegistry
}

// Monitor returns the connectivity monitor.
func (c *Container) Monitor() *connectivity.Monitor {
	return c.monitor
}

// Engine returns the sync engine.
func (c *Container) Engine() *syncengine.Engine {
	return c.engine
}

// Queue returns the action queue.
func (c *Container) Queue() *queue.Queue {
	return c.queue
}

// Scheduler returns the periodic drain scheduler.
// Returns nil if no schedule is configured.
func (c *Container) Scheduler() *scheduler.Scheduler {
	return c.scheduler
}

// Inspections returns the inspection consumer.
func (c *Container) Inspections() *consumers.InspectionService {
	return c.inspections
}

// PPE returns the equipment consumer.
func (c *Container) PPE() *consumers.PPEService {
	return c.ppe
}

// Notifications returns the notification consumer.
func (c *Container) Notifications() *consumers.NotificationService {
	return c.notifications
}

// Bridge returns the background sync message handler.
func (c *Container) Bridge() *appBridge.Bridge {
	return c.bridge
}

// WebSocketHandler returns the bridge's websocket endpoint.
// Returns nil if no listen address is configured.
func (c *Container) WebSocketHandler() *bridge.WebSocketHandler {
	return c.websocket
}

// Inbox returns the running inbox watcher, or nil before StartBackground.
func (c *Container) Inbox() *bridge.Inbox {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	return c.inbox
}

// Logger returns the structured logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the OpenTelemetry tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}
