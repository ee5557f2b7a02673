// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires every component into the daemon and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/instruktai/teleclaude/internal/adapter"
	"github.com/instruktai/teleclaude/internal/adapter/discord"
	"github.com/instruktai/teleclaude/internal/adapter/redisadapter"
	"github.com/instruktai/teleclaude/internal/adapter/telegram"
	"github.com/instruktai/teleclaude/internal/adapter/web"
	"github.com/instruktai/teleclaude/internal/agent"
	"github.com/instruktai/teleclaude/internal/api"
	"github.com/instruktai/teleclaude/internal/api/handlers"
	"github.com/instruktai/teleclaude/internal/bridge"
	"github.com/instruktai/teleclaude/internal/commands"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/internal/events"
	"github.com/instruktai/teleclaude/internal/logging"
	"github.com/instruktai/teleclaude/internal/mesh"
	"github.com/instruktai/teleclaude/internal/output"
	"github.com/instruktai/teleclaude/internal/relay"
	"github.com/instruktai/teleclaude/internal/session"
	"github.com/instruktai/teleclaude/internal/store"
	"github.com/instruktai/teleclaude/internal/toolserver"
)

// App is the daemon container.
type App struct {
	config  *config.Config
	log     *zap.Logger
	secrets *config.SecretsWatcher

	store      *store.Store
	notifStore *events.NotificationStore
	rdb        *redis.Client

	bridge    *bridge.Bridge
	launcher  *agent.Launcher
	sessions  *session.Manager
	reaper    *session.IdleReaper
	tracker   *output.StateTracker
	scheduler *output.Scheduler
	ucap      *adapter.Client
	relay     *relay.Manager
	cmds      *commands.Handlers

	registry  *mesh.Registry
	heartbeat *mesh.Heartbeat
	transport *mesh.Transport
	outputs   *mesh.OutputPublisher

	emitter   *events.Emitter
	processor *events.Processor
	projector *events.ProjectorCartridge

	apiServer  *api.Server
	toolServer *toolserver.Server

	cancel context.CancelFunc
	done   chan struct{}
}

// Options holds daemon start options.
type Options struct {
	ConfigPath string
	Debug      bool
}

// New loads configuration and constructs the logger.
func New(opts Options) (*App, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logOpts := logging.FromEnv()
	if logOpts.Level == "" {
		logOpts.Level = cfg.Logging.Level
	}
	logOpts.Development = opts.Debug
	log, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return &App{
		config: cfg,
		log:    log,
		done:   make(chan struct{}),
	}, nil
}

// Initialize opens stores and wires components.
func (a *App) Initialize(ctx context.Context) error {
	cfg := a.config

	st, err := store.Open(ctx, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	notifStore, err := events.OpenNotificationStore(ctx, cfg.Storage.EventsDBPath)
	if err != nil {
		return fmt.Errorf("open notification store: %w", err)
	}
	a.notifStore = notifStore

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Adapters.SecretsFile != "" {
		watcher, err := config.NewSecretsWatcher(cfg.Adapters.SecretsFile, a.log)
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}
		a.secrets = watcher
		watcher.OnReload(func(*config.Secrets) {
			a.log.Info("secrets reloaded; adapters pick up new tokens on restart")
		})
		if pw := watcher.Current().RedisPassword; pw != "" {
			redisOpts.Password = pw
		}
	}
	a.rdb = redis.NewClient(redisOpts)

	a.bridge = bridge.New(bridge.NewRealTmuxExecutor(), a.log.Named("bridge"))
	a.launcher = agent.NewLauncher(cfg.Agents)

	a.registry = mesh.NewRegistry(cfg.Mesh.TTL())
	// Seed from the peer cache so "last seen N ago" survives restarts.
	if peers, err := a.store.ListPeers(ctx); err == nil {
		for _, p := range peers {
			a.registry.Observe(*p)
		}
	}
	a.heartbeat = mesh.NewHeartbeat(a.rdb, a.registry, a.store, cfg.Machine.Name,
		cfg.Machine.User, cfg.Mesh.HeartbeatIntervalDuration(), cfg.Redis.StreamMaxLen,
		a.log.Named("heartbeat"))
	a.transport = mesh.NewTransport(a.rdb, a.registry, cfg.Machine.Name,
		cfg.Redis.StreamMaxLen, cfg.Sessions.CommandTimeoutDuration(), a.log.Named("mesh"))
	a.outputs = mesh.NewOutputPublisher(a.rdb, cfg.Machine.Name, cfg.Redis.StreamMaxLen,
		a.log.Named("outputs"))

	a.emitter = events.NewEmitter(a.rdb, cfg.Machine.Name, cfg.Redis.StreamMaxLen,
		a.log.Named("emitter"))

	a.sessions = session.NewManager(a.store, a.bridge, a.launcher,
		&lifecycleNotifier{app: a}, cfg.Sessions, cfg.Machine.Name, a.log.Named("sessions"))
	a.reaper = session.NewIdleReaper(a.sessions, a.log.Named("idle"))

	a.tracker = output.NewStateTracker()
	a.ucap = adapter.NewClient(a.sessions, cfg.Sessions.AdapterTimeoutDuration(),
		a.log.Named("ucap"))
	a.scheduler = output.NewScheduler(a.bridge, &outputSink{app: a}, a.store, a.tracker,
		cfg.Output.PollIntervalDuration(), cfg.Output.MaxPollers, a.log.Named("output"))

	filesDir := filepath.Join(filepath.Dir(cfg.Storage.DBPath), "files")

	// Adapters.
	hub := api.NewHub(a.log.Named("hub"))
	webAdapter := web.New(hub, a.ucap.HandleEvent, a.log.Named("web"))
	a.ucap.Register(webAdapter)
	a.ucap.Register(redisadapter.New(a.rdb, a.outputs, a.ucap.HandleEvent,
		cfg.Redis.StreamMaxLen, a.log.Named("redis-adapter")))

	var discordAdapter *discord.Adapter
	if cfg.Adapters.Discord.Enabled && a.secrets != nil {
		discordAdapter, err = discord.New(a.secrets.Current().DiscordToken,
			cfg.Adapters.Discord, a.resolveDiscord, a.ucap.HandleEvent,
			a.log.Named("discord"))
		if err != nil {
			return fmt.Errorf("discord adapter: %w", err)
		}
		a.ucap.Register(discordAdapter)
	}

	var telegramAdapter *telegram.Adapter
	if cfg.Adapters.Telegram.Enabled && a.secrets != nil {
		telegramAdapter, err = telegram.New(a.secrets.Current().TelegramToken,
			cfg.Adapters.Telegram, a.resolveTelegram, a.ucap.HandleEvent,
			a.log.Named("telegram"))
		if err != nil {
			return fmt.Errorf("telegram adapter: %w", err)
		}
		a.ucap.Register(telegramAdapter)
	}

	// Help-desk relay rides the Discord forum.
	if discordAdapter != nil {
		a.relay = relay.NewManager(a.store, discordAdapter, &paneInjector{app: a},
			&customerDeliverer{app: a}, &relayNotifier{app: a}, a.log.Named("relay"))
		discordAdapter.SetThreadHandler(a.handleThreadMessage)
	}

	a.cmds = commands.NewHandlers(a.sessions, a.bridge, a.scheduler, a.tracker,
		a.relay, a.transport, cfg.Machine.Name, filesDir, cfg.Projects.Roots,
		a.log.Named("commands"))
	a.ucap.SetDispatcher(a.handleAdapterEvent)
	a.transport.SetDispatcher(a.handleMeshCommand)

	// Event platform pipeline.
	schemaRegistry := events.NewRegistry()
	dedup := events.NewDedupCartridge(schemaRegistry, a.notifStore, a.log.Named("dedup"))
	a.projector = events.NewProjectorCartridge(schemaRegistry, a.notifStore,
		a.log.Named("projector"))
	a.projector.OnPush(events.WSDelivery(a.notifStore, hub, a.log.Named("ws-delivery")))
	if telegramAdapter != nil {
		a.projector.OnPush(events.ChatDelivery(a.notifStore, telegramAdapter,
			a.log.Named("chat-delivery")))
	}
	a.processor = events.NewProcessor(a.rdb, cfg.Redis.ProcessorName, cfg.Machine.Name,
		[]events.Cartridge{dedup, a.projector}, a.log.Named("processor"))

	// Local surfaces.
	a.apiServer = api.NewServer(cfg.API.SocketPath, hub, api.Handlers{
		Sessions:      handlers.NewSessionHandler(a.cmds, a.sessions, a.tracker, cfg.Machine.Name),
		Misc:          handlers.NewMiscHandler(a.registry, a.launcher, cfg.Projects.Roots),
		Notifications: handlers.NewNotificationHandler(a.notifStore),
	}, a.log.Named("api"))

	a.toolServer = toolserver.NewServer(cfg.Tools.SocketPath, a.cmds, a.sessions,
		a.registry, a.outputs, a.bridge, cfg.Machine.Name, a.log.Named("tools"))

	return nil
}

// Run starts every component and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer close(a.done)

	if err := a.apiServer.Start(); err != nil {
		return err
	}
	if err := a.toolServer.Start(runCtx); err != nil {
		return err
	}
	if err := a.ucap.Start(runCtx); err != nil {
		return err
	}
	if err := a.reaper.Start(); err != nil {
		return err
	}

	go a.heartbeat.Run(runCtx)
	go func() {
		if err := a.transport.Run(runCtx); err != nil {
			a.log.Error("mesh transport stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := a.processor.Run(runCtx); err != nil {
			a.log.Error("event processor stopped", zap.Error(err))
		}
	}()

	// Resume pollers for sessions that survived a restart; the persisted
	// baseline prevents double delivery.
	if sessions, err := a.sessions.List(runCtx, true); err == nil {
		for _, sess := range sessions {
			if a.bridge.HasPane(runCtx, sess.ID) {
				a.scheduler.Start(runCtx, sess.ID, sess.OutputBaseline)
			}
		}
	}

	a.emitter.Emit(runCtx, events.EmitParams{
		Type:        "system.daemon.restarted",
		Source:      "daemon",
		Level:       events.LevelInfrastructure,
		Domain:      "system",
		Description: "TeleClaude daemon started",
		Payload: map[string]interface{}{
			"computer": a.config.Machine.Name,
			"pid":      os.Getpid(),
		},
	})

	a.log.Info("daemon running",
		zap.String("machine", a.config.Machine.Name),
		zap.String("api", a.config.API.SocketPath))

	// Wait for a shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		a.log.Info("shutting down", zap.String("signal", sig.String()))
	case <-runCtx.Done():
	}

	return a.shutdown()
}

// Stop triggers shutdown from outside Run.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.cancel != nil {
		a.cancel()
	}
	a.scheduler.StopAll()
	a.reaper.Stop()
	a.ucap.Stop(shutdownCtx)
	a.toolServer.Stop()
	a.apiServer.Stop(shutdownCtx)
	if a.secrets != nil {
		a.secrets.Close()
	}
	a.rdb.Close()
	a.notifStore.Close()
	a.store.Close()
	a.log.Info("daemon stopped")
	return a.log.Sync()
}
