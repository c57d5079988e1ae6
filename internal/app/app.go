// Package app wires every harmonium subsystem into a running application.
//
// New creates and connects config, storage, resolver, transport, presence,
// the playback engine, the command facade, and the Discord bot identity.
// Run blocks serving HTTP health/metrics until its context is cancelled;
// Shutdown tears everything down in reverse order of construction.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmonium/harmonium/internal/config"
	"github.com/harmonium/harmonium/internal/discord"
	"github.com/harmonium/harmonium/internal/discord/commands"
	"github.com/harmonium/harmonium/internal/engine"
	"github.com/harmonium/harmonium/internal/facade"
	"github.com/harmonium/harmonium/internal/health"
	"github.com/harmonium/harmonium/internal/observe"
	presencediscord "github.com/harmonium/harmonium/internal/presence/discord"
	"github.com/harmonium/harmonium/internal/resolver/extractor"
	"github.com/harmonium/harmonium/internal/resume"
	"github.com/harmonium/harmonium/internal/storage"
	"github.com/harmonium/harmonium/internal/storage/jsonfile"
	"github.com/harmonium/harmonium/internal/storage/postgres"
	transportdiscord "github.com/harmonium/harmonium/internal/transport/discord"
)

// App owns every subsystem's lifetime.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store       storage.Store
	registry    *engine.Registry
	facade      *facade.Facade
	resumeCtrl  *resume.Controller
	bot         *discord.Bot
	assistant   *discordgo.Session
	httpServer  *http.Server
	events      chan engine.Event

	// closers run in reverse order during Shutdown.
	closers   []func() error
	stopOnce  sync.Once
	runCancel context.CancelFunc
}

// Option is a functional option for [New], used to inject test doubles.
type Option func(*App)

// WithStore injects a storage backend instead of selecting one from config.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// New wires every subsystem together. Use [Option] values to inject test
// doubles for any subsystem that would otherwise be built from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, events: make(chan engine.Event, 256)}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	resolverImpl := extractor.New(
		extractor.WithBinary(firstNonEmpty(cfg.Resolver.Binary, "yt-dlp")),
		extractor.WithMaxAttempts(cfg.Resolver.MaxAttempts),
		extractor.WithLogger(logger),
	)

	assistantToken := cfg.Discord.AssistantToken
	if assistantToken == "" {
		assistantToken = cfg.Discord.BotToken
	}
	var err error
	a.assistant, err = discordgo.New("Bot " + assistantToken)
	if err != nil {
		return nil, fmt.Errorf("app: create assistant session: %w", err)
	}
	a.assistant.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := a.assistant.Open(); err != nil {
		return nil, fmt.Errorf("app: open assistant session: %w", err)
	}
	a.closers = append(a.closers, a.assistant.Close)

	a.bot, err = discord.New(ctx, discord.Config{Token: cfg.Discord.BotToken, GuildID: cfg.Discord.GuildID})
	if err != nil {
		return nil, fmt.Errorf("app: create bot: %w", err)
	}
	a.closers = append(a.closers, a.bot.Close)

	presenceCoord := presencediscord.New(a.bot.Session(), a.assistant, cfg.Discord.VoiceRoleID, logger)

	checkpoint, resolveTimeout, storageTimeout, stagger, watchdogEpsilon := cfg.Engine.Durations()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "harmonium"})
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	a.closers = append(a.closers, func() error { return otelShutdown(context.Background()) })
	metrics := observe.DefaultMetrics()

	deps := engine.Deps{
		Resolver: resolverImpl,
		Storage:  a.store,
		Presence: presenceCoord,
		Logger:   logger,
		Metrics:  metrics,
	}
	engCfg := engine.Config{
		CheckpointInterval: checkpoint,
		ResolveTimeout:     resolveTimeout,
		StorageTimeout:     storageTimeout,
		MaxQueue:           cfg.Engine.MaxQueue,
		WatchdogEpsilon:    watchdogEpsilon,
	}

	onEnded := func(chatID string) {
		if actor, ok := a.registry.Lookup(chatID); ok {
			reply := make(chan engine.Snapshot, 1)
			actor.Send(engine.Query{Reply: reply})
			snap := <-reply
			if snap.HasCurrent {
				actor.Send(engine.StreamEnded{TrackID: snap.Current.TrackID})
			}
		}
	}
	deps.Transport = transportdiscord.New(a.assistant, onEnded, logger)

	a.registry = engine.NewRegistry(deps, engCfg, a.events)

	notifier := commands.NewNotifier(a.bot, logger)
	a.facade = facade.New(a.registry, a.events, notifier, cfg.Engine.RateLimit(), logger)
	commands.NewMusicCommands(a.bot, a.facade, notifier)

	a.resumeCtrl = resume.New(a.store, a.registry, logger, stagger)

	mux := http.NewServeMux()
	healthHandler := health.New(health.Checker{
		Name: "storage",
		Check: func(ctx context.Context) error {
			_, _, err := a.store.Get(ctx, "healthcheck-probe")
			return err
		},
	})
	healthHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	a.httpServer = &http.Server{Addr: cfg.Server.ListenAddr, Handler: observe.Middleware(metrics)(mux)}

	return a, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		store, err := postgres.New(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
	default:
		a.store = jsonfile.New(a.cfg.Storage.Path)
	}
	return nil
}

// Run starts the facade's event loop, the HTTP health/metrics server, and
// the startup resume pass, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	go a.facade.Run(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server error", "error", err)
		}
	}()

	notices := a.resumeCtrl.Run(ctx)
	a.logger.Info("resume pass complete", "resumed", len(notices))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.bot.Run(ctx); err != nil && err != context.Canceled {
			a.logger.Warn("discord bot stopped", "error", err)
		}
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Shutdown tears every subsystem down in reverse order of construction,
// bounded by ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.runCancel != nil {
			a.runCancel()
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown error", "error", err)
		}

		for _, id := range a.registry.ChatIDs() {
			a.registry.Stop(id)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.logger.Warn("closer error", "index", i, "error", err)
			}
		}
	})
	return shutdownErr
}
