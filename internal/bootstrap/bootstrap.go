package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"xtts-server-go/internal/domain/cache"
	"xtts-server-go/internal/domain/latents"
	"xtts-server-go/internal/domain/stream"
	"xtts-server-go/internal/domain/synthesis"
	"xtts-server-go/internal/domain/synthesis/providers/edge"
	"xtts-server-go/internal/domain/synthesis/providers/shell"
	"xtts-server-go/internal/domain/voices"
	platformconfig "xtts-server-go/internal/platform/config"
	platformerrors "xtts-server-go/internal/platform/errors"
	platformlogging "xtts-server-go/internal/platform/logging"
	platformstorage "xtts-server-go/internal/platform/storage"
	httptransport "xtts-server-go/internal/transport/http"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID      string
	Title   string
	Kind    platformerrors.Kind
	Execute stepFn
}

type appState struct {
	config     *platformconfig.Config
	configPath string
	logger     *platformlogging.Logger
	state      *platformstorage.StateStore
	results    cache.Store
	engine     synthesis.Engine
	resolver   *voices.Resolver
	latents    *latents.Store
	gateway    *synthesis.Gateway
	stream     *stream.Manager
}

// Run loads configuration, wires the domain components and serves HTTP
// until a termination signal arrives.
func Run(ctx context.Context) error {
	state := &appState{}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}
	logger := state.logger
	defer logger.Close()
	defer state.close(logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, logger, group)
}

func (s *appState) close(logger *platformlogging.Logger) {
	if s.results != nil {
		if err := s.results.Close(); err != nil {
			logger.WarnTag("CACHE", "cache did not close cleanly: %v", err)
		}
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			logger.WarnTag("TTS", "engine did not close cleanly: %v", err)
		}
	}
	if s.state != nil {
		if err := s.state.Close(); err != nil {
			logger.WarnTag("STORE", "state store did not close cleanly: %v", err)
		}
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	for _, step := range steps {
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
	}
	return nil
}

// InitGraph lists the initialization steps in dependency order.
func InitGraph() []initStep {
	return []initStep{
		{ID: "config:load", Title: "Load configuration", Kind: platformerrors.KindConfig, Execute: loadConfigStep},
		{ID: "logging:init", Title: "Initialise logging", Kind: platformerrors.KindBootstrap, Execute: initLoggingStep},
		{ID: "storage:open", Title: "Open state store", Kind: platformerrors.KindStorage, Execute: openStateStep},
		{ID: "cache:init", Title: "Initialise result cache", Kind: platformerrors.KindBootstrap, Execute: initCacheStep},
		{ID: "engine:init", Title: "Initialise synthesis engine", Kind: platformerrors.KindBootstrap, Execute: initEngineStep},
		{ID: "voices:init", Title: "Initialise voice folders", Kind: platformerrors.KindBootstrap, Execute: initVoicesStep},
		{ID: "gateway:init", Title: "Initialise synthesis gateway", Kind: platformerrors.KindBootstrap, Execute: initGatewayStep},
		{ID: "stream:init", Title: "Initialise streaming session", Kind: platformerrors.KindBootstrap, Execute: initStreamStep},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	if state.config != nil {
		return nil
	}
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return err
	}
	if err := platformconfig.Validate(result.Config); err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.logger != nil {
		return nil
	}
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return err
	}
	state.logger = logger
	source := state.configPath
	if source == "" {
		source = "defaults+env"
	}
	logger.InfoTag("BOOT", "logging ready [%s] config from %s", state.config.Log.Level, source)
	return nil
}

func openStateStep(_ context.Context, state *appState) error {
	store, err := platformstorage.Open(state.config.Storage.DataDir)
	if err != nil {
		return err
	}
	state.state = store
	return nil
}

func initCacheStep(_ context.Context, state *appState) error {
	results, err := cache.New(state.config.Cache)
	if err != nil {
		return err
	}
	state.results = results
	if results != nil {
		state.logger.InfoTag("CACHE", "result caching enabled (%s), repeat requests are served from disk", state.config.Cache.Type)
	}
	return nil
}

func initEngineStep(_ context.Context, state *appState) error {
	cfg := state.config

	// A model switched at runtime survives restarts.
	if name, ok, err := state.state.ActiveModel(); err == nil && ok {
		cfg.Model.Version = name
	}

	switch cfg.Engine.Type {
	case "", "exec":
		engine, err := shell.New(cfg.Engine.Exec, cfg.Model, state.logger)
		if err != nil {
			return err
		}
		state.engine = engine
	case "edge":
		state.engine = edge.New(cfg.Engine.Edge, state.logger)
	default:
		return platformerrors.New(platformerrors.KindConfig, "engine:init",
			fmt.Sprintf("unknown engine type %q", cfg.Engine.Type))
	}

	state.logger.InfoTag("BOOT", "engine %q ready, model %s on %s",
		cfg.Engine.Type, cfg.Model.Version, cfg.Model.Device)
	return nil
}

func initVoicesStep(_ context.Context, state *appState) error {
	cfg := state.config
	resolver := voices.NewResolver(cfg.Folders.Speaker, cfg.Folders.Output, cfg.Folders.Latent, cfg.Model.Folder)

	for _, kind := range []voices.RootKind{voices.RootSpeaker, voices.RootOutput, voices.RootLatent, voices.RootModel} {
		if err := resolver.SetRoot(kind, resolver.Root(kind)); err != nil {
			return err
		}
	}

	// Folder overrides set over the API take precedence over config.
	overrides, err := state.state.Folders()
	if err != nil {
		return err
	}
	for kind, path := range overrides {
		if err := resolver.SetRoot(voices.RootKind(kind), path); err != nil {
			state.logger.WarnTag("BOOT", "persisted %s folder %q no longer usable: %v", kind, path, err)
		}
	}

	state.resolver = resolver
	state.latents = latents.NewStore(resolver.Root(voices.RootLatent), state.engine, state.logger)
	return nil
}

func initGatewayStep(_ context.Context, state *appState) error {
	gateway := synthesis.NewGateway(state.engine, state.resolver, state.latents, state.results, state.logger)

	if payload, ok, err := state.state.LoadSettings(); err == nil && ok {
		var settings synthesis.Settings
		if uerr := sonic.UnmarshalString(payload, &settings); uerr == nil {
			if aerr := gateway.ApplySettings(settings); aerr != nil {
				state.logger.WarnTag("BOOT", "persisted settings rejected, using defaults: %v", aerr)
			}
		}
	}

	state.gateway = gateway
	return nil
}

func initStreamStep(_ context.Context, state *appState) error {
	if !state.config.Streaming.Enabled {
		return nil
	}

	playerEngine := stream.NewPlayerEngine(state.engine)
	factory := stream.NewPlayerSessionFactory(
		state.config.Engine.Exec.PlayCommand,
		state.gateway.Settings,
		state.logger,
	)
	state.stream = stream.NewManager(playerEngine, factory, stream.Config{
		Improved: state.config.Streaming.Improved,
		PlaySync: state.config.Streaming.PlaySync,
	}, state.logger)

	state.logger.WarnTag("STREAM", "streaming mode plays audio on the server host and has limitations; HTTP responses carry silence")
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	cfg := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}

	handlers := &httptransport.Handlers{
		Config:   cfg,
		Gateway:  state.gateway,
		Latents:  state.latents,
		Resolver: state.resolver,
		Stream:   state.stream,
		State:    state.state,
		Logger:   logger,
	}
	handlers.Register(router)

	server := &http.Server{
		Addr:    cfg.Server.IP + ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", server.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server shut down cleanly")
			}
		}()

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "shutdown signal received, cleaning up")

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
	return nil
}
