// Package app assembles the dialogue engine and its dependencies from
// configuration. Both the server and the console binaries use it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ashureev/aicare/internal/backend"
	"github.com/ashureev/aicare/internal/config"
	"github.com/ashureev/aicare/internal/convlog"
	"github.com/ashureev/aicare/internal/dialogue"
	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/generation"
	"github.com/ashureev/aicare/internal/intent"
	"github.com/ashureev/aicare/internal/prompt"
	"github.com/ashureev/aicare/internal/store"
)

// App holds the assembled components.
type App struct {
	Config     *config.Config
	Store      store.SessionStore
	Generation *generation.Service
	Engine     *dialogue.Engine
	ConvLog    *convlog.Logger

	logger  *slog.Logger
	closers []func() error
}

// Build creates every component. channel labels conversation log events.
// Nothing runs until Start.
func Build(ctx context.Context, cfg *config.Config, channel string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Store, err = openStore(ctx, cfg.Store, cfg.SessionTTL); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)
	if err = a.Store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("session store health check: %w", err)
	}

	format, err := prompt.ForFamily(cfg.Generation.PromptFamily)
	if err != nil {
		return nil, err
	}
	rt, err := generation.NewOllamaRuntime(cfg.Generation.OllamaHost, cfg.Generation.OllamaModel, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("create model runtime: %w", err)
	}
	a.Generation = generation.NewService(rt, generation.Options{
		MaxActiveJobs: cfg.Generation.MaxActiveJobs,
		JobTimeout:    cfg.Generation.JobTimeout,
	}, logger)
	a.closers = append(a.closers, a.Generation.Close)

	backends := map[domain.BackendChoice]backend.Backend{
		domain.BackendLocal: backend.NewLocal(a.Generation, format, cfg.Generation.RemindToEnd),
	}
	if remote, err := a.openRemote(ctx, cfg.Remote); err != nil {
		return nil, err
	} else if remote != nil {
		backends[domain.BackendRemote] = remote
	}

	if a.ConvLog, err = convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger); err != nil {
		return nil, fmt.Errorf("create conversation logger: %w", err)
	}
	a.closers = append(a.closers, a.ConvLog.Close)

	choice, ok := domain.ParseBackendChoice(cfg.Dialogue.DefaultBackend)
	if !ok {
		return nil, fmt.Errorf("unknown default backend %q", cfg.Dialogue.DefaultBackend)
	}

	a.Engine, err = dialogue.NewEngine(dialogue.Deps{
		Store:     a.Store,
		Backends:  backends,
		Policy:    dialogue.FixedPolicy(choice),
		Extractor: intent.NewExtractor(intent.Options{UnsureAsNo: cfg.Dialogue.UnsureAsNo}, logger),
		Composer:  dialogue.NewComposer(cfg.Dialogue.DisableParaphrase, logger),
		Log:       a.ConvLog,
		Logger:    logger,
		Channel:   channel,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Dialogue engine ready",
		"store", cfg.Store.Driver,
		"prompt_family", format.Name(),
		"model", cfg.Generation.OllamaModel,
		"remote", cfg.Remote.Provider,
		"default_backend", choice)
	return a, nil
}

// Start launches the generation scheduler and the session TTL worker. Both
// stop when ctx is done.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Generation.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Generation scheduler stopped", "error", err)
		}
	}()
	store.StartTTLWorker(ctx, a.Store, a.Config.SessionTTL, a.Config.CleanupInterval, nil)
}

// Close releases components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.StoreConfig, ttl time.Duration) (store.SessionStore, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return store.NewRedis(client, ttl), nil
	case "sqlite", "":
		s, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func (a *App) openRemote(ctx context.Context, cfg config.RemoteConfig) (backend.Backend, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "gemini":
		g, err := backend.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return backend.NewRemote("gemini", g), nil
	case "openai":
		o, err := backend.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return backend.NewRemote("openai", o), nil
	}
	return nil, fmt.Errorf("unknown remote provider %q", cfg.Provider)
}
