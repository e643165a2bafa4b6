package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/intelart/internal/chat"
	"github.com/felixgeelhaar/intelart/internal/config"
	"github.com/felixgeelhaar/intelart/internal/credential"
	"github.com/felixgeelhaar/intelart/internal/events"
	"github.com/felixgeelhaar/intelart/internal/guard"
	"github.com/felixgeelhaar/intelart/internal/httpapi"
	"github.com/felixgeelhaar/intelart/internal/observe"
	"github.com/felixgeelhaar/intelart/internal/persona"
	"github.com/felixgeelhaar/intelart/internal/provider"
	"github.com/felixgeelhaar/intelart/internal/rag"
	"github.com/felixgeelhaar/intelart/internal/session"
	"github.com/felixgeelhaar/intelart/internal/store"
	"github.com/felixgeelhaar/intelart/internal/story"
	"github.com/felixgeelhaar/intelart/internal/vectorstore"
	"github.com/felixgeelhaar/intelart/internal/watcher"
)

// App holds every service built from one configuration.
type App struct {
	Config    *config.AppConfig
	Observer  *observe.Observer
	Store     *store.SQLiteStore
	LLM       provider.Provider
	Embedder  provider.Provider
	Index     rag.Index
	Retriever *rag.Retriever
	Trainer   *rag.Trainer
	Chat      *chat.Service
	Persona   *persona.Persona
	Guard     *guard.Guard
	Bus       *events.EventBus

	closers []func() error
}

func openStore(cfg *config.AppConfig) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(
		filepath.Join(cfg.DataDir, "intelart.db"),
		filepath.Join(cfg.DataDir, "artifacts"),
	)
}

// NewApp wires the application. Close releases everything it opened, even
// after a failed NewApp.
func NewApp(ctx context.Context, cfg *config.AppConfig, obs *observe.Observer) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app = &App{Config: cfg, Observer: obs}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	app.Store, err = openStore(cfg)
	if err != nil {
		return app, fmt.Errorf("failed to open store: %w", err)
	}
	app.closers = append(app.closers, app.Store.Close)

	sealer, err := credential.NewSealer()
	if err != nil {
		return app, err
	}
	secrets := func(key string) (string, error) {
		return sealer.Resolve(app.Store.GetConfig, key)
	}

	app.LLM, err = provider.New(settings(cfg.LLM, cfg.Embedder), secrets)
	if err != nil {
		return app, fmt.Errorf("failed to initialize llm: %w", err)
	}
	app.Embedder = app.LLM
	if cfg.Embedder.Type != cfg.LLM.Type || cfg.Embedder.BaseURL != cfg.LLM.BaseURL {
		app.Embedder, err = provider.New(settings(cfg.Embedder, cfg.Embedder), secrets)
		if err != nil {
			return app, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	switch cfg.RAG.Index.Type {
	case "sqlite":
		app.Index = app.Store.Index()
	default:
		idx, err := vectorstore.NewChromem(cfg.IndexPath())
		if err != nil {
			return app, fmt.Errorf("failed to open index: %w", err)
		}
		app.Index = idx
		app.closers = append(app.closers, idx.Close)
	}

	app.Persona = persona.Default()
	if cfg.Persona.File != "" {
		app.Persona, err = persona.Load(cfg.Persona.File)
		if err != nil {
			return app, err
		}
	}
	lint := persona.Validate(*app.Persona)
	for _, w := range lint.Warnings {
		obs.Log().Warn().Str("persona", app.Persona.Name).Msg(w)
	}
	if !lint.Valid {
		return app, fmt.Errorf("invalid persona %s: %s", cfg.Persona.File, strings.Join(lint.Errors, "; "))
	}

	app.Guard = guard.New(guard.Policy{
		MaxUploadBytes:  int64(cfg.Server.MaxUploadMB) << 20,
		MaxChunks:       cfg.Guard.MaxChunks,
		UploadGlobs:     cfg.Guard.UploadGlobs,
		BlockedHosts:    cfg.Guard.BlockedHosts,
		MaxMessageRunes: guard.DefaultPolicy.MaxMessageRunes,
	})

	app.Bus = events.NewEventBus()
	app.Bus.LogTo(obs)

	app.Trainer = rag.NewTrainer(rag.TrainerDeps{
		Splitter: rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Embedder: app.Embedder,
		Index:    app.Index,
		Sources:  app.Store,
		Guard:    app.Guard,
		Bus:      app.Bus,
		Observer: obs,
	})

	app.Retriever, err = rag.NewRetriever(app.Embedder, app.Index, cfg.RAG.CacheSize, obs)
	if err != nil {
		return app, err
	}
	app.closers = append(app.closers, func() error {
		app.Retriever.Close()
		return nil
	})

	sessions, err := openSessions(ctx, cfg, app.Store)
	if err != nil {
		return app, err
	}
	if c, ok := sessions.(interface{ Close() error }); ok {
		app.closers = append(app.closers, c.Close)
	}

	app.Chat, err = chat.NewService(chat.Options{
		Mode:      cfg.Chat.Mode,
		TopK:      cfg.RAG.TopK,
		LLM:       app.LLM,
		Retriever: app.Retriever,
		Sessions:  session.NewManager(sessions, cfg.Chat.MaxHistory),
		Story:     story.NewEngine(app.Persona, cfg.Story.MaxScenes),
		Persona:   app.Persona,
		Guard:     app.Guard,
		Bus:       app.Bus,
		Observer:  obs,
	})
	if err != nil {
		return app, err
	}

	return app, nil
}

func settings(p, embed config.ProviderConfig) provider.Settings {
	s := provider.Settings{
		Type:      p.Type,
		Model:     p.Model,
		BaseURL:   p.BaseURL,
		APIKeyEnv: p.APIKeyEnv,
	}
	if embed.Type == p.Type {
		s.EmbedModel = embed.Model
	}
	return s
}

func openSessions(ctx context.Context, cfg *config.AppConfig, db store.Storage) (session.Store, error) {
	ttl := cfg.Session.TTL.Duration
	switch cfg.Session.Backend {
	case "redis":
		s, err := session.NewRedisStore(ctx, cfg.Session.RedisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, nil
	case "sqlite":
		return session.NewSQLStore(db, ttl), nil
	default:
		return session.NewMemoryStore(ttl), nil
	}
}

// Server builds the HTTP API over the app's services.
func (a *App) Server() *httpapi.Server {
	cfg := a.Config
	return httpapi.New(httpapi.Config{
		Addr:           cfg.Server.Addr,
		CORSOrigins:    cfg.Server.CORSOrigins,
		ReadTimeout:    cfg.Server.ReadTimeout.Duration,
		WriteTimeout:   cfg.Server.WriteTimeout.Duration,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Model:          cfg.LLM.Model,
	}, httpapi.Deps{
		Trainer:  a.Trainer,
		Chat:     a.Chat,
		Index:    a.Index,
		Sources:  a.Store,
		Persona:  a.Persona,
		LLMName:  a.LLM.Name(),
		Observer: a.Observer,
	})
}

// Watcher returns the drop folder watcher, or nil when none is configured.
func (a *App) Watcher() *watcher.Watcher {
	if a.Config.Watch.Dir == "" {
		return nil
	}
	return watcher.New(a.Config.Watch.Dir, a.Trainer, a.Guard, a.Observer)
}

// ResetIndex drops every learned chunk and forgets the sources they came
// from, so the same documents can be trained again.
func (a *App) ResetIndex(ctx context.Context) error {
	if err := a.Index.Reset(ctx); err != nil {
		return err
	}
	if err := a.Store.ResetSources(); err != nil {
		return err
	}
	a.Bus.PublishWithData(events.EventIndexReset, "", nil)
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
