// Package httpapi exposes training and chat over HTTP and WebSocket.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/felixgeelhaar/intelart/internal/chat"
	"github.com/felixgeelhaar/intelart/internal/observe"
	"github.com/felixgeelhaar/intelart/internal/persona"
	"github.com/felixgeelhaar/intelart/internal/rag"
)

// SourceLister lists what has been learned so far.
type SourceLister interface {
	ListSources() ([]*rag.Source, error)
}

type Config struct {
	Addr           string
	CORSOrigins    []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	// Model is quoted in the "model not found" hint.
	Model string
}

// Deps are the services behind the routes. Sources and Index are optional.
type Deps struct {
	Trainer  *rag.Trainer
	Chat     *chat.Service
	Index    rag.Index
	Sources  SourceLister
	Persona  *persona.Persona
	LLMName  string
	Observer *observe.Observer
}

// Server is the HTTP server for the Intelart API.
type Server struct {
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
}

func New(cfg Config, deps Deps) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if deps.Persona == nil {
		deps.Persona = persona.Default()
	}
	if deps.Observer == nil {
		deps.Observer = observe.Discard()
	}

	s := &Server{cfg: cfg, deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return s.originAllowed(r.Header.Get("Origin")) },
	}
	return s
}

// Handler returns the routed handler with CORS, logging and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /train", s.handleTrain)
	mux.HandleFunc("POST /train_url", s.handleTrainURL)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /status/{id}", s.handleStatus)
	mux.HandleFunc("GET /sources", s.handleSources)
	mux.HandleFunc("GET /ws", s.handleWS)

	return otelhttp.NewHandler(s.corsMiddleware(s.loggingMiddleware(mux)), "intelart")
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.deps.Observer.Log().Info().Str("addr", s.cfg.Addr).Str("llm", s.deps.LLMName).Msg("server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
