// Package server provides the HTTP API for Shirabe.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nakatsu/shirabe/internal/bus"
	"github.com/nakatsu/shirabe/internal/config"
	"github.com/nakatsu/shirabe/internal/history"
	"github.com/nakatsu/shirabe/internal/models"
	"github.com/nakatsu/shirabe/internal/session"
	"github.com/nakatsu/shirabe/internal/watcher"
)

// Server is the HTTP server for the Shirabe API.
type Server struct {
	session *session.Session
	bus     *bus.Bus
	cfg     *config.Config
	logger  *zap.Logger

	history    *history.Store
	watch      *watcher.Watcher
	configPath string
	configMu   sync.Mutex

	server *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHistoryStore exposes persisted history over the API.
func WithHistoryStore(h *history.Store) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithWatcher enables the watch-directory endpoints.
func WithWatcher(w *watcher.Watcher) ServerOption {
	return func(s *Server) { s.watch = w }
}

// WithConfigPath persists watch-directory changes back to the config file.
func WithConfigPath(path string) ServerOption {
	return func(s *Server) { s.configPath = path }
}

// NewServer creates a server with the given dependencies.
func NewServer(sess *session.Session, b *bus.Bus, cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{
		session: sess,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/files", s.handleListFiles)
		r.Post("/files", s.handleAddFiles)
		r.Delete("/files", s.handleClearFiles)
		r.Delete("/files/{index}", s.handleRemoveFile)
		r.Post("/files/{index}/check", s.handleCheckFile)
		r.Post("/files/select-all", s.handleSelectAll)
		r.Post("/files/select-none", s.handleSelectNone)

		r.Get("/ui-state", s.handleUIState)
		r.Post("/instruction", s.handleSetInstruction)
		r.Get("/result", s.handleResult)
		r.Get("/transcript", s.handleTranscript)

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/guidelines", s.handleGuidelines)

		r.Get("/history", s.handleHistory)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)

		r.Get("/events", s.handleEvents)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleEvents streams bus events as server-sent events. Each bus channel
// becomes an SSE event type; the stream runs until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	type envelope struct {
		channel string
		payload any
	}
	events := make(chan envelope, 64)
	forward := func(channel string) func(any) {
		return func(ev any) {
			select {
			case events <- envelope{channel: channel, payload: ev}:
			default:
				// Slow client; drop rather than block publishers.
			}
		}
	}
	unsubs := []func(){
		s.bus.Subscribe(models.ChannelLog, forward(models.ChannelLog)),
		s.bus.Subscribe(models.ChannelProgress, forward(models.ChannelProgress)),
		s.bus.Subscribe(models.ChannelDetected, forward(models.ChannelDetected)),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev := <-events:
			data, err := json.Marshal(ev.payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.channel, data)
			flusher.Flush()
		}
	}
}
