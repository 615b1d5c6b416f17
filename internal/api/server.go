package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/KeikobaBot/internal/flow"
	"github.com/BTreeMap/KeikobaBot/internal/store"
)

// Opts holds the API server configuration.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// ChannelSecret validates webhook signatures.
	ChannelSecret string
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithChannelSecret sets the webhook signing secret.
func WithChannelSecret(secret string) Option {
	return func(o *Opts) {
		o.ChannelSecret = secret
	}
}

// Server hosts the webhook and admin endpoints.
type Server struct {
	opts   Opts
	store  store.Store
	engine *flow.Engine
	http   *http.Server
}

// NewServer creates a Server wired to the store and conversation engine.
func NewServer(st store.Store, engine *flow.Engine, options ...Option) *Server {
	opts := Opts{Addr: ":8080"}
	for _, opt := range options {
		opt(&opts)
	}
	s := &Server{opts: opts, store: st, engine: engine}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders)

	r.Post("/webhook", s.webhookHandler)

	r.Route("/groups", func(r chi.Router) {
		r.Get("/", s.listGroupsHandler)
		r.Post("/", s.createGroupHandler)
		r.Route("/{groupID}", func(r chi.Router) {
			r.Get("/", s.getGroupHandler)
			r.Put("/", s.updateGroupHandler)
			r.Delete("/", s.deleteGroupHandler)
			r.Get("/practices", s.listPracticesHandler)
			r.Post("/practices", s.createPracticeHandler)
			r.Delete("/practices", s.deletePracticeHandler)
		})
	})

	return r
}

// corsHeaders attaches the CORS headers every response carries and resolves
// preflight requests.
func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "OPTIONS,DELETE,PUT,POST,GET")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.opts.Addr)
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api.Server.Start: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api.Server.Start: %w", err)
		}
		return nil
	}
}
