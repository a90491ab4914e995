// Package server wires the gateway's HTTP surface: routing, middleware
// order, error mapping and the health endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lightspan-ai/gateway/pkg/auth"
	"github.com/lightspan-ai/gateway/pkg/authz"
	"github.com/lightspan-ai/gateway/pkg/cache"
	"github.com/lightspan-ai/gateway/pkg/config"
	"github.com/lightspan-ai/gateway/pkg/conversations"
	"github.com/lightspan-ai/gateway/pkg/feedback"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/metrics"
	"github.com/lightspan-ai/gateway/pkg/query"
)

// Options carries the services a Server routes to.
type Options struct {
	Config        *config.Config
	Client        llamastack.Client
	Query         *query.Handler
	Cache         cache.Cache
	Conversations conversations.Store
	Feedback      *feedback.Store
	AuthModule    auth.Module
	Roles         authz.RolesResolver
	Access        authz.AccessResolver
	Version       string
}

// Server is the gateway HTTP server.
type Server struct {
	cfg           *config.Config
	client        llamastack.Client
	query         *query.Handler
	cache         cache.Cache
	conversations conversations.Store
	feedback      *feedback.Store
	authModule    auth.Module
	roles         authz.RolesResolver
	access        authz.AccessResolver
	version       string

	httpServer *http.Server
}

// New creates a server with its routes installed.
func New(opts Options) *Server {
	s := &Server{
		cfg:           opts.Config,
		client:        opts.Client,
		query:         opts.Query,
		cache:         opts.Cache,
		conversations: opts.Conversations,
		feedback:      opts.Feedback,
		authModule:    opts.AuthModule,
		roles:         opts.Roles,
		access:        opts.Access,
		version:       opts.Version,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Config.Service.Address(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Middleware order is request logging, then
// authentication, then the per-route action check.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health/readiness", s.handleReadiness)
	r.Get("/health/liveness", s.handleLiveness)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authModule))

		r.Post("/authorized", s.handleAuthorized)
		r.With(s.authorize(authz.ActionGetMetrics)).Get("/metrics", metrics.Handler().ServeHTTP)

		r.Route("/v1", func(r chi.Router) {
			r.With(s.authorize(authz.ActionQuery)).Post("/query", s.handleQuery)
			r.With(s.authorize(authz.ActionStreamingQuery)).Post("/streaming_query", s.handleStreamingQuery)
			r.With(s.authorize(authz.ActionFeedback)).Post("/feedback", s.handleFeedback)
			r.Get("/feedback/status", s.handleFeedbackStatus)
			r.With(s.authorize(authz.ActionAdmin)).Put("/feedback/status", s.handleFeedbackStatusUpdate)

			r.Get("/info", s.handleInfo)
			r.Get("/models", s.handleModels)
			r.Get("/tools", s.handleTools)
			r.Get("/shields", s.handleShields)
			r.Get("/providers", s.handleProviders)
			r.Get("/config", s.handleConfig)
		})

		r.Route("/v2", func(r chi.Router) {
			r.With(s.authorize(authz.ActionListConversations)).Get("/conversations", s.handleListConversations)
			r.With(s.authorize(authz.ActionGetConversation)).Get("/conversations/{id}", s.handleGetConversation)
			r.With(s.authorize(authz.ActionDeleteConversation)).Delete("/conversations/{id}", s.handleDeleteConversation)
			r.With(s.authorize(authz.ActionUpdateConversation)).Put("/conversations/{id}", s.handleUpdateConversation)
		})
	})

	return r
}

func (s *Server) authorize(action authz.Action) func(http.Handler) http.Handler {
	return authz.Middleware(action, s.roles, s.access)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
