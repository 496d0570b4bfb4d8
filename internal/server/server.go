package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/api/handler"
	"github.com/davidwehrlin/tag-master/internal/auth"
	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/metrics"
	"github.com/davidwehrlin/tag-master/internal/middleware"
	"github.com/davidwehrlin/tag-master/internal/permissions"
	"github.com/davidwehrlin/tag-master/internal/player"
)

// Store is everything the HTTP layer needs from persistence.
type Store interface {
	player.Store
	permissions.LeagueReader
	handler.LeagueStore
	handler.Pinger
}

type Config struct {
	Port        int
	CORSOrigins []string
	ExemptPaths []string
}

type Server struct {
	router      *mux.Router
	handler     http.Handler
	port        int
	logger      *logger.ZeroLogger
	rateLimiter limiter.RateLimiter
	httpServer  *http.Server
}

func NewServer(cfg Config, store Store, tokens *auth.TokenIssuer, rateLimiter limiter.RateLimiter, stats limiter.StatsRecorder, log *logger.ZeroLogger) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		port:        cfg.Port,
		logger:      log,
		rateLimiter: rateLimiter,
	}

	players := player.NewService(store)
	authn := auth.NewAuthenticator(tokens, players, log)
	statsReader, _ := stats.(handler.StatsReader)
	s.setupRoutes(store, players, tokens, authn, statsReader)

	exempt := cfg.ExemptPaths
	if len(exempt) == 0 {
		exempt = limiter.DefaultExemptPaths
	}
	limitOpts := []limiter.MiddlewareOption{limiter.WithExemptPaths(exempt...)}
	if stats != nil {
		limitOpts = append(limitOpts, limiter.WithStats(stats))
	}

	// снаружи внутрь: CORS, логирование, паники, личность, лимит, роутер
	var h http.Handler = s.router
	h = limiter.Middleware(rateLimiter, log, limitOpts...)(h)
	h = authn.Identify(h)
	h = middleware.HandlePanic(log)(h)
	h = middleware.RequestLogger(log)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	s.handler = h

	return s
}

func (s *Server) setupRoutes(store Store, players *player.Service, tokens *auth.TokenIssuer, authn *auth.Authenticator, stats handler.StatsReader) {
	s.router.Use(metrics.Middleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	apiRouter := s.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(jsonMiddleware)

	handler.NewHealthHandler(store, s.logger).RegisterRoutes(s.router, apiRouter)
	handler.NewAuthHandler(players, tokens, s.logger).RegisterRoutes(apiRouter)
	handler.NewPlayerHandler(players, s.logger).RegisterRoutes(apiRouter, authn.Require)
	handler.NewLeagueHandler(store, players, permissions.NewResolver(store), s.logger).RegisterRoutes(apiRouter, authn.Require)
	handler.NewAdminHandler(s.rateLimiter, stats, s.logger).RegisterRoutes(apiRouter, authn.Require)
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// Handler returns the fully wrapped handler; used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Start() error {
	s.router.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		s.logger.Infof("Registered route: %v %s", methods, path)
		return nil
	})

	s.httpServer = &http.Server{
		Addr:         ":" + strconv.Itoa(s.port),
		Handler:      s.handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.port)
	return s.httpServer.ListenAndServe()
}

// Stop stops the limiter first so its sweeper does not outlive the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.rateLimiter.Stop(); err != nil {
		s.logger.Errorf("Rate limiter shutdown error: %v", err)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
