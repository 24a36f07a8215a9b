package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/breakout-trader-go/internal/api/handlers"
	"github.com/bikeshrana/breakout-trader-go/internal/auth"
	"github.com/bikeshrana/breakout-trader-go/internal/config"
	"github.com/bikeshrana/breakout-trader-go/internal/data"
	"github.com/bikeshrana/breakout-trader-go/internal/data/timescale"
	"github.com/bikeshrana/breakout-trader-go/internal/metrics"
)

// Server wraps the dashboard HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	logger zerolog.Logger
}

// Deps bundles what the API serves.
type Deps struct {
	DB        *timescale.Client
	Sessions  *data.SessionsRepository
	Watchlist *data.WatchlistRepository
	JWT       *auth.JWTService
	Auth      config.AuthConfig
	Metrics   *metrics.TradingMetrics
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if deps.Metrics != nil {
		r.Use(metrics.HTTPMetricsMiddleware(deps.Metrics))
	}

	authHandler := handlers.NewAuthHandler(deps.JWT, deps.Auth, logger)
	sessionsHandler := handlers.NewSessionsHandler(deps.Sessions, logger)
	watchlistHandler := handlers.NewWatchlistHandler(deps.Watchlist, logger)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.DB != nil {
			if err := deps.DB.Health(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTMiddleware(deps.JWT, logger))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionsHandler.List)
			r.Get("/{sessionId}", sessionsHandler.Get)
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", watchlistHandler.List)
			r.Post("/", watchlistHandler.Add)
			r.Delete("/{symbol}", watchlistHandler.Remove)
		})
	})

	return &Server{
		router: r,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// Start begins serving; blocks until the listener fails or Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", s.cfg.Addr()).Msg("API server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("API server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// LoggingMiddleware logs each request through zerolog.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("Request handled")
		})
	}
}

// JWTMiddleware rejects requests without a valid bearer token.
func JWTMiddleware(jwtService *auth.JWTService, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"missing bearer token"}}`))
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				logger.Debug().Err(err).Msg("Token rejected")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"invalid token"}}`))
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type claimsContextKey struct{}

// ClaimsFromContext extracts the validated claims, if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims, ok
}
