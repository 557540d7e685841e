package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/server/handler"
	"github.com/polygens/wagerd/internal/server/middleware"
	"github.com/polygens/wagerd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// AdminAPIKey guards the /api/admin routes. Empty keeps them closed.
	AdminAPIKey string

	// RateLimit throttles requests per client IP per RateWindow. Zero
	// disables HTTP-level limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health *handler.HealthHandler
	Market *handler.MarketHandler
	Bet    *handler.BetHandler
	User   *handler.UserHandler
	Admin  *handler.AdminHandler
}

// Server is the HTTP and WebSocket surface of the wagering engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers all routes and wraps them in the middleware chain: CORS,
// then request logging, then per-IP rate limiting, with the admin key guard
// applied only to privileged routes.
func New(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", handlers.Market.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Market.GetMarket)

	mux.HandleFunc("POST /api/bets", handlers.Bet.PlaceBet)
	mux.HandleFunc("GET /api/bets/{id}", handlers.Bet.GetBet)
	mux.HandleFunc("GET /api/bets/{id}/cashout", handlers.Bet.QuoteCashOut)
	mux.HandleFunc("POST /api/bets/{id}/cashout", handlers.Bet.ExecuteCashOut)

	mux.HandleFunc("GET /api/users/{id}", handlers.User.GetUser)
	mux.HandleFunc("GET /api/leaderboard", handlers.User.Leaderboard)

	admin := middleware.Auth(cfg.AdminAPIKey)
	mux.Handle("POST /api/admin/markets", admin(http.HandlerFunc(handlers.Admin.CreateMarket)))
	mux.Handle("GET /api/admin/markets", admin(http.HandlerFunc(handlers.Admin.ListMarkets)))
	mux.Handle("POST /api/admin/resolve", admin(http.HandlerFunc(handlers.Admin.ResolveMarket)))
	mux.Handle("GET /api/admin/treasury", admin(http.HandlerFunc(handlers.Admin.Treasury)))

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
