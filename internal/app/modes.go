package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polygens/wagerd/internal/server"
	"github.com/polygens/wagerd/internal/server/handler"
	"github.com/polygens/wagerd/internal/server/ws"
)

// shutdownGrace bounds how long the HTTP server may drain on shutdown.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP API and the WebSocket hub until the context is
// cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	hub := ws.NewHub(deps.Bus, nil, a.logger)

	checks := map[string]handler.Pinger{
		"postgres": deps.PG,
		"redis":    deps.Redis,
	}
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Market: handler.NewMarketHandler(deps.MarketSvc, a.logger),
		Bet:    handler.NewBetHandler(deps.Wagers, deps.MarketSvc, deps.CashOuts, a.logger),
		User:   handler.NewUserHandler(deps.MarketSvc, a.logger),
		Admin:  handler.NewAdminHandler(deps.MarketSvc, deps.Settlement, a.logger),
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		AdminAPIKey: a.cfg.Server.AdminAPIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.Limiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

// SeedMode loads the starter market catalogue into an empty database and
// exits.
func (a *App) SeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting seed mode")

	n, err := deps.MarketSvc.Seed(ctx)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "seed complete", slog.Int("markets", n))
	return nil
}
