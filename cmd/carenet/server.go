package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carenet/carenet/internal/config"
	"github.com/carenet/carenet/internal/domain/federation"
	"github.com/carenet/carenet/internal/domain/records"
	"github.com/carenet/carenet/internal/platform/db"
	"github.com/carenet/carenet/internal/platform/middleware"
	"github.com/carenet/carenet/internal/platform/sandbox"
)

const (
	maxBodySize     = "1M"
	shutdownTimeout = 10 * time.Second
)

func runServer() error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp(ctx, os.Stdout, true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	engine := a.engine(a.cfg.Master)
	e := newServer(a.cfg, logger, a.svc, engine, a.pool, a.schema)

	if a.cfg.Master && len(a.cfg.Peers) > 0 {
		n := registerPeers(ctx, engine, a.cfg.Peers, logger)
		logger.Info().Int("registered", n).Int("configured", len(a.cfg.Peers)).Msg("peers registered")
	} else if len(a.cfg.Peers) > 0 {
		logger.Warn().Msg("PEERS is set but MASTER is false; peers are ignored")
	}

	go func() {
		addr := ":" + a.cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("facility", a.cfg.FacilityName).
			Str("prefix", engine.Prefix()).
			Bool("master", a.cfg.Master).
			Str("store", a.cfg.StoreDriver).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires the facility API, the master API and the ambient
// middleware. pool is nil for the memory store.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *records.Service, engine *federation.Engine, pool *pgxpool.Pool, schema string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	records.NewHandler(svc, cfg.FacilityName).RegisterRoutes(e)
	if pool != nil {
		e.GET("/health/db", db.PoolHealthHandler(pool, schema))
	}

	api := e.Group("/api/v1")
	federation.NewHandler(engine).RegisterRoutes(api)

	if cfg.IsDev() {
		sandbox.NewSeedHandler(sandbox.NewSeeder(svc, logger)).RegisterRoutes(api.Group("/sandbox"))
	}

	return e
}
