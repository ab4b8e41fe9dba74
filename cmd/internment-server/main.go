package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hospital/internment/internal/config"
	"github.com/hospital/internment/internal/domain/internment"
	"github.com/hospital/internment/internal/platform/auth"
	"github.com/hospital/internment/internal/platform/db"
	"github.com/hospital/internment/internal/platform/metrics"
	"github.com/hospital/internment/internal/platform/middleware"
	"github.com/hospital/internment/pkg/dates"
)

const version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "internment-server",
		Short:        "Hospital internment tracking API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(reviewCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "internment-server").Logger()
}

// loadConfig reads and validates configuration and opens the pool. Callers
// close the pool.
func loadConfig(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func newService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*internment.Service, error) {
	clock, err := dates.NewSystemClock(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	svc := internment.NewService(internment.NewRepo(pool), clock)
	svc.SetLogger(logger)
	return svc, nil
}

func runServer() error {
	ctx := context.Background()
	cfg, pool, err := loadConfig(ctx)
	if err != nil {
		startupLogger := newLogger(os.Getenv("ENV"))
		startupLogger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer pool.Close()

	logger := newLogger(cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("timezone", cfg.Timezone).Msg("connected to database")

	svc, err := newService(cfg, pool, logger)
	if err != nil {
		return err
	}

	e, err := newEcho(cfg, pool, svc, logger)
	if err != nil {
		return err
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho assembles the middleware chain and routes.
func newEcho(cfg *config.Config, pool *pgxpool.Pool, svc *internment.Service, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.TenantHeader},
		ExposeHeaders: []string{"Content-Disposition", "Retry-After"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		key, err := cfg.SigningKey()
		if err != nil {
			return nil, err
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: key,
		}))
	}

	if pool != nil {
		e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant, auth.IsPublicPath))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rl))

	internment.NewHandler(svc).RegisterRoutes(apiV1)
	return e, nil
}
