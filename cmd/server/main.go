// Command server runs the clinic REST API.
//
// @title                      Clinic API
// @version                    1.0
// @description                Users, doctors, patients and appointments for a small clinic. Every failure uses one error envelope.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the JWT.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-clinic-api/internal/config"
	httpapi "github.com/tbourn/go-clinic-api/internal/http"
	"github.com/tbourn/go-clinic-api/internal/observability"
	"github.com/tbourn/go-clinic-api/internal/repo"
	"github.com/tbourn/go-clinic-api/internal/services"
	"github.com/tbourn/go-clinic-api/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL,
		sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version), cfg.Env)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	if cfg.DatabaseURL == "" {
		if err := sysutil.EnsureParentDir(cfg.DBPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("cannot create database directory")
		}
	}
	db, err := repo.Open(cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	backend := "sqlite"
	if cfg.DatabaseURL != "" {
		backend = "postgres"
	}
	log.Info().Str("backend", backend).Msg("database ready")

	if cfg.Auth.AdminEmail != "" {
		accounts := services.NewUserService(db, repo.Gorm{}, nil, cfg.Auth.BcryptCost)
		created, err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("admin bootstrap failed")
		}
		if created {
			log.Info().Str("username", cfg.Auth.AdminUsername).Msg("admin account created")
		}
	}

	users := repo.NewFileStore(cfg.UsersFile)
	if err := users.Init(); err != nil {
		log.Fatal().Err(err).Str("path", cfg.UsersFile).Msg("users file init failed")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, users, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Str("base_path", cfg.APIBasePath).Msg("clinic api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := shutdownOTel(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("otel shutdown error")
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("database close error")
		}
	}
	log.Info().Msg("bye")
}
