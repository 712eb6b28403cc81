package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/config"
	"github.com/computebaker/tekir-quota/internal/database"
	"github.com/computebaker/tekir-quota/internal/handler"
	"github.com/computebaker/tekir-quota/internal/jobs"
	"github.com/computebaker/tekir-quota/internal/middleware"
	"github.com/computebaker/tekir-quota/internal/redis"
	"github.com/computebaker/tekir-quota/internal/repository"
	"github.com/computebaker/tekir-quota/internal/service"
	"github.com/computebaker/tekir-quota/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	usageRepo := repository.NewDeviceUsageRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)

	emitter := telemetry.NewEmitter(redisClient.Client)
	defer emitter.Close()

	policy := service.NewQuotaPolicy(userRepo)
	sessionService := service.NewSessionService(db, sessionRepo, policy)
	quotaService := service.NewQuotaService(db, sessionRepo, usageRepo, policy, emitter)
	sweeper := service.NewSweeper(sessionRepo)
	adminService := service.NewAdminService(sweeper, cfg.AdminPasswordHash)

	identityMiddleware := middleware.NewIdentityMiddleware(cfg.AuthTokenSecret)
	fingerprintMiddleware := middleware.NewFingerprintMiddleware(cfg.IPHashSalt)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminKey)

	sessionHandler := handler.NewSessionHandler(sessionService, cfg.SessionTTL())
	quotaHandler := handler.NewQuotaHandler(quotaService)
	adminHandler := handler.NewAdminHandler(adminService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(identityMiddleware.Handler)
		r.Use(fingerprintMiddleware.Handler)
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/quota", quotaHandler.Routes())
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	janitor := jobs.NewJanitor(sweeper, config.JanitorInterval)
	janitor.Start()
	defer janitor.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
