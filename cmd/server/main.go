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

	"github.com/quizblitz/live-server/internal/config"
	"github.com/quizblitz/live-server/internal/database"
	"github.com/quizblitz/live-server/internal/handler"
	"github.com/quizblitz/live-server/internal/hub"
	"github.com/quizblitz/live-server/internal/jobs"
	"github.com/quizblitz/live-server/internal/middleware"
	"github.com/quizblitz/live-server/internal/redis"
	"github.com/quizblitz/live-server/internal/registry"
	"github.com/quizblitz/live-server/internal/repository"
	"github.com/quizblitz/live-server/internal/service"
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

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	ctx, cancel = context.WithTimeout(context.Background(), config.DBPingTimeout)
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	activeRepo := repository.NewActiveSessionRepository(redisClient.Client)
	historyRepo := repository.NewHistoryRepository(db.DB)
	contentRepo := repository.NewContentRepository(db.DB)

	eventHub := hub.New(redisClient.Client)
	eventHub.Start()
	defer eventHub.Close()

	sessions := registry.New(registry.Options{
		Out:            eventHub,
		Active:         activeRepo,
		History:        historyRepo,
		RevealDelay:    cfg.RevealDelay(),
		LobbyHostGrace: cfg.LobbyHostGrace(),
	})
	defer sessions.Close()

	ctx, cancel = context.WithTimeout(context.Background(), config.RecoverTimeout)
	if _, err := sessions.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover sessions, starting empty")
	}
	cancel()

	hostingService := service.NewHostingService(contentRepo, historyRepo, sessions)
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	hostIdentity := middleware.HostIdentity
	hostRateLimit := middleware.NewHostRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client), cfg.CreateRateLimitPerMin,
	)
	socketRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.SocketUpgradesPerMin, time.Minute, "ws",
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(hostingService, sessions)
	eventsHandler := handler.NewEventsHandler(eventHub, sessions)
	socketHandler := handler.NewSocketHandler(eventHub, sessions, cfg)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"sessions":    sessions.Count(),
			"connections": eventHub.TotalClients(),
			"timestamp":   time.Now().UnixMilli(),
		})
	})

	// Long-lived streams skip the request timeout.
	r.With(socketRateLimit.Handler).Get("/ws", socketHandler.ServeHTTP)
	r.Get("/v1/sessions/{code}/events", eventsHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Get("/v1/sessions/{code}", sessionHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(hostIdentity)
			r.With(hostRateLimit.Handler).Post("/v1/sessions", sessionHandler.Create)
			r.Get("/v1/history", sessionHandler.History)
		})
	})

	tickDriver := jobs.NewTickDriver(sessions, config.TickInterval, config.TickTimeout)
	tickDriver.Start()
	defer tickDriver.Stop()

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
