package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/assistant"
	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/connmux"
	"github.com/greeterhq/chat-server-go/internal/database"
	"github.com/greeterhq/chat-server-go/internal/delivery"
	"github.com/greeterhq/chat-server-go/internal/dispatch"
	"github.com/greeterhq/chat-server-go/internal/handler"
	"github.com/greeterhq/chat-server-go/internal/jobs"
	"github.com/greeterhq/chat-server-go/internal/middleware"
	"github.com/greeterhq/chat-server-go/internal/redis"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/session"
	"github.com/greeterhq/chat-server-go/internal/transcript"
	"github.com/greeterhq/chat-server-go/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("RENDER") != ""
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
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	connectionRepo := repository.NewConnectionRepository(db.DB)

	bridge := assistant.NewClient(cfg.AssistantBaseURL, cfg.AssistantAPIKey, cfg.AssistantID, cfg.AssistantTimeout())
	registry := session.NewRegistry(sessionRepo, messageRepo, bridge)
	builder := transcript.NewBuilder(cfg.AssistantName, cfg.CompanyName)

	var providers []delivery.Provider
	if cfg.HasWebhook() {
		providers = append(providers, delivery.NewWebhookProvider(cfg.WebhookURL))
	}
	if cfg.HasSMTP() {
		providers = append(providers, delivery.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass))
	}
	deliverySvc := delivery.NewService(providers...)

	mux := connmux.New()
	dispatcher := dispatch.NewDispatcher(
		registry, deliverySvc, builder, dispatch.LastConnectionClosed{},
		cfg.OwnerEmail, cfg.EmailFrom,
	)
	hub := ws.NewHub(registry, mux, dispatcher, bridge, deliverySvc, builder, connectionRepo, cfg)

	healthHandler := handler.NewHealthHandler(db, hub)
	sessionHandler := handler.NewSessionHandler(sessionRepo, messageRepo, builder)
	wsHandler := handler.NewWSHandler(hub, connectionRepo, cfg)

	connectGate := middleware.NewConnectGate(redisClient.Client, config.ConnectRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(bodyLimitMiddleware.Handler)

		r.Get("/health", healthHandler.Health)
		r.Route("/api/session", func(r chi.Router) {
			r.Mount("/", sessionHandler.Routes())
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(connectGate.Handler)
		r.Get("/ws", wsHandler.Serve)
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, connectionRepo, registry, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// websocket connections stay open; the write path has no deadline
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
