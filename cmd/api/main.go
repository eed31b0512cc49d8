package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/config"
	"github.com/wave-social/wave-api/internal/database"
	"github.com/wave-social/wave-api/internal/handler"
	"github.com/wave-social/wave-api/internal/middleware"
	"github.com/wave-social/wave-api/internal/presence"
	"github.com/wave-social/wave-api/internal/repository"
	"github.com/wave-social/wave-api/internal/router"
	"github.com/wave-social/wave-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	registry := presence.NewRegistry(logger)

	notificationService := service.NewNotificationService(notificationRepo, validate, logger)
	dispatchService := service.NewDispatchService(registry, notificationService, messageRepo, userRepo, redisClient, cfg.EventChannelBase, natsConn, validate, logger)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, userRepo, dispatchService, validate, logger)
	presenceService := service.NewPresenceService(registry, validate, logger)

	presenceHandler := handler.NewPresenceHandler(presenceService, registry, validate, logger)
	conversationHandler := handler.NewConversationHandler(conversationService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive)
	eventHandler := handler.NewEventHandler(dispatchService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		PresenceHandler:     presenceHandler,
		ConversationHandler: conversationHandler,
		NotificationHandler: notificationHandler,
		EventHandler:        eventHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatchService.Start(dispatchCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
