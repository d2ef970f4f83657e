package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"cuidar/internal/adapter/api"
	"cuidar/internal/adapter/api/handler"
	apimiddleware "cuidar/internal/adapter/api/middleware"
	"cuidar/internal/adapter/api/router"
	"cuidar/internal/adapter/repository"
	"cuidar/internal/domain/service"
	"cuidar/internal/infrastructure/firebase"
	"cuidar/internal/infrastructure/presence"
	"cuidar/internal/infrastructure/ratelimit"
	"cuidar/internal/infrastructure/storage"
	"cuidar/internal/infrastructure/websocket"
	"cuidar/internal/usecase"
	"cuidar/pkg/config"
	"cuidar/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := firebase.Credentials(cfg.FirebaseServiceAccountJSON, cfg.FirebaseServiceAccountPath)
	if err != nil {
		logger.Fatal("Failed to load Firebase credentials: %v", err)
	}

	clients, err := firebase.NewClients(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		logger.Fatal("%v", err)
	}
	defer clients.Close()

	var fileStorage usecase.FileStorage
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
		if err != nil {
			logger.Fatal("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()
		fileStorage = storageClient
	} else {
		logger.Warn("STORAGE_BUCKET is not set, avatar uploads are disabled")
	}

	userRepo := repository.NewFirestoreUserRepository(clients.Firestore)
	messageRepo := repository.NewFirestoreMessageRepository(clients.Firestore)
	conversationRepo := repository.NewFirestoreConversationRepository(clients.Firestore)

	// Without Redis presence is disabled; chat keeps working.
	var presenceUseCase *usecase.PresenceUseCase
	var redisClient *redis.Client
	redisClient, err = presence.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisDB)
	if err != nil {
		logger.Warn("Presence disabled: %v", err)
	} else {
		defer redisClient.Close()
		channel := presence.NewChannel(redisClient, cfg.PresenceTTL)
		presenceUseCase = usecase.NewPresenceUseCase(channel, userRepo, cfg.PresenceHeartbeat)

		reaper := presence.NewReaper(redisClient, channel, userRepo, cfg.RedisDB)
		go func() {
			if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("presence reaper stopped: %v", err)
			}
		}()
	}

	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerSecond: cfg.SendRatePerSecond, Burst: cfg.SendBurst},
		apimiddleware.ActionHTTP:    {PerSecond: cfg.HTTPRatePerSecond, Burst: cfg.HTTPBurst},
	})
	limiter.StartCleanupRoutine(ctx, 10*time.Minute)

	rooms := service.NewChatRooms(cfg.GroupRoomID)
	typingUseCase := usecase.NewTypingUseCase(conversationRepo, cfg.TypingIdle, cfg.TypingStale)
	messageUseCase := usecase.NewMessageUseCase(messageRepo, typingUseCase, rooms, limiter, cfg.MessagePageSize)
	chatUseCase := usecase.NewChatUseCase(userRepo, messageUseCase, typingUseCase, rooms)
	chatListUseCase := usecase.NewChatListUseCase(conversationRepo, rooms)
	userUseCase := usecase.NewUserUseCase(userRepo, fileStorage)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	handler.Setup(handler.Dependencies{
		ChatUseCase:     chatUseCase,
		ChatListUseCase: chatListUseCase,
		PresenceUseCase: presenceUseCase,
		UserUseCase:     userUseCase,
		WSManager:       wsManager,
		Health:          handler.NewHealthHandler(clients.Auth, redisClient),
		AllowedOrigins:  cfg.AllowedOrigins,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.NewHTTPErrorHandler(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{Output: logger.Logger().Writer()}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(clients.Auth)
	e.Use(apimiddleware.RateLimit(limiter))

	router.Setup(e, authMiddleware)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	wsManager.CloseAll()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
