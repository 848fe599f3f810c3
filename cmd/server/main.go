package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-direct-chat/internal/api"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/middleware"
	"go-direct-chat/internal/presence"
	"go-direct-chat/internal/relay"
	"go-direct-chat/internal/repository"
	"go-direct-chat/internal/service"
	"go-direct-chat/internal/websocket"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/db"
	"go-direct-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 初始化配置
	if err := config.Init(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.InitLogger(cfg.Log.Level, cfg.Server.Production); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.L.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config) error {
	// 初始化数据库连接
	if err := db.InitDB(cfg.Database.DSN); err != nil {
		return err
	}
	userRepo := repository.NewUserRepository(db.DB)

	store, closeStore, err := messageStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	wireCodec, err := codec.New(cfg.WebSocket.Codec)
	if err != nil {
		return err
	}
	logger.L.Info("Websocket codec selected", zap.String("codec", wireCodec.Name()))

	registry := presence.NewRegistry()
	authService := service.NewAuthService(userRepo)

	deliveryRouter := service.NewDeliveryRouter(registry, wireCodec, cfg.Delivery)
	deliveryRouter.Start(ctx)

	messageRelay, err := relay.CreateRelay(cfg.Messaging, deliveryRouter)
	if err != nil {
		return err
	}
	messageRelay.Start(ctx)
	defer messageRelay.Close()

	manager := websocket.NewConnectionManager(registry, authService, wireCodec, websocket.SettingsFromConfig(cfg.WebSocket))
	broadcaster := service.NewPresenceBroadcaster(registry, manager, wireCodec)
	go broadcaster.Run(ctx)

	chatService := service.NewChatService(store, userRepo, messageRelay, registry, wireCodec)
	manager.SetEventHandler(broadcaster)
	manager.SetMessageHandler(chatService)

	if cfg.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.GinZapLogger(), gin.Recovery())
	api.RegisterRoutes(r, api.Handlers{
		Auth:           api.NewAuthHandler(authService, cfg.JWT.CookieName, cfg.Server.Production, cfg.JWT.Expiration),
		Chat:           api.NewChatHandler(chatService),
		WS:             api.NewWSHandler(ctx, manager, cfg.Server.AllowedOrigins, cfg.JWT.CookieName),
		Verifier:       authService,
		CookieName:     cfg.JWT.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("Server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.L.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Closing websocket connections failed", zap.Error(err))
	}
	logger.L.Info("Server stopped")
	return nil
}

// 根据store.provider选择消息存储
func messageStore(ctx context.Context, cfg config.Config) (interfaces.MessageStore, func(), error) {
	switch cfg.Store.Provider {
	case "", "mysql":
		return repository.NewMessageRepository(db.DB), func() {}, nil
	case "mongo":
		client, err := db.InitMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Timeout)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoMessageRepository(client.Database(cfg.Mongo.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.L.Warn("Failed to disconnect mongo", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store provider %q", cfg.Store.Provider)
	}
}
