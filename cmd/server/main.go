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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/quakealert/internal/api"
	"github.com/example/quakealert/internal/config"
	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/liveview"
	"github.com/example/quakealert/internal/middleware"
	"github.com/example/quakealert/pkg/cache"
	"github.com/example/quakealert/pkg/messagequeue"
)

func main() {
	// --- 1. Load Application Configuration ---
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to load application configuration: %v", err)
	}

	// --- 2. Initialize Logger (Zap) ---
	zapLogger, err := newLogger(appConfig)
	if err != nil {
		log.Fatalf("CRITICAL_ERROR: Failed to initialize Zap logger: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Application configuration loaded", zap.String("storeDriver", appConfig.StoreDriver), zap.String("ginMode", appConfig.GinMode))

	// --- 3. Initialize Firebase Admin SDK (Auth, and Firestore when it backs the store) ---
	initCtx, cancelInitCtx := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelInitCtx()
	clients, err := db.InitFirebase(initCtx, appConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("CRITICAL_ERROR: Failed to initialize Firebase Admin SDK", zap.Error(err))
	}

	// --- 4. Select the Store ---
	var store db.Store
	switch appConfig.StoreDriver {
	case config.StoreDriverMemory:
		zapLogger.Warn("Using the in-memory store. Data is lost on restart.")
		store = db.NewMemoryStore()
	default:
		store = db.NewFirestoreStore(clients.Firestore, zapLogger)
	}

	// --- 5. Optional infrastructure: email directory cache and SOS event queue ---
	var directory cache.Cache
	if appConfig.RedisAddr != "" {
		directory, err = cache.NewRedisCache(initCtx, cache.NewRedisCacheConfig{
			Address:  appConfig.RedisAddr,
			Password: appConfig.RedisPassword,
			DB:       appConfig.RedisDB,
		}, zapLogger)
		if err != nil {
			zapLogger.Warn("Redis unavailable, email lookups will not be cached", zap.Error(err))
			directory = nil
		} else {
			defer directory.Close()
		}
	}

	var queue messagequeue.MessageQueue
	if appConfig.RabbitMQURL != "" {
		queue, err = messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: appConfig.RabbitMQURL}, zapLogger)
		if err != nil {
			zapLogger.Warn("RabbitMQ unavailable, SOS events will not be published", zap.Error(err))
			queue = nil
		} else {
			defer queue.Close()
		}
	}

	// --- 6. Initialize Services ---
	auditService := core.NewAuditService(store.Audit())
	userService := core.NewUserService(store.Users(), zapLogger)
	socialService := core.NewSocialService(store.Users(), store.FriendRequests(), store, auditService, directory, appConfig.EmailCacheTTL, zapLogger)
	groupService := core.NewGroupService(store.Users(), store.Groups(), store.Messages(), auditService, zapLogger)
	messageService := core.NewMessageService(store.Users(), store.Groups(), store.Messages(), zapLogger)
	sosService := core.NewSOSService(store.Users(), store.Messages(), auditService, queue, appConfig.SOSQueueName, appConfig.SOSMaxParallel, zapLogger)
	synchronizer := liveview.NewSynchronizer(store.Users(), store.FriendRequests(), store.Groups(), messageService, zapLogger)
	zapLogger.Info("Core services initialized successfully.")

	// --- 7. Setup Gin HTTP Engine ---
	if appConfig.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()

	// Global middleware, logger first so panics are logged with the request.
	router.Use(middleware.RequestLogger(zapLogger))
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	if appConfig.ClientURL != "" {
		router.Use(middleware.CORSMiddleware(appConfig))
		zapLogger.Info("CORS Middleware enabled", zap.String("clientURL", appConfig.ClientURL))
	} else {
		zapLogger.Warn("CORS Middleware SKIPPED: CLIENT_URL is not configured. API might not be accessible from a web frontend.")
	}

	// --- 8. Setup API Routes ---
	api.SetupRoutes(router, zapLogger, middleware.NewAuthMiddleware(clients.Auth, zapLogger), api.Services{
		Users:    userService,
		Social:   socialService,
		Groups:   groupService,
		Messages: messageService,
		SOS:      sosService,
		Live:     synchronizer,
	}, appConfig.ClientURL)

	// --- 9. Configure and Start HTTP Server ---
	serverAddr := fmt.Sprintf(":%s", appConfig.Port)
	httpServer := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("address", serverAddr), zap.String("ginMode", gin.Mode()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// --- 10. Graceful Shutdown Handling ---
	quitChannel := make(chan os.Signal, 1)
	signal.Notify(quitChannel, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quitChannel
	zapLogger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
	defer cancelShutdown()
	// Live sockets are hijacked and not tracked by Shutdown; closing the store
	// afterwards ends their subscriptions.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Graceful shutdown did not complete", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		zapLogger.Warn("Failed to close store", zap.Error(err))
	}
	zapLogger.Info("Server exiting gracefully.")
}

// newLogger builds a development logger outside release mode and a JSON
// production logger otherwise, both at LOG_LEVEL.
func newLogger(appConfig *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(appConfig.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", appConfig.LogLevel, err)
	}
	zapConfig := zap.NewDevelopmentConfig()
	if appConfig.IsRelease() {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}
