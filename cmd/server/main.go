package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	"eshop-marketplace/chatting-service/internal/chat/events"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/config"
	"eshop-marketplace/chatting-service/pkg/di"
	"eshop-marketplace/chatting-service/pkg/logger"
	"eshop-marketplace/chatting-service/pkg/router"
	"eshop-marketplace/chatting-service/pkg/secrets"
	"eshop-marketplace/chatting-service/shared/observability"
	sharedredis "eshop-marketplace/chatting-service/shared/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	if cfg.Logging.Level != "" {
		logConfig.Level = cfg.Logging.Level
	}
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting chatting service", "version", os.Getenv("APP_VERSION"))

	if err := secrets.Init(log); err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	// The JWT secret may live in the secrets backend rather than the env.
	cfg.JWT.Secret = secrets.GetSecretWithDefault(context.Background(), "JWT_SECRET", cfg.JWT.Secret)

	shutdownTracing := observability.SetupTracing("chatting-service")
	defer shutdownTracing()
	_, metricsHandler := observability.SetupPrometheusMetrics()

	// Initialize database
	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if err := db.AutoMigrate(&models.ConversationGroup{}, &models.Participant{}, &models.Message{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	// History reads page newest-first within a conversation.
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at DESC)").Error; err != nil {
		log.LogError(err, "Failed to create message index", "index", "idx_messages_conv_created")
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_participants_conv ON participants(conversation_id)").Error; err != nil {
		log.LogError(err, "Failed to create participant index", "index", "idx_participants_conv")
	}

	redisClient := sharedredis.NewClient()
	if err := sharedredis.Ping(context.Background(), redisClient); err != nil {
		log.LogError(err, "Redis not reachable at startup", "addr", cfg.Redis.Addr)
	}

	container := di.New(cfg, db, redisClient, log, nil)

	// Run the persistence consumer alongside the gateway. Deployments that
	// split the two roles scale this binary with CHAT_CONSUMER_DISABLED set
	// on the gateway tier.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	if os.Getenv("CHAT_CONSUMER_DISABLED") != "true" {
		go runConsumer(consumerCtx, container, log)
	}

	r := router.New(container)
	r.SetupRoutes(metricsHandler)

	if schemaPath := os.Getenv("OPENAPI_SCHEMA_PATH"); schemaPath != "" {
		r.AddOpenAPIValidation(schemaPath)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r.Engine,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	// Stop consuming, then flush whatever the batcher still holds.
	stopConsumer()
	container.Close(ctx)

	log.Info("Server exited gracefully")
}

// runConsumer feeds stream records into the batch persister until ctx is
// cancelled. Records that do not decode are logged, committed and skipped;
// they would poison the batch otherwise. Decodable records are committed by
// the batcher once their flush succeeds.
func runConsumer(ctx context.Context, container *di.Container, log *logger.Logger) {
	err := container.Consumer.Run(ctx, func(ctx context.Context, msg kafka.Message) {
		payload, err := events.ParseMessagePayload(msg.Value)
		if err != nil {
			log.Warn("dropping undecodable stream record", "error", err, "key", string(msg.Key))
			if err := container.Consumer.Commit(ctx, msg); err != nil {
				log.Warn("offset commit failed for dropped record", "error", err)
			}
			return
		}
		container.Offsets.Track(payload.ID, msg)
		container.Batcher.OnEvent(models.Message{
			ID:             payload.ID,
			ConversationID: payload.ConversationID,
			SenderID:       payload.SenderID,
			SenderType:     payload.SenderType,
			Content:        payload.Content,
			CreatedAt:      payload.CreatedAt,
		})
	})
	if err != nil {
		log.LogError(err, "Stream consumer stopped")
	}
}
