// Package di wires the application graph: stores, stream clients, the
// batch consumer and the WebSocket gateway.
package di

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"eshop-marketplace/chatting-service/internal/chat/batch"
	"eshop-marketplace/chatting-service/internal/chat/presence"
	"eshop-marketplace/chatting-service/internal/chat/repository"
	"eshop-marketplace/chatting-service/internal/chat/service"
	"eshop-marketplace/chatting-service/internal/chat/stream"
	"eshop-marketplace/chatting-service/internal/chat/unseen"
	"eshop-marketplace/chatting-service/internal/chat/ws"
	"eshop-marketplace/chatting-service/internal/models"
	"eshop-marketplace/chatting-service/pkg/cache"
	"eshop-marketplace/chatting-service/pkg/config"
	"eshop-marketplace/chatting-service/pkg/jwt"
	"eshop-marketplace/chatting-service/pkg/logger"
	"eshop-marketplace/chatting-service/pkg/resilience"
)

// Container holds all the dependencies for the application
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client
	Logger *logger.Logger

	JWTService *jwt.Service

	ConversationRepo *repository.ConversationRepository
	MessageRepo      *repository.MessageRepository
	PresenceStore    presence.Store
	UnseenStore      unseen.Store

	Producer    *stream.Producer
	DLQProducer *stream.Producer
	Consumer    *stream.Consumer
	Offsets     *stream.OffsetTracker
	Batcher     *batch.Batcher

	Hub         *ws.Hub
	Gateway     *ws.Gateway
	ChatService *service.ChatService
}

// New builds the container. The profile directory is a parameter so local
// runs and tests can pass the noop implementation.
func New(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log *logger.Logger, directory service.ProfileDirectory) *Container {
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	presenceStore := presence.NewRedisStore(redisClient, cfg.Chat.PresenceTTL)
	unseenStore := unseen.NewRedisStore(redisClient)

	producer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.MessageTopic, log)
	dlqProducer := stream.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DeadLetterTopic, log)
	consumer := stream.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.MessageTopic, cfg.Kafka.ConsumerGroup, log)
	offsets := stream.NewOffsetTracker()

	batcher := batch.New(batch.Config{
		FlushInterval: cfg.Chat.FlushInterval,
		MaxRetries:    cfg.Chat.MaxFlushRetries,
		BackoffCap:    cfg.Chat.RetryBackoffCap,
		// Offsets are committed only once a flush has put the records
		// beyond the reach of a crash; replays are deduplicated by the
		// idempotent insert.
		AfterFlush: func(ctx context.Context, handled []models.Message) {
			ids := make([]string, len(handled))
			for i, m := range handled {
				ids[i] = m.ID
			}
			if err := consumer.Commit(ctx, offsets.Take(ids)...); err != nil {
				log.Warn("offset commit failed, records will replay", "error", err, "count", len(ids))
			}
		},
	}, messageRepo, unseenStore, dlqProducer, log)

	hub := ws.NewHub()
	breaker := resilience.New(resilience.DefaultConfig("kafka-publish"), log)
	gateway := ws.NewGateway(hub, presenceStore, unseenStore, producer, breaker, ws.Config{
		HandshakeTimeout: cfg.Chat.HandshakeTimeout,
		SendBuffer:       cfg.Chat.SendBuffer,
	}, log)

	if directory == nil {
		directory = service.NoopDirectory{}
	}
	if cfg.Cache.Enabled {
		directory = service.NewCachedDirectory(directory, cache.NewCache())
	}
	chatService := service.NewChatService(
		conversationRepo,
		messageRepo,
		presenceStore,
		unseenStore,
		directory,
		cfg.Chat.HistoryPageSize,
		log,
	)

	return &Container{
		Config:           cfg,
		DB:               db,
		Redis:            redisClient,
		Logger:           log,
		JWTService:       jwtService,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		PresenceStore:    presenceStore,
		UnseenStore:      unseenStore,
		Producer:         producer,
		DLQProducer:      dlqProducer,
		Consumer:         consumer,
		Offsets:          offsets,
		Batcher:          batcher,
		Hub:              hub,
		Gateway:          gateway,
		ChatService:      chatService,
	}
}

// Close releases stream clients and flushes the batcher. Call on shutdown
// after the HTTP server has stopped accepting connections.
func (c *Container) Close(ctx context.Context) {
	if err := c.Consumer.Close(); err != nil {
		c.Logger.Warn("consumer close failed", "error", err)
	}
	// Drain buffered messages before the producers go away.
	c.Batcher.Close(ctx)
	if err := c.Producer.Close(); err != nil {
		c.Logger.Warn("producer close failed", "error", err)
	}
	if err := c.DLQProducer.Close(); err != nil {
		c.Logger.Warn("dead-letter producer close failed", "error", err)
	}
}
