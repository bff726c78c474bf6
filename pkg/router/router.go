// Package router assembles the gin engine: middleware chain, REST routes,
// the WebSocket endpoint, health and metrics.
package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"eshop-marketplace/chatting-service/internal/api"
	"eshop-marketplace/chatting-service/internal/chat/stream"
	"eshop-marketplace/chatting-service/internal/chat/ws"
	"eshop-marketplace/chatting-service/pkg/config"
	"eshop-marketplace/chatting-service/pkg/di"
	"eshop-marketplace/chatting-service/pkg/errors"
	"eshop-marketplace/chatting-service/pkg/health"
	"eshop-marketplace/chatting-service/pkg/logger"
	"eshop-marketplace/chatting-service/pkg/middleware"
	"eshop-marketplace/chatting-service/pkg/validator"
	sharedredis "eshop-marketplace/chatting-service/shared/redis"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Health    *health.Checker
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rlOpts := middleware.DefaultRateLimiterOptions()
	if cfg.Security.RateLimit > 0 {
		rlOpts.Limit = rate.Limit(cfg.Security.RateLimit)
	}
	if cfg.Security.RateLimitBurst > 0 {
		rlOpts.Burst = cfg.Security.RateLimitBurst
	}
	rateLimiter := middleware.NewRateLimiter(container.Logger, rlOpts)
	engine.Use(rateLimiter.Middleware())

	checker := health.NewChecker(container.Logger, 30*time.Second)
	checker.RegisterDatabaseCheck(func() error {
		return config.TestConnection(container.DB)
	})
	checker.RegisterRedisCheck(func(ctx context.Context) error {
		return sharedredis.Ping(ctx, container.Redis)
	})
	checker.RegisterKafkaCheck(func(ctx context.Context) error {
		return stream.Ping(ctx, cfg.Kafka.Brokers)
	})
	checker.Start()

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Health:    checker,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes.
func (r *Router) SetupRoutes(metricsHandler gin.HandlerFunc) {
	r.Engine.Use(corsMiddleware(r.Config.Security.AllowedOrigins))

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Logger)

	chatController := api.NewChatController(r.Container.ChatService)
	chatController.RegisterRoutes(r.Engine, jwtAuth)

	// WebSocket endpoint. Identity registration happens in-band on the
	// socket, so no HTTP auth middleware here.
	r.Engine.GET("/ws/chat", ws.ServeWs(r.Container.Gateway))

	r.Engine.GET("/health", gin.WrapF(r.Health.HTTPHandler()))
	if metricsHandler != nil {
		r.Engine.GET("/metrics", metricsHandler)
	}
}

// AddOpenAPIValidation attaches request validation against the service's
// OpenAPI document. A missing document is not fatal; validation is a guard,
// not a dependency.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Warn("openapi validation disabled", "error", err, "schema", schemaPath)
		return
	}
	r.Engine.Use(v.Middleware())
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowed["*"] || origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
