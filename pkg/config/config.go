package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Kafka configuration
	Kafka struct {
		Brokers         []string
		ClientID        string
		MessageTopic    string
		DeadLetterTopic string
		ConsumerGroup   string
	}

	// Chat subsystem configuration
	Chat struct {
		FlushInterval    time.Duration
		MaxFlushRetries  int
		RetryBackoffCap  time.Duration
		PresenceTTL      time.Duration
		HandshakeTimeout time.Duration
		HistoryPageSize  int
		SendBuffer       int
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables.
// Uses singleton pattern to ensure only one instance exists.
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "6006")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "eshop_chat")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Redis config
		instance.Redis.Addr = getEnvString("REDIS_ADDR", "localhost:6379")
		instance.Redis.Password = getEnvString("REDIS_PASSWORD", "")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)

		// Kafka config
		instance.Kafka.Brokers = getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"})
		instance.Kafka.ClientID = getEnvString("KAFKA_CLIENT_ID", "eshop-chatting-service")
		instance.Kafka.MessageTopic = getEnvString("KAFKA_MESSAGE_TOPIC", "chat.new_message")
		instance.Kafka.DeadLetterTopic = getEnvString("KAFKA_DEAD_LETTER_TOPIC", "chat.new_message.dlq")
		instance.Kafka.ConsumerGroup = getEnvString("KAFKA_CONSUMER_GROUP", "chat-message-db-writer")

		// Chat config
		instance.Chat.FlushInterval = getEnvDuration("CHAT_FLUSH_INTERVAL", 3*time.Second)
		instance.Chat.MaxFlushRetries = getEnvInt("CHAT_MAX_FLUSH_RETRIES", 5)
		instance.Chat.RetryBackoffCap = getEnvDuration("CHAT_RETRY_BACKOFF_CAP", 48*time.Second)
		instance.Chat.PresenceTTL = getEnvDuration("CHAT_PRESENCE_TTL", 300*time.Second)
		instance.Chat.HandshakeTimeout = getEnvDuration("CHAT_HANDSHAKE_TIMEOUT", 30*time.Second)
		instance.Chat.HistoryPageSize = getEnvInt("CHAT_HISTORY_PAGE_SIZE", 10)
		instance.Chat.SendBuffer = getEnvInt("CHAT_SEND_BUFFER", 256)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
		instance.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 20))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 40)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Cache settings
		instance.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
