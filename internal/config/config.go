package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	Store     StoreConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// StoreConfig selects the document store backend: memory, mongo or redis.
type StoreConfig struct {
	Backend     string
	RedisPrefix string
}

// SyncConfig tunes the websocket session layer.
type SyncConfig struct {
	CheckpointMode     string // immediate | buffered
	CheckpointSchedule string // cron expression used by the buffered mode
	SaveTimeout        time.Duration
	SendBuffer         int
	MaxMessageBytes    int64
	PingInterval       time.Duration
	WriteWait          time.Duration
	MessageRPS         float64
	MessageBurst       int
	PresencePrefix     string
	PresenceTTL        time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "4000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("MONGODB_DATABASE", "collab-editor")
	v.SetDefault("MONGODB_COLLECTION", "documents")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MINIO_BUCKET", "collab-snapshots")
	v.SetDefault("STORE_BACKEND", "")
	v.SetDefault("STORE_REDIS_PREFIX", "doc:")
	v.SetDefault("SYNC_CHECKPOINT_MODE", "immediate")
	v.SetDefault("SYNC_CHECKPOINT_SCHEDULE", "@every 5s")
	v.SetDefault("SYNC_SAVE_TIMEOUT", 5)
	v.SetDefault("SYNC_SEND_BUFFER", 256)
	v.SetDefault("SYNC_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("SYNC_PING_INTERVAL", 30)
	v.SetDefault("SYNC_WRITE_WAIT", 10)
	v.SetDefault("SYNC_MESSAGE_RPS", 50)
	v.SetDefault("SYNC_MESSAGE_BURST", 100)
	v.SetDefault("SYNC_PRESENCE_PREFIX", "presence:")
	v.SetDefault("SYNC_PRESENCE_TTL", 3600)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	// SERVER_PORT wins over the platform-provided PORT when both are set.
	port := v.GetString("SERVER_PORT")
	if port == "" {
		port = v.GetString("PORT")
	}

	// MONGO_URI accepted as an alias
	mongoURI := v.GetString("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = v.GetString("MONGO_URI")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         port,
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:        mongoURI,
			Database:   v.GetString("MONGODB_DATABASE"),
			Collection: v.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
			RedisPrefix: v.GetString("STORE_REDIS_PREFIX"),
		},
		Sync: SyncConfig{
			CheckpointMode:     strings.ToLower(strings.TrimSpace(v.GetString("SYNC_CHECKPOINT_MODE"))),
			CheckpointSchedule: v.GetString("SYNC_CHECKPOINT_SCHEDULE"),
			SaveTimeout:        time.Duration(v.GetInt("SYNC_SAVE_TIMEOUT")) * time.Second,
			SendBuffer:         v.GetInt("SYNC_SEND_BUFFER"),
			MaxMessageBytes:    v.GetInt64("SYNC_MAX_MESSAGE_BYTES"),
			PingInterval:       time.Duration(v.GetInt("SYNC_PING_INTERVAL")) * time.Second,
			WriteWait:          time.Duration(v.GetInt("SYNC_WRITE_WAIT")) * time.Second,
			MessageRPS:         v.GetFloat64("SYNC_MESSAGE_RPS"),
			MessageBurst:       v.GetInt("SYNC_MESSAGE_BURST"),
			PresencePrefix:     v.GetString("SYNC_PRESENCE_PREFIX"),
			PresenceTTL:        time.Duration(v.GetInt("SYNC_PRESENCE_TTL")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Backend defaults to mongo when a URI is given, memory otherwise.
	if cfg.Store.Backend == "" {
		if cfg.MongoDB.URI != "" {
			cfg.Store.Backend = "mongo"
		} else {
			cfg.Store.Backend = "memory"
		}
	}

	if cfg.Store.Backend == "memory" {
		logger.Warnf("STORE_BACKEND=memory: documents are lost on restart")
	}
	if cfg.Sync.CheckpointMode != "immediate" && cfg.Sync.CheckpointMode != "buffered" {
		logger.Warnf("unknown SYNC_CHECKPOINT_MODE %q, using immediate", cfg.Sync.CheckpointMode)
		cfg.Sync.CheckpointMode = "immediate"
	}

	return cfg, nil
}
