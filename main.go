package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/checkpoint"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/config"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/database"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/handler"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/realtime"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/sessions"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/storage"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%s mongo=%v redis=%v minio=%v checkpoint=%s",
		cfg.Store.Backend, cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", cfg.Sync.CheckpointMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := connectRedis(ctx, cfg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	var svcOpts []service.Option
	var snapshots handler.SnapshotLister
	if cfg.MinIO.Endpoint != "" {
		archive, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			logger.Warnf("snapshot archive disabled: %v", err)
		} else {
			svcOpts = append(svcOpts, service.WithArchiver(archive))
			snapshots = archive
			logger.Infof("archiving checkpoints to MinIO bucket %s", cfg.MinIO.Bucket)
		}
	}

	docs, mongoClient := openDocumentService(ctx, cfg, rdb, svcOpts...)
	if mongoClient != nil {
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	}

	policy, err := newCheckpointPolicy(cfg, docs)
	if err != nil {
		logger.Fatalf("checkpoint policy: %v", err)
	}
	policy.Start()

	hubOpts := []realtime.HubOption{realtime.WithMessageLimit(cfg.Sync.MessageRPS, cfg.Sync.MessageBurst)}
	if rdb != nil {
		mirror := sessions.NewRedisRepository(rdb, cfg.Sync.PresencePrefix, cfg.Sync.PresenceTTL)
		hubOpts = append(hubOpts, realtime.WithPresenceMirror(mirror, time.Second))
	}
	hub := realtime.NewHub(docs, policy, hubOpts...)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := newRouter(&app{
		cfg:       cfg,
		docs:      docs,
		hub:       hub,
		redis:     rdb,
		mongo:     mongoClient,
		snapshots: snapshots,
		ws: realtime.Options{
			SendBuffer:      cfg.Sync.SendBuffer,
			MaxMessageBytes: cfg.Sync.MaxMessageBytes,
			PingInterval:    cfg.Sync.PingInterval,
			WriteWait:       cfg.Sync.WriteWait,
		},
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("sync server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	policy.Stop(shutdownCtx)
}

// connectRedis returns nil when Redis is not configured or not reachable;
// everything that uses it is optional.
func connectRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr() == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		_ = client.Close()
		return nil
	}
	logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
	return client
}

// openDocumentService picks the configured backend. An unreachable backend
// falls back to memory so the server still relays edits.
func openDocumentService(ctx context.Context, cfg *config.Config, rdb *redis.Client, opts ...service.Option) (service.Service, *mongo.Client) {
	switch cfg.Store.Backend {
	case "mongo":
		if cfg.MongoDB.URI == "" {
			logger.Warnf("STORE_BACKEND=mongo without MONGODB_URI, using memory")
			break
		}
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			logger.Errorf("%v; using memory-backed documents", err)
			break
		}
		col := client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection)
		logger.Infof("documents stored in MongoDB %s.%s", cfg.MongoDB.Database, cfg.MongoDB.Collection)
		return service.NewMongoService(col, opts...), client
	case "redis":
		if rdb == nil {
			logger.Errorf("STORE_BACKEND=redis but Redis is unavailable; using memory-backed documents")
			break
		}
		logger.Infof("documents stored in Redis under %q", cfg.Store.RedisPrefix)
		return service.NewRedisService(rdb, cfg.Store.RedisPrefix, opts...), nil
	case "memory":
	default:
		logger.Warnf("unknown STORE_BACKEND %q, using memory", cfg.Store.Backend)
	}
	return service.NewMemoryService(opts...), nil
}

func newCheckpointPolicy(cfg *config.Config, docs service.Service) (checkpoint.Policy, error) {
	if cfg.Sync.CheckpointMode == "buffered" {
		logger.Infof("buffered checkpoints on %q", cfg.Sync.CheckpointSchedule)
		return checkpoint.NewBuffered(docs, cfg.Sync.CheckpointSchedule, cfg.Sync.SaveTimeout)
	}
	return checkpoint.NewImmediate(docs, cfg.Sync.SaveTimeout), nil
}
