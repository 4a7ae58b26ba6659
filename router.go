package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/collabdoc/collabdoc/backend/sync-server/handlers"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/config"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/handler"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/realtime"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/middleware"
)

// app holds the runtime dependencies the HTTP surface needs.
type app struct {
	cfg   *config.Config
	docs  service.Service
	hub   *realtime.Hub
	redis *redis.Client
	mongo *mongo.Client
	ws    realtime.Options

	// snapshots is nil when no checkpoint archive is configured
	snapshots handler.SnapshotLister
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// open CORS, same as the editor frontend expects in every environment
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Participant-Id, X-Display-Name")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})

	if a.cfg.RateLimit.Enabled {
		if a.cfg.RateLimit.UseRedis && a.redis != nil {
			win := time.Duration(a.cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(a.redis, a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst))
		}
	}

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "collaborative document sync server")
	})
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterSwagger(r)
	handler.RegisterDocumentRoutes(r, a.docs)
	if a.snapshots != nil {
		handler.RegisterSnapshotRoutes(r, a.snapshots)
	}
	realtime.NewServer(a.hub, a.ws).RegisterRoutes(r)
	return r
}

// ready returns 200 only when every connected backend answers.
func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	deps := gin.H{"backend": a.cfg.Store.Backend}

	// the memory store is always ready; the redis store is covered by the redis ping
	if a.mongo != nil {
		ok := a.mongo.Ping(ctx, nil) == nil
		deps["mongo"] = ok
		ready = ready && ok
	}
	if a.redis != nil {
		ok := a.redis.Ping(ctx).Err() == nil
		deps["redis"] = ok
		ready = ready && ok
	}

	body := gin.H{
		"deps":     deps,
		"sessions": a.hub.Registry().Count(),
		"uptime":   time.Since(startTime).String(),
	}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
