// Command document serves the document store over REST only, without the
// websocket session layer. Useful for tooling and backups.
package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/config"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/database"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/handler"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	port := os.Getenv("DOC_SERVICE_PORT")
	if port == "" {
		port = "5010"
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// Mongo when configured; fall back to memory on failure
	var svc service.Service
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("cannot connect to MongoDB (%v), using memory-backed repo", err)
			svc = service.NewMemoryService()
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			svc = service.NewMongoService(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
		}
	} else {
		svc = service.NewMemoryService()
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/health", func(c *gin.Context) { c.String(200, "healthy") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.RegisterDocumentRoutes(r, svc)

	srvStart := time.Now()
	logger.Infof("document service listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		logger.Fatalf("document service stopped after %s: %v", time.Since(srvStart).Round(time.Second), err)
	}
}
