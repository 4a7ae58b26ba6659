package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
)

const maxContentBytes = 8 << 20

// RegisterDocumentRoutes exposes the document store over HTTP. The websocket
// protocol is the primary path; these routes serve tooling and out-of-band
// checkpoints.
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service) {
	r.GET("/api/documents", func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, gin.H{"id": d.ID, "updatedAt": d.UpdatedAt})
		}
		c.JSON(http.StatusOK, out)
	})

	r.POST("/api/documents", func(c *gin.Context) {
		var req struct {
			ID string `json:"id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.GetOrCreate(c.Request.Context(), req.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.GET("/api/documents/:id", func(c *gin.Context) {
		d, err := svc.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	// body is the full content snapshot, stored verbatim
	r.PUT("/api/documents/:id", func(c *gin.Context) {
		id := c.Param("id")
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxContentBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(body) > maxContentBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "content too large"})
			return
		}
		if err := svc.Save(c.Request.Context(), id, body); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPersistenceUnavailable):
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// SnapshotLister lists archived checkpoints of a document.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, id string) ([]string, error)
}

// RegisterSnapshotRoutes exposes the checkpoint archive, oldest first.
func RegisterSnapshotRoutes(r gin.IRouter, snapshots SnapshotLister) {
	r.GET("/api/documents/:id/snapshots", func(c *gin.Context) {
		id := c.Param("id")
		keys, err := snapshots.ListSnapshots(c.Request.Context(), id)
		if err != nil {
			logger.Errorf("list snapshots of %s: %v", id, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive unavailable"})
			return
		}
		if keys == nil {
			keys = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "snapshots": keys})
	})
}
