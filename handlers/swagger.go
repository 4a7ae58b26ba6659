package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the sync server.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>collab sync server - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// The websocket protocol is described on /ws; OpenAPI has no first-class
// websocket support so message shapes live in the description.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "collab-sync-server", "version": "v0.1.0" },
  "paths": {
    "/ws": {
      "get": {
        "summary": "Open a collaboration session (websocket upgrade)",
        "description": "Frames are {\"event\",\"data\"}. Client sends select-document {documentId}, edit-operation (opaque), checkpoint-save (full content). Server sends document-loaded, edit-operation, roster-changed [[id,name],...].",
        "parameters": [
          { "name": "participantId", "in": "query", "required": true, "schema": {"type":"string"} },
          { "name": "displayName", "in": "query", "schema": {"type":"string"} }
        ],
        "responses": { "101": { "description": "switching protocols" }, "400": { "description": "participantId missing" } }
      }
    },
    "/api/documents": {
      "get": { "summary": "List stored documents", "responses": { "200": { "description": "ids and update times" }, "503": { "description": "storage unavailable" } } },
      "post": {
        "summary": "Get or create a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}}}},
        "responses": { "200": { "description": "document" }, "400": { "description": "missing id" } }
      }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Load a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "put": {
        "summary": "Save a full content snapshot",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object"}}}},
        "responses": { "200": { "description": "saved" }, "400": { "description": "invalid JSON or not UTF-8" }, "404": { "description": "not found" } }
      }
    },
    "/api/documents/{id}/snapshots": {
      "get": { "summary": "List archived checkpoints, oldest first", "responses": { "200": { "description": "object keys" }, "503": { "description": "archive unavailable" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
