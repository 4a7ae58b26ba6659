package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
)

func TestDocumentHandler_CRUD(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	svc := service.NewMemoryService()
	RegisterDocumentRoutes(g, svc)

	// get before create
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/documents/doc1", nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	// get-or-create
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"id":"doc1"}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		ID      string          `json:"id"`
		Content json.RawMessage `json:"content"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, "doc1", created.ID)
	require.JSONEq(t, `{"ops":[{"insert":"\n"}]}`, string(created.Content))

	// save
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/documents/doc1", strings.NewReader(`{"ops":[{"insert":"hi\n"}]}`))
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// get
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/documents/doc1", nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"insert":"hi\n"`)

	// list
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestDocumentHandler_Errors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	RegisterDocumentRoutes(g, service.NewMemoryService())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/documents/missing", strings.NewReader(`{}`))
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"id":"d"}`))
	req.Header.Set("Content-Type", "application/json")
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/documents/d", strings.NewReader(`not json`))
	g.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeSnapshots struct {
	keys []string
	err  error
}

func (f fakeSnapshots) ListSnapshots(_ context.Context, id string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keys, nil
}

func TestSnapshotRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	RegisterSnapshotRoutes(g, fakeSnapshots{keys: []string{
		"documents/doc1/20260101T000000.000000000Z.json",
		"documents/doc1/20260101T000001.000000000Z.json",
	}})

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/doc1/snapshots", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID        string   `json:"id"`
		Snapshots []string `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "doc1", body.ID)
	require.Len(t, body.Snapshots, 2)

	g = gin.New()
	RegisterSnapshotRoutes(g, fakeSnapshots{})
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/new/snapshots", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":"new","snapshots":[]}`, w.Body.String())

	g = gin.New()
	RegisterSnapshotRoutes(g, fakeSnapshots{err: errors.New("bucket gone")})
	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents/doc1/snapshots", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPutRejectsInvalidUTF8(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := gin.New()
	svc := service.NewMemoryService()
	_, err := svc.GetOrCreate(context.Background(), "d")
	require.NoError(t, err)
	RegisterDocumentRoutes(g, svc)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/documents/d", strings.NewReader("{\"a\":\"\xff\"}")))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
