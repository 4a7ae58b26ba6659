package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h, _ := newTestHub(t)
	r := gin.New()
	NewServer(h, Options{PingInterval: time.Second}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestWebsocketSession(t *testing.T) {
	srv, h := newTestServer(t)

	alice := dial(t, srv, "participantId=A&displayName=Alice")
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"select-document","data":{"documentId":"doc1"}}`)))
	m := readEvent(t, alice)
	require.Equal(t, EventDocumentLoaded, m.Event)
	require.JSONEq(t, `{"ops":[{"insert":"\n"}]}`, string(m.Data))
	m = readEvent(t, alice)
	require.Equal(t, EventRosterChanged, m.Event)
	require.JSONEq(t, `[["A","Alice"]]`, string(m.Data))

	bob := dial(t, srv, "participantId=B")
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(`{"event":"select-document","data":"doc1"}`)))
	require.Equal(t, EventDocumentLoaded, readEvent(t, bob).Event)
	m = readEvent(t, bob)
	require.JSONEq(t, `[["A","Alice"],["B","B"]]`, string(m.Data))
	m = readEvent(t, alice)
	require.JSONEq(t, `[["A","Alice"],["B","B"]]`, string(m.Data))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"event":"edit-operation","data":{"ops":[{"insert":"hi"}]}}`)))
	m = readEvent(t, bob)
	require.Equal(t, EventEditOperation, m.Event)
	require.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(m.Data))

	require.NoError(t, bob.Close())
	m = readEvent(t, alice)
	require.Equal(t, EventRosterChanged, m.Event)
	require.JSONEq(t, `[["A","Alice"]]`, string(m.Data))

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool { return h.Registry().Count() == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestWebsocketIdentityFromHeaders(t *testing.T) {
	srv, h := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	hdr := http.Header{}
	hdr.Set("X-Participant-Id", "H")
	hdr.Set("X-Display-Name", "Header Hank")
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"select-document","data":"doc9"}`)))
	readEvent(t, conn)
	m := readEvent(t, conn)
	require.JSONEq(t, `[["H","Header Hank"]]`, string(m.Data))
	require.Equal(t, []string{"doc9"}, h.Registry().Documents())
}

func TestWebsocketRequiresParticipant(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketOversizedMessageClosesConnection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHub(t)
	r := gin.New()
	NewServer(h, Options{MaxMessageBytes: 64}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dial(t, srv, "participantId=A")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"select-document","data":"doc1"}`)))
	readEvent(t, conn)
	readEvent(t, conn)
	require.True(t, h.Registry().Exists("doc1"))

	big := `{"event":"edit-operation","data":"` + strings.Repeat("x", 200) + `"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))
	require.Eventually(t, func() bool { return !h.Registry().Exists("doc1") }, 5*time.Second, 20*time.Millisecond)
}

func TestWebsocketCheckpointBeforeCloseIsKept(t *testing.T) {
	srv, h := newTestServer(t)

	conn := dial(t, srv, "participantId=A")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"select-document","data":"doc1"}`)))
	readEvent(t, conn)
	readEvent(t, conn)

	for k := 0; k < 10; k++ {
		msg := fmt.Sprintf(`{"event":"checkpoint-save","data":{"v":%d}}`, k)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.Registry().Count() == 0 }, 5*time.Second, 20*time.Millisecond)
	d, err := h.docs.Load(context.Background(), "doc1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":9}`, string(d.Content))
}
