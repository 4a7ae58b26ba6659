package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/sessions"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

var ErrMissingParticipant = errors.New("participantId is required")

// Options tunes the websocket transport.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteWait       time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	return o
}

// Server upgrades HTTP requests to websocket sessions on a Hub.
type Server struct {
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, opts Options) *Server {
	return &Server{
		hub:  hub,
		opts: opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// CORS is open like the REST API
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", s.ServeWS)
}

// identityFromRequest reads the participant from the query string, falling
// back to headers. The display name defaults to the id.
func identityFromRequest(r *http.Request) (sessions.Participant, error) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("participantId"))
	if id == "" {
		id = strings.TrimSpace(r.Header.Get("X-Participant-Id"))
	}
	if id == "" {
		return sessions.Participant{}, ErrMissingParticipant
	}
	name := strings.TrimSpace(q.Get("displayName"))
	if name == "" {
		name = strings.TrimSpace(r.Header.Get("X-Display-Name"))
	}
	if name == "" {
		name = id
	}
	return sessions.Participant{ID: id, DisplayName: name}, nil
}

// ServeWS blocks for the lifetime of the connection.
func (s *Server) ServeWS(c *gin.Context) {
	who, err := identityFromRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	p := newWSPeer(uuid.NewString(), conn, s.opts)
	coord := s.hub.NewCoordinator(context.Background(), p, who)
	coord.Open()

	go p.writePump()
	go func() {
		<-p.done
		coord.Interrupt()
	}()
	go p.readPump()
	// frames read before the disconnect are still handled, then the
	// participant leaves
	p.dispatch(coord)
	coord.Close()
}

// wsPeer owns one websocket. Frames are queued on send and written by a
// single writer goroutine. Inbound frames go through inbound to a single
// dispatcher so the reader notices a disconnect while a message is handled;
// the reader closes inbound when the socket ends.
type wsPeer struct {
	id      string
	conn    *websocket.Conn
	opts    Options
	send    chan []byte
	inbound chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newWSPeer(id string, conn *websocket.Conn, opts Options) *wsPeer {
	return &wsPeer{
		id:      id,
		conn:    conn,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (p *wsPeer) ID() string { return p.id }

// Send never blocks. A peer whose queue is full is disconnected rather than
// allowed to hold back the rest of the document.
func (p *wsPeer) Send(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		metrics.DroppedMessages.WithLabelValues("slow_consumer").Inc()
		logger.Warnf("connection %s cannot keep up, closing", p.id)
		p.close()
		return false
	}
}

func (p *wsPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *wsPeer) readPump() {
	defer close(p.inbound)
	defer p.close()
	pongWait := p.opts.PingInterval * 2
	p.conn.SetReadLimit(p.opts.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("connection %s read: %v", p.id, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			metrics.DroppedMessages.WithLabelValues("malformed").Inc()
			continue
		}
		p.inbound <- frame
	}
}

// dispatch returns once the reader has stopped and every queued frame is handled.
func (p *wsPeer) dispatch(coord *Coordinator) {
	for frame := range p.inbound {
		coord.Handle(frame)
	}
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(p.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.opts.WriteWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				p.close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(p.opts.WriteWait)); err != nil {
				p.close()
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(p.opts.WriteWait))
			return
		}
	}
}
