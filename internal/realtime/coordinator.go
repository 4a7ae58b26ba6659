package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document/service"
	"github.com/collabdoc/collabdoc/backend/sync-server/internal/sessions"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

// State of one connection's lifecycle.
type State int

const (
	StateConnected State = iota
	StateAwaitingDocument
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAwaitingDocument:
		return "awaiting-document"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Coordinator drives one connection: it wires inbound messages to the
// registry, store, relay and presence broadcaster. Handle must be called
// from a single goroutine; Close may be called from any goroutine.
type Coordinator struct {
	hub     *Hub
	peer    Peer
	who     sessions.Participant
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	docID string
}

// NewCoordinator starts in StateConnected; call Open once the transport
// handshake has completed.
func (h *Hub) NewCoordinator(parent context.Context, peer Peer, who sessions.Participant) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		hub:    h,
		peer:   peer,
		who:    who,
		log:    logger.With("conn", peer.ID(), "participant", who.ID),
		ctx:    ctx,
		cancel: cancel,
	}
	if h.messageRPS > 0 {
		burst := h.messageBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(h.messageRPS), burst)
	}
	return c
}

// Open marks the connection ready to select a document.
func (c *Coordinator) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	c.state = StateAwaitingDocument
	metrics.ActiveConnections.Inc()
	c.log.Debugf("connection opened")
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DocumentID returns the selected document, "" before selection.
func (c *Coordinator) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.docID
}

// Handle processes one inbound frame. Messages that are malformed, unknown
// or not valid in the current state are dropped.
func (c *Coordinator) Handle(frame []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.drop("rate_limited", "message rate exceeded")
		return
	}
	msg, err := DecodeMessage(frame)
	if err != nil {
		c.drop("malformed", err.Error())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Event {
	case EventSelectDocument:
		if c.state != StateAwaitingDocument && c.state != StateActive {
			c.drop("wrong_state", "select-document while "+c.state.String())
			return
		}
		docID, err := decodeDocumentID(msg.Data)
		if err != nil {
			c.drop("malformed", err.Error())
			return
		}
		c.selectDocument(docID)
	case EventEditOperation:
		if c.state != StateActive {
			c.drop("wrong_state", "edit-operation while "+c.state.String())
			return
		}
		if !hasPayload(msg.Data) {
			c.drop("malformed", "edit-operation without payload")
			return
		}
		c.hub.relay.Relay(c.docID, c.peer.ID(), msg.Data)
	case EventCheckpointSave:
		if c.state != StateActive {
			c.drop("wrong_state", "checkpoint-save while "+c.state.String())
			return
		}
		if !hasPayload(msg.Data) {
			c.drop("malformed", "checkpoint-save without payload")
			return
		}
		c.hub.policy.Checkpoint(c.ctx, c.docID, msg.Data)
	default:
		c.drop("unknown_event", "unknown event "+msg.Event)
	}
}

// selectDocument joins docID before loading it, so edits relayed while the
// load is in flight already reach this connection. Selecting another
// document first leaves the current one.
func (c *Coordinator) selectDocument(docID string) {
	if c.state == StateActive && c.docID != docID {
		c.hub.leave(c.ctx, c.docID, c.peer, c.who.ID)
	}
	c.hub.join(docID, c.peer, c.who)
	c.state = StateActive
	c.docID = docID
	c.log.Infof("joined %s as %q", docID, c.who.DisplayName)

	doc, err := c.hub.docs.GetOrCreate(c.ctx, docID)
	switch {
	case err == nil:
		frame, err := EncodeMessage(EventDocumentLoaded, doc.Content)
		if err != nil {
			c.log.Errorf("encode %s: %v", docID, err)
		} else if !c.peer.Send(frame) {
			c.log.Warnf("document-loaded for %s not delivered", docID)
		}
	case errors.Is(err, context.Canceled):
		c.log.Infof("load %s aborted: %v", docID, err)
	case errors.Is(err, service.ErrPersistenceUnavailable):
		c.log.Errorf("load %s: %v", docID, err)
	default:
		c.log.Errorf("load %s failed: %v", docID, err)
	}

	c.hub.announce(c.ctx, docID)
}

// Interrupt cancels in-flight work of the connection, such as a pending
// load, without leaving the document. Frames handled afterwards still run;
// Close must follow.
func (c *Coordinator) Interrupt() {
	c.cancel()
}

// Close tears the connection down. It cancels in-flight work first, so a
// pending load returns promptly, then removes the participant. Safe to call
// more than once.
func (c *Coordinator) Close() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected {
		return
	}
	if c.state == StateActive {
		c.hub.leave(c.ctx, c.docID, c.peer, c.who.ID)
	}
	if c.state != StateConnected {
		metrics.ActiveConnections.Dec()
	}
	c.state = StateDisconnected
	c.log.Debugf("connection closed")
}

func (c *Coordinator) drop(reason, detail string) {
	metrics.DroppedMessages.WithLabelValues(reason).Inc()
	c.log.Debugf("dropped message: %s", detail)
}
