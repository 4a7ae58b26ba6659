package realtime

import (
	"encoding/json"

	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/logger"
	"github.com/collabdoc/collabdoc/backend/sync-server/pkg/metrics"
)

// Relay forwards edit operations to the other viewers of a document. The
// payload is opaque and never transformed. Order is preserved per sender
// because each connection's frames are handled one at a time and every
// peer has a single FIFO send queue; there is no order across senders.
type Relay struct {
	rooms *Rooms
}

func NewRelay(rooms *Rooms) *Relay {
	return &Relay{rooms: rooms}
}

// Relay returns the number of peers the operation was queued for.
func (r *Relay) Relay(docID, senderConnID string, payload json.RawMessage) int {
	frame, err := EncodeMessage(EventEditOperation, payload)
	if err != nil {
		logger.Warnf("relay on %s: cannot encode operation: %v", docID, err)
		return 0
	}
	n := 0
	for _, p := range r.rooms.Peers(docID) {
		if p.ID() == senderConnID {
			continue
		}
		if p.Send(frame) {
			n++
		}
	}
	metrics.RelayedOperations.Add(float64(n))
	return n
}
