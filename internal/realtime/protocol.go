package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client to server events.
const (
	EventSelectDocument = "select-document"
	EventEditOperation  = "edit-operation"
	EventCheckpointSave = "checkpoint-save"
)

// Server to client events. Relayed edits reuse EventEditOperation.
const (
	EventDocumentLoaded = "document-loaded"
	EventRosterChanged  = "roster-changed"
)

var ErrMalformed = errors.New("malformed message")

// Message is the envelope of every websocket frame in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage parses one inbound frame. The payload is kept raw.
func DecodeMessage(frame []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Event == "" {
		return Message{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return m, nil
}

// EncodeMessage builds an outbound frame around an already encoded payload.
func EncodeMessage(event string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Message{Event: event, Data: data})
}

// encodeValue marshals v as the payload of event.
func encodeValue(event string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return EncodeMessage(event, data)
}

// hasPayload reports whether data carries a JSON value other than null.
func hasPayload(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// decodeDocumentID accepts {"documentId":"..."} or a bare JSON string.
func decodeDocumentID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		if id == "" {
			return "", fmt.Errorf("%w: empty documentId", ErrMalformed)
		}
		return id, nil
	}
	var req struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.DocumentID == "" {
		return "", fmt.Errorf("%w: empty documentId", ErrMalformed)
	}
	return req.DocumentID, nil
}
