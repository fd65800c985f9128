// Package hub fans dashboard updates out to websocket clients.
// One goroutine owns the client set; publishers never block on slow readers.
package hub

import "encoding/json"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded text frame
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data such as annotated JPEG frames
	BinaryMessage
)

// Message is one frame queued for every client
type Message struct {
	Type MessageType
	Data []byte
}

// Envelope tags a JSON payload so one socket can carry several kinds
type Envelope struct {
	Kind string `json:"kind"` // "status", "change", ...
	Data any    `json:"data"`
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// NewEnvelope encodes v under kind
func NewEnvelope(kind string, v any) (Message, error) {
	data, err := json.Marshal(Envelope{Kind: kind, Data: v})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
