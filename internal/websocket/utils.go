package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/quizlive-backend/internal/relay"
)

// DefaultWriteTimeout bounds a single frame write when callers pass zero.
const DefaultWriteTimeout = 10 * time.Second

// Encode marshals an outbound message into its wire envelope.
func Encode(event relay.OutEvent, payload interface{}) ([]byte, error) {
	return json.Marshal(ResponseEnvelope{Event: event, Data: payload})
}

// Prepare encodes a message once so it can be written to many connections.
func Prepare(event relay.OutEvent, payload interface{}) (*websocket.PreparedMessage, error) {
	raw, err := Encode(event, payload)
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, raw)
}

// WriteTyped sends a strongly-typed event over the WebSocket.
func WriteTyped(conn *websocket.Conn, timeout time.Duration, event relay.OutEvent, payload interface{}) error {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteJSON(ResponseEnvelope{Event: event, Data: payload})
}

// WriteError sends an error event over the WebSocket.
func WriteError(conn *websocket.Conn, timeout time.Duration, code relay.ErrCode, message string) error {
	return WriteTyped(conn, timeout, relay.OutError, relay.ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// WritePrepared sends a pre-encoded frame with a write deadline.
func WritePrepared(conn *websocket.Conn, timeout time.Duration, pm *websocket.PreparedMessage) error {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WritePreparedMessage(pm)
}
