package websocket

import (
	"encoding/json"

	"github.com/stemsi/quizlive-backend/internal/relay"
)

// ─── Requests (Client → Server) ────────────────────────────────────

// RequestEnvelope is used to peek at the event before decoding its data.
type RequestEnvelope struct {
	Event       relay.EventName `json:"event"`
	SessionCode string          `json:"session_code,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ─── Events (Server → Client) ──────────────────────────────────────

// ResponseEnvelope wraps every outbound event.
type ResponseEnvelope struct {
	Event relay.OutEvent `json:"event"`
	Data  interface{}    `json:"data"`
}
