package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/chatflow/server/internal/models"
)

// Client intent types accepted over the socket.
const (
	IntentMessage    = "message"
	IntentTyping     = "typing"
	IntentStopTyping = "stop_typing"
)

// Server event types pushed to the client.
const (
	EventUsers    = "users"
	EventMessages = "messages"
	EventTyping   = "typing"
	EventError    = "error"
)

// ClientIntent is the expected format of messages from clients.
type ClientIntent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerEvent is a consolidated state push to the client. Exactly one
// payload field is set, matching Type.
type ServerEvent struct {
	Type     string                `json:"type"`
	Users    *models.UsersResponse `json:"users,omitempty"`
	Messages []models.Message      `json:"messages,omitempty"`
	Typing   []string              `json:"typing,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// DecodeIntent parses and checks a raw client frame. Unknown intent types
// and malformed payloads are rejected before anything reaches the core.
func DecodeIntent(raw []byte) (ClientIntent, error) {
	var intent ClientIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return ClientIntent{}, fmt.Errorf("malformed intent: %w", err)
	}
	switch intent.Type {
	case IntentMessage, IntentTyping, IntentStopTyping:
		return intent, nil
	default:
		return ClientIntent{}, fmt.Errorf("unknown intent type %q", intent.Type)
	}
}
