package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/models"
)

// ChatHandler contains HTTP handlers for the polling fallback API.
// It serves snapshots from the server's fold-only gateway, so responses
// reflect the same state every connected session converges to.
type ChatHandler struct {
	gateway *chat.Gateway
}

// NewChatHandler creates a new ChatHandler instance.
func NewChatHandler(gateway *chat.Gateway) *ChatHandler {
	return &ChatHandler{gateway: gateway}
}

// HealthResponse reports liveness plus a snapshot of what the server is
// currently tracking.
type HealthResponse struct {
	Status       string `json:"status"`
	OnlineCount  int    `json:"online_count"`
	MessageCount int    `json:"message_count"`
}

// Health handles GET /health
// Reports liveness along with current presence and log sizes, so a
// monitoring check doubles as a cheap state sanity check.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		OnlineCount:  h.gateway.OnlineCount(),
		MessageCount: len(h.gateway.Messages()),
	})
}

// GetUsers handles GET /api/users
// Returns the presence snapshot with effective typing flags.
func (h *ChatHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	response := models.UsersResponse{
		Users:       h.gateway.Users(),
		OnlineCount: h.gateway.OnlineCount(),
	}
	writeJSON(w, http.StatusOK, response)
}

// GetMessages handles GET /api/messages
// Returns the ordered message log, optionally filtered for polling.
// Query params:
//   - after: millisecond epoch timestamp; only newer messages are returned
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	var after int64
	if afterParam := r.URL.Query().Get("after"); afterParam != "" {
		parsed, err := strconv.ParseInt(afterParam, 10, 64)
		if err != nil {
			http.Error(w, "invalid 'after' timestamp", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	var messages []models.Message
	if after > 0 {
		messages = h.gateway.MessagesAfter(after)
	} else {
		messages = h.gateway.Messages()
	}

	writeJSON(w, http.StatusOK, models.GetMessagesResponse{Messages: messages})
}

// SendMessage handles POST /api/messages
// Stores and broadcasts a message on behalf of a joined participant.
// The author must currently be present; polling clients join over the
// WebSocket endpoint like everyone else.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := chat.ValidateStruct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.gateway.SendMessageFrom(req.AuthorID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUnknownParticipant):
			http.Error(w, "participant not found", http.StatusNotFound)
		case chat.IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	log.Printf("[Chat] Stored message %s from %s", msg.ID, msg.AuthorID)
	writeJSON(w, http.StatusCreated, msg)
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
