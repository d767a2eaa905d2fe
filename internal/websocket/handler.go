package websocket

import (
	"log"
	"net/http"
	"strings"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/channel"
	"github.com/gorilla/websocket"
)

// upgrader upgrades HTTP connections to WebSocket
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow connections from any origin (CORS handled by middleware)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler accepts WebSocket connections and gives each one its own
// synchronization gateway over the shared channel.
type Handler struct {
	ch   channel.Channel
	opts chat.Options
}

// NewHandler creates a new WebSocket handler.
func NewHandler(ch channel.Channel, opts chat.Options) *Handler {
	return &Handler{ch: ch, opts: opts}
}

// ServeWS handles WebSocket upgrade requests at /ws
// Query params: username (display name, 2-20 characters)
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if err := chat.ValidateUsername(username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Upgrade failed: %v", err)
		return
	}

	// Joining happens inside the gateway constructor, so the join delta is
	// already out by the time the first snapshot is pushed.
	gateway, err := chat.NewGateway(username, h.ch, h.opts)
	if err != nil {
		log.Printf("[WebSocket] Gateway setup failed for %s: %v", username, err)
		conn.Close()
		return
	}

	log.Printf("[WebSocket] New connection: username=%s", username)

	NewSession(gateway, conn).Start()
}
