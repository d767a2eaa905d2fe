package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/models"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8 * 1024
)

// Session bridges a single WebSocket connection to its own Gateway
// instance. Client intents flow through the read pump into the gateway;
// consolidated state events flow back through the write pump.
type Session struct {
	gateway *chat.Gateway

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound events
	send chan []byte

	// Username is the display name this session joined with
	Username string
}

// NewSession creates a new Session instance.
func NewSession(gateway *chat.Gateway, conn *websocket.Conn) *Session {
	return &Session{
		gateway:  gateway,
		conn:     conn,
		send:     make(chan []byte, 64),
		Username: gateway.SelfID(),
	}
}

// Start registers the state observer, pushes the initial snapshots, and
// runs the read/write pumps in separate goroutines.
func (s *Session) Start() {
	s.gateway.Observe(func(c chat.Component) {
		s.pushState(c)
	})

	// Initial full snapshot so the client renders without waiting for the
	// first remote change.
	s.pushState(chat.ComponentPresence)
	s.pushState(chat.ComponentMessages)
	s.pushState(chat.ComponentTyping)

	go s.writePump()
	go s.readPump()
}

// readPump pumps intents from the WebSocket connection into the gateway.
// This runs in its own goroutine per session. Exiting the loop, whether
// from a clean close or an abrupt drop, closes the gateway and thereby
// publishes the leave delta.
func (s *Session) readPump() {
	defer func() {
		s.gateway.Close()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		// A live socket keeps the presence record fresh past the sweeper TTL.
		s.gateway.Heartbeat()
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WebSocket] Read error from %s: %v", s.Username, err)
			}
			break
		}
		s.handleIntent(raw)
	}
}

// handleIntent applies one decoded client intent to the gateway.
// Invalid input is rejected here and reported back to this client only;
// no delta is ever published for it.
func (s *Session) handleIntent(raw []byte) {
	intent, err := DecodeIntent(raw)
	if err != nil {
		s.pushError(err.Error())
		return
	}

	switch intent.Type {
	case IntentMessage:
		if _, err := s.gateway.SendMessage(intent.Text); err != nil {
			s.pushError(err.Error())
		}
	case IntentTyping:
		s.gateway.StartTyping()
	case IntentStopTyping:
		s.gateway.StopTyping()
	}
}

// writePump pumps events from the send queue to the WebSocket connection.
// This runs in its own goroutine per session.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each event is a separate frame so the client can parse
			// every payload as standalone JSON.
			if err := s.conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}

			n := len(s.send)
			for i := 0; i < n; i++ {
				if err := s.conn.WriteMessage(websocket.TextMessage, <-s.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushState queues the snapshot event for one component. A full queue
// drops the push; the next change for that component re-delivers a
// fresher snapshot anyway.
func (s *Session) pushState(c chat.Component) {
	var event ServerEvent
	switch c {
	case chat.ComponentPresence:
		event = ServerEvent{
			Type: EventUsers,
			Users: &models.UsersResponse{
				Users:       s.gateway.Users(),
				OnlineCount: s.gateway.OnlineCount(),
			},
		}
	case chat.ComponentMessages:
		event = ServerEvent{Type: EventMessages, Messages: s.gateway.Messages()}
	case chat.ComponentTyping:
		event = ServerEvent{Type: EventTyping, Typing: s.gateway.TypingUsers()}
	default:
		return
	}
	s.enqueue(event)
}

// pushError reports a user-correctable problem back to this client only.
func (s *Session) pushError(msg string) {
	s.enqueue(ServerEvent{Type: EventError, Error: msg})
}

func (s *Session) enqueue(event ServerEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Printf("[WebSocket] Failed to encode event for %s: %v", s.Username, err)
		return
	}
	select {
	case s.send <- raw:
	default:
		log.Printf("[WebSocket] Send queue full for %s, dropping %s event", s.Username, event.Type)
	}
}
