package chat

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chatflow/server/internal/models"
	"github.com/google/uuid"
)

// MessageLog maintains an append-only, time-ordered set of chat messages.
// Messages are keyed by id, so folding the same message delta twice stores
// it once. There are no update or delete operations: the log is append-only
// by design, not as an oversight.
type MessageLog struct {
	mu   sync.RWMutex
	byID map[string]models.Message
	now  func() int64
}

// NewMessageLog creates an empty log. now supplies timestamps in
// milliseconds since epoch and is injectable for tests.
func NewMessageLog(now func() int64) *MessageLog {
	return &MessageLog{
		byID: make(map[string]models.Message),
		now:  now,
	}
}

// Append validates, stamps, and stores a new message from the given author.
// Text that trims to empty is rejected with a ValidationError and the log
// is left untouched.
func (l *MessageLog) Append(authorID, text string) (models.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.Message{}, &ValidationError{Field: "text", Reason: "message text is empty"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	msg := models.Message{
		ID:        newMessageID(ts),
		AuthorID:  authorID,
		Text:      trimmed,
		Timestamp: ts,
	}
	l.byID[msg.ID] = msg
	return msg, nil
}

// Upsert stores a message observed from a remote delta, keyed by id.
// Returns true when the message was not already present.
func (l *MessageLog) Upsert(msg models.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.byID[msg.ID]
	l.byID[msg.ID] = msg
	return !exists
}

// List returns a snapshot of all messages sorted ascending by timestamp,
// ties broken by id lexical order. Timestamps originate from possibly
// skewed client clocks, so the id tie-break keeps display order stable
// when two messages share a millisecond.
func (l *MessageLog) List() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked(0)
}

// ListAfter returns messages with a timestamp strictly greater than ts,
// in the same order as List. Used for incremental polling.
func (l *MessageLog) ListAfter(ts int64) []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sortedLocked(ts)
}

// Len returns the number of stored messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// sortedLocked builds the ordered snapshot. Caller holds at least mu.RLock.
func (l *MessageLog) sortedLocked(after int64) []models.Message {
	result := make([]models.Message, 0, len(l.byID))
	for _, msg := range l.byID {
		if msg.Timestamp > after {
			result = append(result, msg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// newMessageID builds a message id from the send timestamp and a random
// suffix. The zero-padded millisecond prefix makes lexical order track send
// order, so the (timestamp, id) sort is stable across clients.
func newMessageID(ts int64) string {
	return fmt.Sprintf("%013d-%s", ts, uuid.New().String())
}
