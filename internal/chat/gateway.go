package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chatflow/server/internal/channel"
	"github.com/chatflow/server/internal/models"
	"github.com/samber/lo"
)

// ErrUnknownParticipant is returned when a message is sent on behalf of an
// author that is not present in the registry.
var ErrUnknownParticipant = errors.New("unknown participant")

// Component identifies a downstream state component for observer
// notifications.
type Component string

const (
	ComponentPresence Component = "presence"
	ComponentMessages Component = "messages"
	ComponentTyping   Component = "typing"
)

// Observer receives a single consolidated "state changed" notification per
// affected component after a local or remote delta is applied.
type Observer func(Component)

// Options tune a Gateway. Zero values select production defaults.
type Options struct {
	// TypingTimeout is the typing debounce quiet period.
	TypingTimeout time.Duration

	// Now supplies timestamps in milliseconds since epoch.
	Now func() int64
}

// Gateway is the single entry and exit point for state changes: local
// intents are applied to the authoritative local copy first, then published
// as deltas (read-your-own-writes); remote deltas are folded into the same
// components through keyed upserts, so replay is idempotent.
//
// One Gateway instance serves one session. A Gateway constructed with an
// empty selfID never joins; it only folds remote deltas, which is how the
// server keeps its own view for the polling API and the presence sweeper.
type Gateway struct {
	selfID   string
	ch       channel.Channel
	presence *PresenceRegistry
	typing   *TypingTracker
	msglog   *MessageLog
	now      func() int64

	mu        sync.Mutex
	observers []Observer
	unsubs    []func()
	closed    bool
}

// NewGateway wires the three state components over the channel, subscribes
// to all delta topics, and, for a non-empty selfID, joins and announces the
// session. The display name is trimmed and validated before anything is
// published; the trimmed form is the participant id, so "ab" and " ab "
// are the same identity.
func NewGateway(selfID string, ch channel.Channel, opts Options) (*Gateway, error) {
	selfID = strings.TrimSpace(selfID)
	if selfID != "" {
		if err := ValidateUsername(selfID); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixMilli() }
	}

	g := &Gateway{
		selfID:   selfID,
		ch:       ch,
		presence: NewPresenceRegistry(),
		msglog:   NewMessageLog(now),
		now:      now,
	}
	g.typing = NewTypingTracker(opts.TypingTimeout, g.typingExpired)

	for _, topic := range []string{channel.TopicPresence, channel.TopicMessages, channel.TopicTyping} {
		unsub, err := ch.Subscribe(topic, g.onRemoteDelta)
		if err != nil {
			g.unsubscribe()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		g.unsubs = append(g.unsubs, unsub)
	}

	if selfID != "" {
		ts := now()
		g.presence.Join(selfID, ts)
		g.publish(channel.TopicPresence, models.JoinDelta(selfID, ts))
	}
	return g, nil
}

// SelfID returns the display name this gateway joined with, or "" for a
// fold-only gateway.
func (g *Gateway) SelfID() string {
	return g.selfID
}

// Observe registers an observer for consolidated state-change
// notifications.
func (g *Gateway) Observe(fn Observer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, fn)
}

// SendMessage validates, stores, and publishes a message from this session.
// Sending also clears the sender's typing indicator, mirroring the compose
// box emptying on send.
func (g *Gateway) SendMessage(text string) (models.Message, error) {
	return g.SendMessageFrom(g.selfID, text)
}

// SendMessageFrom stores and publishes a message on behalf of a present
// participant. Local state is updated before the delta is published; a
// publish failure keeps the optimistic local copy.
func (g *Gateway) SendMessageFrom(authorID, text string) (models.Message, error) {
	if _, ok := g.presence.Get(authorID); !ok {
		return models.Message{}, ErrUnknownParticipant
	}

	msg, err := g.msglog.Append(authorID, text)
	if err != nil {
		return models.Message{}, err
	}
	g.presence.Touch(authorID, msg.Timestamp)

	if g.typing.StopTyping(authorID) {
		g.publish(channel.TopicTyping, models.TypingDelta(authorID, false))
		g.notify(ComponentTyping)
	}

	g.publish(channel.TopicMessages, models.MessageDelta(msg))
	g.notify(ComponentMessages)
	return msg, nil
}

// StartTyping marks this session as typing and (re)arms the debounce
// timer. The typing delta is published only when the flag actually flips,
// so repeated keystrokes within the quiet period publish nothing new.
func (g *Gateway) StartTyping() {
	if g.selfID == "" {
		return
	}
	if g.typing.StartTyping(g.selfID) {
		g.publish(channel.TopicTyping, models.TypingDelta(g.selfID, true))
		g.notify(ComponentTyping)
	}
}

// StopTyping explicitly clears this session's typing indicator, cancelling
// any pending auto-expiry.
func (g *Gateway) StopTyping() {
	if g.selfID == "" {
		return
	}
	if g.typing.StopTyping(g.selfID) {
		g.publish(channel.TopicTyping, models.TypingDelta(g.selfID, false))
		g.notify(ComponentTyping)
	}
}

// Heartbeat refreshes this session's lastSeen and republishes an
// idempotent join delta, keeping the record alive past the sweeper TTL.
func (g *Gateway) Heartbeat() {
	if g.selfID == "" {
		return
	}
	ts := g.now()
	g.presence.Join(g.selfID, ts)
	g.publish(channel.TopicPresence, models.JoinDelta(g.selfID, ts))
}

// Close announces the session's departure and tears the gateway down:
// local removal first, then a best-effort leave delta, then unsubscribe.
// Safe to call more than once; both the socket read loop and an explicit
// logout may trigger it.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	if g.selfID != "" {
		g.presence.Leave(g.selfID)
		g.publish(channel.TopicPresence, models.LeaveDelta(g.selfID, g.now()))
	}
	g.typing.Stop()
	g.unsubscribe()
}

// Users returns the presence snapshot with effective typing flags:
// a participant is shown typing only while their record still exists.
func (g *Gateway) Users() map[string]models.Participant {
	users := g.presence.List()
	for id, p := range users {
		p.IsTyping = g.typing.IsTyping(id)
		users[id] = p
	}
	return users
}

// OnlineCount returns the number of online participants.
func (g *Gateway) OnlineCount() int {
	return g.presence.OnlineCount()
}

// Messages returns the ordered message snapshot.
func (g *Gateway) Messages() []models.Message {
	return g.msglog.List()
}

// MessagesAfter returns messages newer than ts for incremental polling.
func (g *Gateway) MessagesAfter(ts int64) []models.Message {
	return g.msglog.ListAfter(ts)
}

// TypingUsers returns the display names currently and effectively typing,
// excluding this session. A participant whose record was removed is
// excluded even if their stored typing flag was never cleared.
func (g *Gateway) TypingUsers() []string {
	return lo.Filter(g.typing.TypingUsers(g.selfID), func(id string, _ int) bool {
		_, present := g.presence.Get(id)
		return present
	})
}

// StalePresence returns participants with no activity for at least ttl.
func (g *Gateway) StalePresence(ttl time.Duration) []string {
	return g.presence.StaleBefore(g.now() - ttl.Milliseconds())
}

// onRemoteDelta folds a delta from another session into local state and
// notifies observers once per affected component. Own echoes are dropped:
// local intents were already applied before publishing.
func (g *Gateway) onRemoteDelta(d models.Delta) {
	switch d.Kind {
	case models.DeltaJoin:
		if g.isSelf(d.ParticipantID) {
			return
		}
		g.presence.Join(d.ParticipantID, d.Timestamp)
		g.notify(ComponentPresence)

	case models.DeltaLeave:
		if g.isSelf(d.ParticipantID) {
			return
		}
		wasTyping := g.typing.IsTyping(d.ParticipantID)
		g.presence.Leave(d.ParticipantID)
		g.notify(ComponentPresence)
		if wasTyping {
			// Effective typing changed even though the tracker flag stays.
			g.notify(ComponentTyping)
		}

	case models.DeltaMessage:
		// No author filtering here: duplicate display names are allowed,
		// so own echoes are deduplicated by message id instead.
		stored := g.msglog.Upsert(models.Message{
			ID:        d.ID,
			AuthorID:  d.AuthorID,
			Text:      d.Text,
			Timestamp: d.Timestamp,
		})
		if stored {
			g.presence.Touch(d.AuthorID, d.Timestamp)
			g.notify(ComponentMessages)
		}

	case models.DeltaTyping:
		if g.isSelf(d.ParticipantID) {
			return
		}
		if g.typing.Set(d.ParticipantID, d.IsTyping) {
			g.notify(ComponentTyping)
		}

	default:
		log.Printf("[Gateway] Ignoring delta with unknown kind %q", d.Kind)
	}
}

// typingExpired publishes the auto-expiry of this session's own debounce
// timer. Remote flags expire on their owner's session, not here.
func (g *Gateway) typingExpired(id string) {
	g.publish(channel.TopicTyping, models.TypingDelta(id, false))
	g.notify(ComponentTyping)
}

// publish sends a delta fire-and-forget. The channel being unavailable is
// non-fatal: local state already holds the change and remote views catch
// up once the channel recovers.
func (g *Gateway) publish(topic string, d models.Delta) {
	if err := g.ch.Publish(topic, d); err != nil {
		log.Printf("[Gateway] Publish to %s failed (kept locally): %v", topic, err)
	}
}

// notify delivers one consolidated notification per component change.
func (g *Gateway) notify(c Component) {
	g.mu.Lock()
	observers := make([]Observer, len(g.observers))
	copy(observers, g.observers)
	g.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
}

func (g *Gateway) unsubscribe() {
	for _, unsub := range g.unsubs {
		unsub()
	}
	g.unsubs = nil
}

func (g *Gateway) isSelf(id string) bool {
	return g.selfID != "" && id == g.selfID
}
