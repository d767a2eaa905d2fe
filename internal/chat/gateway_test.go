package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/chatflow/server/internal/channel"
	"github.com/chatflow/server/internal/models"
	"github.com/stretchr/testify/require"
)

// stubChannel records publishes and lets tests inject remote deltas
// synchronously. It never echoes a publish back to its own handlers,
// matching the worst case the gateway must tolerate.
type stubChannel struct {
	mu         sync.Mutex
	published  []publication
	handlers   map[string][]channel.Handler
	publishErr error
}

type publication struct {
	topic string
	delta models.Delta
}

func newStubChannel() *stubChannel {
	return &stubChannel{handlers: make(map[string][]channel.Handler)}
}

func (c *stubChannel) Publish(topic string, delta models.Delta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publication{topic: topic, delta: delta})
	return nil
}

func (c *stubChannel) Subscribe(topic string, h channel.Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = append(c.handlers[topic], h)
	return func() {}, nil
}

// deliver simulates a remote delta arriving on a topic.
func (c *stubChannel) deliver(topic string, delta models.Delta) {
	c.mu.Lock()
	handlers := append([]channel.Handler(nil), c.handlers[topic]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(delta)
	}
}

func (c *stubChannel) publishedDeltas(topic string) []models.Delta {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Delta
	for _, p := range c.published {
		if p.topic == topic {
			out = append(out, p.delta)
		}
	}
	return out
}

func newTestGateway(t *testing.T, selfID string, ch channel.Channel, now func() int64) *Gateway {
	t.Helper()
	g, err := NewGateway(selfID, ch, Options{TypingTimeout: time.Minute, Now: now})
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func TestNewGateway_RejectsInvalidUsername(t *testing.T) {
	cases := []string{"a", "  x ", "this-name-is-far-too-long-to-use"}
	for _, name := range cases {
		_, err := NewGateway(name, newStubChannel(), Options{})
		require.Error(t, err, "username %q", name)
		require.True(t, IsValidationError(err))
	}
}

func TestNewGateway_AdoptsTrimmedUsernameAsID(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "   alice-padded-name   ", ch, fixedClock(1000))

	require.Equal(t, "alice-padded-name", g.SelfID())
	users := g.Users()
	require.Contains(t, users, "alice-padded-name")
	require.NotContains(t, users, "   alice-padded-name   ")
	require.LessOrEqual(t, len(g.SelfID()), 20)

	joins := ch.publishedDeltas(channel.TopicPresence)
	require.Len(t, joins, 1)
	require.Equal(t, models.JoinDelta("alice-padded-name", 1000), joins[0])

	// " ab " and "ab" name the same identity.
	other := newTestGateway(t, " ab ", newStubChannel(), fixedClock(1000))
	require.Equal(t, "ab", other.SelfID())
}

func TestGateway_JoinIsLocalFirstThenPublished(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	// Read-your-own-writes: self is present without any remote round-trip.
	users := g.Users()
	require.Contains(t, users, "alice")
	require.Equal(t, int64(1000), users["alice"].LastSeen)

	joins := ch.publishedDeltas(channel.TopicPresence)
	require.Len(t, joins, 1)
	require.Equal(t, models.JoinDelta("alice", 1000), joins[0])
}

func TestGateway_SendMessageAppearsLocallyAndIsPublished(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	msg, err := g.SendMessage("hello")
	require.NoError(t, err)

	listed := g.Messages()
	require.Len(t, listed, 1)
	require.Equal(t, msg, listed[0])
	require.GreaterOrEqual(t, msg.Timestamp, int64(1000))

	published := ch.publishedDeltas(channel.TopicMessages)
	require.Len(t, published, 1)
	require.Equal(t, models.MessageDelta(msg), published[0])
}

func TestGateway_SendMessageRejectsEmptyTextBeforePublishing(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	_, err := g.SendMessage("   ")
	require.True(t, IsValidationError(err))
	require.Empty(t, g.Messages())
	require.Empty(t, ch.publishedDeltas(channel.TopicMessages),
		"no partial or malformed delta may be published")
}

func TestGateway_SendMessageFromUnknownAuthor(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "", ch, fixedClock(1000))

	_, err := g.SendMessageFrom("ghost", "boo")
	require.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestGateway_PublishFailureKeepsLocalState(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))
	ch.publishErr = channel.ErrChannelUnavailable

	msg, err := g.SendMessage("optimistic")
	require.NoError(t, err, "channel outage is non-fatal")
	require.Equal(t, []models.Message{msg}, g.Messages())
}

func TestGateway_RemoteJoinFoldIsIdempotent(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	join := models.JoinDelta("bob", 2000)
	ch.deliver(channel.TopicPresence, join)
	ch.deliver(channel.TopicPresence, join)

	require.Equal(t, 2, g.OnlineCount(), "replayed join must not duplicate state")
	require.Contains(t, g.Users(), "bob")
}

func TestGateway_RemoteMessageFoldIsIdempotent(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	var notifications int
	g.Observe(func(c Component) {
		if c == ComponentMessages {
			notifications++
		}
	})

	delta := models.Delta{Kind: models.DeltaMessage, ID: "0000000001005-x", AuthorID: "bob", Text: "hi", Timestamp: 1005}
	ch.deliver(channel.TopicMessages, delta)
	ch.deliver(channel.TopicMessages, delta)

	require.Len(t, g.Messages(), 1)
	require.Equal(t, 1, notifications, "replay must not re-notify observers")
}

func TestGateway_MessageOrderingAcrossParticipants(t *testing.T) {
	ch := newStubChannel()
	now := int64(1000)
	g := newTestGateway(t, "alice", ch, func() int64 { return now })

	ch.deliver(channel.TopicPresence, models.JoinDelta("bob", 1000))

	hello, err := g.SendMessage("hello")
	require.NoError(t, err)

	ch.deliver(channel.TopicMessages, models.Delta{
		Kind: models.DeltaMessage, ID: "0000000001005-b", AuthorID: "bob", Text: "hi", Timestamp: 1005,
	})

	listed := g.Messages()
	require.Len(t, listed, 2)
	require.Equal(t, hello.ID, listed[0].ID)
	require.Equal(t, "hi", listed[1].Text)
}

func TestGateway_LeaveWhileTypingExcludesFromEffectiveTyping(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "bob", ch, fixedClock(1000))

	ch.deliver(channel.TopicPresence, models.JoinDelta("carol", 1000))
	ch.deliver(channel.TopicTyping, models.TypingDelta("carol", true))
	require.Equal(t, []string{"carol"}, g.TypingUsers())

	// Carol disconnects abruptly; her typing flag is never explicitly
	// cleared, but effective typing requires presence.
	ch.deliver(channel.TopicPresence, models.LeaveDelta("carol", 1001))
	require.NotContains(t, g.Users(), "carol")
	require.Empty(t, g.TypingUsers())
}

func TestGateway_TypingPublishesOnlyOnChange(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	g.StartTyping()
	g.StartTyping()
	g.StartTyping()

	typing := ch.publishedDeltas(channel.TopicTyping)
	require.Len(t, typing, 1, "repeated keystrokes publish one delta")
	require.Equal(t, models.TypingDelta("alice", true), typing[0])

	g.StopTyping()
	typing = ch.publishedDeltas(channel.TopicTyping)
	require.Len(t, typing, 2)
	require.Equal(t, models.TypingDelta("alice", false), typing[1])
}

func TestGateway_TypingAutoExpiryPublishesOnce(t *testing.T) {
	ch := newStubChannel()
	g, err := NewGateway("alice", ch, Options{TypingTimeout: 30 * time.Millisecond, Now: fixedClock(1000)})
	require.NoError(t, err)
	t.Cleanup(g.Close)

	g.StartTyping()

	require.Eventually(t, func() bool {
		return len(ch.publishedDeltas(channel.TopicTyping)) == 2
	}, time.Second, 5*time.Millisecond)

	typing := ch.publishedDeltas(channel.TopicTyping)
	require.Equal(t, models.TypingDelta("alice", false), typing[1])

	// Quiet period passed once; no further expiry events.
	time.Sleep(100 * time.Millisecond)
	require.Len(t, ch.publishedDeltas(channel.TopicTyping), 2)
}

func TestGateway_SendMessageClearsOwnTyping(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	g.StartTyping()
	_, err := g.SendMessage("done typing")
	require.NoError(t, err)

	typing := ch.publishedDeltas(channel.TopicTyping)
	require.Len(t, typing, 2)
	require.Equal(t, models.TypingDelta("alice", false), typing[1])
	require.False(t, g.Users()["alice"].IsTyping)
}

func TestGateway_CloseIsIdempotentAndPublishesLeave(t *testing.T) {
	ch := newStubChannel()
	g, err := NewGateway("alice", ch, Options{Now: fixedClock(1000)})
	require.NoError(t, err)

	g.Close()
	g.Close()

	presence := ch.publishedDeltas(channel.TopicPresence)
	require.Len(t, presence, 2, "one join, one leave")
	require.Equal(t, models.DeltaLeave, presence[1].Kind)
	require.NotContains(t, g.Users(), "alice")
}

func TestGateway_OwnEchoesAreIgnored(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	var notifications int
	g.Observe(func(Component) { notifications++ })

	// The broker echoes every publish back; the gateway already applied
	// these locally and must not fold or re-notify.
	ch.deliver(channel.TopicPresence, models.JoinDelta("alice", 2000))
	ch.deliver(channel.TopicTyping, models.TypingDelta("alice", true))

	require.Zero(t, notifications)
	require.Equal(t, int64(1000), g.Users()["alice"].LastSeen)
	require.False(t, g.Users()["alice"].IsTyping)
}

func TestGateway_ObserverGetsOneNotificationPerComponent(t *testing.T) {
	ch := newStubChannel()
	g := newTestGateway(t, "alice", ch, fixedClock(1000))

	counts := make(map[Component]int)
	var mu sync.Mutex
	g.Observe(func(c Component) {
		mu.Lock()
		counts[c]++
		mu.Unlock()
	})

	ch.deliver(channel.TopicPresence, models.JoinDelta("bob", 1000))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[Component]int{ComponentPresence: 1}, counts)
}
