package chat

import (
	"testing"
	"time"

	"github.com/chatflow/server/internal/channel"
	"github.com/stretchr/testify/require"
)

// End-to-end convergence over the real broker: two sessions, each with its
// own gateway, observing each other's presence, messages, and typing.
func TestGateways_ConvergeOverBroker(t *testing.T) {
	broker := channel.NewBroker()
	go broker.Run()
	t.Cleanup(broker.Close)

	now := int64(1000)
	clock := func() int64 { return now }

	alice, err := NewGateway("alice", broker, Options{TypingTimeout: time.Minute, Now: clock})
	require.NoError(t, err)
	t.Cleanup(alice.Close)

	hello, err := alice.SendMessage("hello")
	require.NoError(t, err)

	bob, err := NewGateway("bob", broker, Options{TypingTimeout: time.Minute, Now: clock})
	require.NoError(t, err)
	t.Cleanup(bob.Close)

	// Bob sees alice once her join delta arrives; alice sees bob likewise.
	require.Eventually(t, func() bool {
		_, aliceSeesBob := alice.Users()["bob"]
		return aliceSeesBob
	}, time.Second, 5*time.Millisecond)

	// Bob joined after the hello message was published; the broker's
	// retained state replays it to him.
	require.Eventually(t, func() bool {
		return len(bob.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	now = 1005
	hi, err := bob.SendMessage("hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(alice.Messages()) == 2 && len(bob.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	// Both clients converge on the same order.
	for _, g := range []*Gateway{alice, bob} {
		listed := g.Messages()
		require.Equal(t, hello.ID, listed[0].ID)
		require.Equal(t, "hello", listed[0].Text)
		require.Equal(t, hi.ID, listed[1].ID)
		require.Equal(t, "hi", listed[1].Text)
	}

	// Typing indicator propagates and is attributed correctly.
	bob.StartTyping()
	require.Eventually(t, func() bool {
		typing := alice.TypingUsers()
		return len(typing) == 1 && typing[0] == "bob"
	}, time.Second, 5*time.Millisecond)

	// An abrupt departure folds the same way as a logout: the record goes
	// away and effective typing excludes bob even though his flag was
	// never cleared.
	bob.Close()
	require.Eventually(t, func() bool {
		_, present := alice.Users()["bob"]
		return !present && len(alice.TypingUsers()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestGateway_SubscribeFailureSurfaces(t *testing.T) {
	broker := channel.NewBroker()
	go broker.Run()
	broker.Close()

	_, err := NewGateway("alice", broker, Options{})
	require.ErrorIs(t, err, channel.ErrChannelUnavailable)
}
