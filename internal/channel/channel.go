// Package channel provides the publish/subscribe channel the synchronization
// core uses to exchange deltas between sessions. The core only depends on the
// Channel interface; the in-memory Broker is the default implementation.
package channel

import (
	"errors"

	"github.com/chatflow/server/internal/models"
)

// ErrChannelUnavailable is returned when the channel cannot accept a publish
// or subscribe, typically because the broker has been shut down. Callers
// treat it as non-fatal: local state stays updated and the view self-heals
// once the channel recovers.
var ErrChannelUnavailable = errors.New("channel unavailable")

// Topic names used by the synchronization core. Ordering is only guaranteed
// within a single topic, and only per publisher.
const (
	TopicPresence = "presence"
	TopicMessages = "messages"
	TopicTyping   = "typing"
)

// Handler is invoked once per delivered delta.
type Handler func(delta models.Delta)

// Channel is a best-effort broadcast channel for deltas.
// Publish is fire-and-forget: no delivery acknowledgement is provided.
// Subscribe returns an unsubscribe function that stops further deliveries.
type Channel interface {
	Publish(topic string, delta models.Delta) error
	Subscribe(topic string, h Handler) (func(), error)
}
