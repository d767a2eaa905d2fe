package channel

import (
	"log"
	"sync"

	"github.com/chatflow/server/internal/models"
	"github.com/samber/lo"
)

// subscriberBuffer is the per-subscriber delivery queue size. A subscriber
// that falls this far behind is evicted rather than blocking the broker.
const subscriberBuffer = 256

// subscriber is a single registered handler on one topic.
// Deltas are delivered in publish order through a buffered queue drained
// by a dedicated goroutine, so a slow handler never stalls the broker loop.
type subscriber struct {
	topic   string
	handler Handler
	deltas  chan models.Delta

	// replay receives the topic's retained state once, at registration
	replay chan []models.Delta
}

// publication pairs a delta with its destination topic.
type publication struct {
	topic string
	delta models.Delta
}

// retained holds a topic's current state as per-entity deltas: messages
// accumulate keyed by id, while join/typing deltas upsert per participant
// and leave/typing-stopped deltas remove the entry. Replaying the result to
// a new subscriber hands it the full message history plus exactly the
// participants and typing flags still in effect.
type retained struct {
	order []string
	byKey map[string]models.Delta
}

// Broker is an in-memory Channel implementation that fans out every
// published delta to all subscribers of its topic, including the
// publisher's own subscriptions (subscribers filter their own echoes).
// New subscribers first receive the topic's retained state, so late
// joiners converge with sessions that connected earlier.
type Broker struct {
	// topics maps a topic name to the set of subscribers on it
	topics map[string]map[*subscriber]bool

	// state maps a topic name to its retained per-entity deltas
	state map[string]*retained

	// subscribe requests from new subscribers
	subscribe chan *subscriber

	// unsubscribe requests from departing subscribers
	unsubscribe chan *subscriber

	// publish carries deltas into the fan-out loop
	publish chan publication

	// closed is closed exactly once by Close
	closed    chan struct{}
	closeOnce sync.Once

	// mutex for thread-safe topic map reads
	mu sync.RWMutex
}

// NewBroker creates a new Broker instance.
// Run must be started before any Publish or Subscribe call.
func NewBroker() *Broker {
	return &Broker{
		topics:      make(map[string]map[*subscriber]bool),
		state:       make(map[string]*retained),
		subscribe:   make(chan *subscriber),
		unsubscribe: make(chan *subscriber),
		publish:     make(chan publication),
		closed:      make(chan struct{}),
	}
}

// Run starts the broker's main fan-out loop.
// This should be called in a goroutine: go broker.Run()
func (b *Broker) Run() {
	for {
		select {
		case sub := <-b.subscribe:
			b.addSubscriber(sub)

		case sub := <-b.unsubscribe:
			b.removeSubscriber(sub)

		case pub := <-b.publish:
			b.retain(pub)
			b.fanOut(pub)

		case <-b.closed:
			b.shutdown()
			return
		}
	}
}

// Publish broadcasts a delta to every subscriber of the topic.
// Best-effort: returns ErrChannelUnavailable once the broker is closed.
func (b *Broker) Publish(topic string, delta models.Delta) error {
	select {
	case <-b.closed:
		return ErrChannelUnavailable
	default:
	}
	select {
	case b.publish <- publication{topic: topic, delta: delta}:
		return nil
	case <-b.closed:
		return ErrChannelUnavailable
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. The handler first receives the topic's retained state, then
// every subsequent delta in publish order, on a goroutine owned by the
// broker.
func (b *Broker) Subscribe(topic string, h Handler) (func(), error) {
	select {
	case <-b.closed:
		return nil, ErrChannelUnavailable
	default:
	}

	sub := &subscriber{
		topic:   topic,
		handler: h,
		deltas:  make(chan models.Delta, subscriberBuffer),
		replay:  make(chan []models.Delta, 1),
	}

	select {
	case b.subscribe <- sub:
	case <-b.closed:
		return nil, ErrChannelUnavailable
	}

	// Replay precedes live deltas; registration happened inside the broker
	// loop, so nothing published after it can be missed or reordered.
	go func() {
		for _, delta := range <-sub.replay {
			sub.handler(delta)
		}
		for delta := range sub.deltas {
			sub.handler(delta)
		}
	}()

	unsubscribe := func() {
		select {
		case b.unsubscribe <- sub:
		case <-b.closed:
		}
	}
	return unsubscribe, nil
}

// Close shuts the broker down. Pending subscribers are released and all
// subsequent Publish and Subscribe calls fail with ErrChannelUnavailable.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// addSubscriber registers a subscriber on its topic and hands it the
// retained state snapshot.
func (b *Broker) addSubscriber(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[sub.topic] == nil {
		b.topics[sub.topic] = make(map[*subscriber]bool)
	}
	b.topics[sub.topic][sub] = true

	sub.replay <- b.snapshotLocked(sub.topic)
}

// removeSubscriber deletes a subscriber and closes its queue.
func (b *Broker) removeSubscriber(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.topics[sub.topic]; ok {
		if _, exists := subs[sub]; exists {
			delete(subs, sub)
			close(sub.deltas)

			// Clean up empty topics
			if len(subs) == 0 {
				delete(b.topics, sub.topic)
			}
		}
	}
}

// retain folds a publication into the topic's per-entity state.
func (b *Broker) retain(pub publication) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, keep := retentionKey(pub.delta)
	if key == "" {
		return
	}

	state := b.state[pub.topic]
	if state == nil {
		state = &retained{byKey: make(map[string]models.Delta)}
		b.state[pub.topic] = state
	}

	if _, exists := state.byKey[key]; !exists && keep {
		state.order = append(state.order, key)
	}
	if keep {
		state.byKey[key] = pub.delta
		return
	}
	delete(state.byKey, key)
	state.order = lo.Without(state.order, key)
}

// retentionKey maps a delta to its entity key and whether it upserts
// (true) or removes (false) the retained entry.
func retentionKey(d models.Delta) (string, bool) {
	switch d.Kind {
	case models.DeltaMessage:
		return "message/" + d.ID, true
	case models.DeltaJoin:
		return "participant/" + d.ParticipantID, true
	case models.DeltaLeave:
		return "participant/" + d.ParticipantID, false
	case models.DeltaTyping:
		return "typing/" + d.ParticipantID, d.IsTyping
	default:
		return "", false
	}
}

// snapshotLocked returns the retained deltas for a topic in first-seen
// order. Caller holds mu.
func (b *Broker) snapshotLocked(topic string) []models.Delta {
	state := b.state[topic]
	if state == nil {
		return nil
	}
	snapshot := make([]models.Delta, 0, len(state.byKey))
	for _, key := range state.order {
		if delta, ok := state.byKey[key]; ok {
			snapshot = append(snapshot, delta)
		}
	}
	return snapshot
}

// fanOut delivers a publication to every subscriber of its topic.
// Delivery order per subscriber matches publish order because this loop is
// the only writer to each subscriber queue.
func (b *Broker) fanOut(pub publication) {
	b.mu.RLock()
	subs := b.topics[pub.topic]
	b.mu.RUnlock()

	for sub := range subs {
		select {
		case sub.deltas <- pub.delta:
		default:
			// Subscriber's queue is full, evict it
			log.Printf("[Broker] Evicting slow subscriber on topic %s", pub.topic)
			b.mu.Lock()
			if _, ok := b.topics[pub.topic]; ok {
				delete(b.topics[pub.topic], sub)
				close(sub.deltas)
			}
			b.mu.Unlock()
		}
	}
}

// shutdown closes every subscriber queue after Close.
func (b *Broker) shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.topics {
		for sub := range subs {
			close(sub.deltas)
		}
		delete(b.topics, topic)
	}
	log.Println("[Broker] Shut down")
}
