package chat

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// DefaultTypingTimeout is the quiet period after the last keystroke before
// a participant's typing indicator auto-expires.
const DefaultTypingTimeout = 3000 * time.Millisecond

// TypingTracker derives per-participant typing state with debounce-based
// auto-expiry. Local keystrokes arm a cancellable timer per participant;
// remote typing deltas set the flag directly, since the remote client runs
// its own debounce.
//
// Invariant: at most one live timer per participant at any instant. Each
// keystroke resets the pending timer rather than stacking a new one.
type TypingTracker struct {
	mu      sync.Mutex
	typing  map[string]bool
	timers  map[string]*time.Timer
	gens    map[string]uint64
	order   []string
	timeout time.Duration

	// onExpire is invoked once per auto-expiry, outside the tracker lock.
	onExpire func(id string)
}

// NewTypingTracker creates a tracker with the given debounce timeout.
// onExpire may be nil when expiry events are not needed.
func NewTypingTracker(timeout time.Duration, onExpire func(id string)) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		typing:   make(map[string]bool),
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
		timeout:  timeout,
		onExpire: onExpire,
	}
}

// StartTyping marks a participant as typing and (re)starts their debounce
// timer. Returns true when the flag transitioned from false to true, so the
// caller publishes only actual changes.
func (t *TypingTracker) StartTyping(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := !t.typing[id]
	t.setLocked(id, true)

	// Supersede any pending expiry before arming a new one. The generation
	// value is captured before the timer is armed, so the callback never
	// reads tracker state without the lock.
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
	}
	t.gens[id]++
	gen := t.gens[id]
	t.timers[id] = time.AfterFunc(t.timeout, func() {
		t.expire(id, gen)
	})

	return changed
}

// StopTyping clears a participant's typing flag and cancels any pending
// expiry. Returns true when the flag was set.
func (t *TypingTracker) StopTyping(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
		t.gens[id]++
	}
	changed := t.typing[id]
	t.setLocked(id, false)
	return changed
}

// Set applies a remotely observed typing flag without arming a timer.
// Returns true when the stored flag changed.
func (t *TypingTracker) Set(id string, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.typing[id] != isTyping
	t.setLocked(id, isTyping)
	return changed
}

// IsTyping reports the stored flag for a participant. Consumers deriving
// "effectively typing" must additionally check presence, since tracker
// state is not cleaned up when a participant disconnects.
func (t *TypingTracker) IsTyping(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing[id]
}

// TypingUsers returns the participants currently typing, excluding the
// given id. Order is stable insertion order within a snapshot.
func (t *TypingTracker) TypingUsers(excluding string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return lo.Filter(t.order, func(id string, _ int) bool {
		return id != excluding && t.typing[id]
	})
}

// Stop cancels all pending timers. Called when the owning session closes.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
		t.gens[id]++
	}
}

// expire fires when a debounce timer elapses with no intervening activity.
// Resets and cancels bump the generation, so a stale callback that lost the
// race sees a mismatch and backs out, keeping expiry exactly-once per quiet
// period.
func (t *TypingTracker) expire(id string, gen uint64) {
	t.mu.Lock()
	if t.gens[id] != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, id)
	changed := t.typing[id]
	t.setLocked(id, false)
	t.mu.Unlock()

	if changed && t.onExpire != nil {
		t.onExpire(id)
	}
}

// setLocked updates the flag and the insertion-order index. Caller holds mu.
func (t *TypingTracker) setLocked(id string, isTyping bool) {
	if isTyping {
		if !t.typing[id] {
			t.order = append(t.order, id)
		}
		t.typing[id] = true
		return
	}
	if t.typing[id] {
		t.order = lo.Without(t.order, id)
	}
	delete(t.typing, id)
}
