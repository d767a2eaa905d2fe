// Package chat implements the realtime synchronization core: presence,
// typing indicators, and the message log, tied together by a Gateway that
// exchanges deltas over a publish/subscribe channel.
package chat

import (
	"sync"

	"github.com/chatflow/server/internal/models"
)

// PresenceRegistry tracks each participant's online state and last-seen
// timestamp. A record exists exactly while the participant is connected:
// Join upserts it, Leave deletes it. All operations are keyed upserts or
// deletes, so replaying the same delta twice never duplicates state.
type PresenceRegistry struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		participants: make(map[string]models.Participant),
	}
}

// Join creates or refreshes a participant record with status online.
// Rejoining an id that is already online simply refreshes lastSeen, which
// also makes join deltas double as presence keep-alives. LastSeen never
// regresses: a replayed delta carrying an older timestamp is a no-op.
func (r *PresenceRegistry) Join(id string, ts int64) models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		p = models.Participant{ID: id, Status: models.StatusOnline}
	}
	p.Status = models.StatusOnline
	if ts > p.LastSeen {
		p.LastSeen = ts
	}
	r.participants[id] = p
	return p
}

// Leave removes the participant record entirely. Absence from the registry
// is the signal "gone". Returns false if the id was not present.
func (r *PresenceRegistry) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.participants[id]
	delete(r.participants, id)
	return ok
}

// Touch refreshes a participant's lastSeen from observed activity such as
// a message or typing delta. Unknown ids are ignored.
func (r *PresenceRegistry) Touch(id string, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[id]
	if !ok {
		return
	}
	if ts > p.LastSeen {
		p.LastSeen = ts
		r.participants[id] = p
	}
}

// Get returns the participant record for an id, if present.
func (r *PresenceRegistry) Get(id string) (models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.participants[id]
	return p, ok
}

// List returns a snapshot of the current id -> Participant mapping.
// The snapshot is a copy; no partial updates are ever visible.
func (r *PresenceRegistry) List() map[string]models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]models.Participant, len(r.participants))
	for id, p := range r.participants {
		snapshot[id] = p
	}
	return snapshot
}

// OnlineCount returns the number of online participants. Under this design
// that is every entry, since leaving deletes the record.
func (r *PresenceRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, p := range r.participants {
		if p.Status == models.StatusOnline {
			count++
		}
	}
	return count
}

// StaleBefore returns the ids of participants whose lastSeen is older than
// the cutoff. Used by the presence sweeper to expire sessions that vanished
// without a leave delta.
func (r *PresenceRegistry) StaleBefore(cutoff int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []string
	for id, p := range r.participants {
		if p.LastSeen < cutoff {
			stale = append(stale, id)
		}
	}
	return stale
}
