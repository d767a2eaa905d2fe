package services

import (
	"log"
	"time"

	"github.com/chatflow/server/internal/chat"
	"github.com/chatflow/server/internal/channel"
	"github.com/chatflow/server/internal/models"
)

// PresenceSweeper expires sessions that vanished without a leave delta.
// Client-side unload hooks are unreliable, so the server publishes a leave
// on behalf of any participant silent past the TTL; every gateway folds the
// removal the same way it folds an explicit logout.
// It runs as a background goroutine and periodically checks the server's
// fold-only gateway for stale participants.
type PresenceSweeper struct {
	gateway  *chat.Gateway
	ch       channel.Channel
	interval time.Duration
	ttl      time.Duration
	stopChan chan struct{}
	now      func() int64
}

// NewPresenceSweeper creates a new sweeper.
// - interval: how often to check for stale participants (e.g., 30 seconds)
// - ttl: how long a participant can be silent before expiry (e.g., 90 seconds)
func NewPresenceSweeper(gateway *chat.Gateway, ch channel.Channel, interval, ttl time.Duration) *PresenceSweeper {
	return &PresenceSweeper{
		gateway:  gateway,
		ch:       ch,
		interval: interval,
		ttl:      ttl,
		stopChan: make(chan struct{}),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Start begins the background sweep worker.
// This method runs in its own goroutine and should be called with 'go'.
func (s *PresenceSweeper) Start() {
	log.Printf("[Sweeper] Started (interval: %v, ttl: %v)", s.interval, s.ttl)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopChan:
			log.Println("[Sweeper] Stopped")
			return
		}
	}
}

// Stop gracefully shuts down the sweeper.
func (s *PresenceSweeper) Stop() {
	close(s.stopChan)
}

// Sweep publishes a leave delta for every participant whose lastSeen is
// older than the TTL. Removal happens through the usual fold path, so the
// sweeper itself never mutates state directly.
func (s *PresenceSweeper) Sweep() {
	stale := s.gateway.StalePresence(s.ttl)
	if len(stale) == 0 {
		return
	}

	log.Printf("[Sweeper] Expiring %d stale participants", len(stale))

	ts := s.now()
	for _, id := range stale {
		if err := s.ch.Publish(channel.TopicPresence, models.LeaveDelta(id, ts)); err != nil {
			log.Printf("[Sweeper] Failed to publish leave for %s: %v", id, err)
			continue
		}
		log.Printf("[Sweeper] Expired participant: %s", id)
	}
}
