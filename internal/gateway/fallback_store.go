package gateway

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/despairhw/tourneycast/internal/dispatch"
)

// maxBacklogPerDisplay caps how many failed messages the store keeps per
// display. Displays redraw fully from any message, so older entries lose
// value fast.
const maxBacklogPerDisplay = 16

// FallbackStore is the non-real-time delivery path: messages that exhausted
// their retries are parked here per display and drained by the display's next
// poll of the pending endpoint. Implements dispatch.Fallback. In-memory only;
// a message that outlives the process is gone, which matches the best-effort
// contract of display sync.
type FallbackStore struct {
	mu      sync.Mutex
	backlog map[string][]*dispatch.OutboundMessage
}

// NewFallbackStore creates an empty store.
func NewFallbackStore() *FallbackStore {
	return &FallbackStore{
		backlog: make(map[string][]*dispatch.OutboundMessage),
	}
}

// Deliver implements dispatch.Fallback: the message is queued for every
// recipient that never acknowledged it.
func (s *FallbackStore) Deliver(_ context.Context, msg *dispatch.OutboundMessage, recipientIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range recipientIDs {
		queue := append(s.backlog[id], msg)
		if len(queue) > maxBacklogPerDisplay {
			queue = queue[len(queue)-maxBacklogPerDisplay:]
		}
		s.backlog[id] = queue
	}

	log.Info().
		Str("message_id", msg.MessageID).
		Strs("recipients", recipientIDs).
		Msg("message parked for HTTP fallback delivery")
	return nil
}

// Drain removes and returns everything queued for one display.
func (s *FallbackStore) Drain(displayID string) []*dispatch.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.backlog[displayID]
	delete(s.backlog, displayID)
	return queue
}

// Backlog reports how many messages are parked for a display without
// draining them.
func (s *FallbackStore) Backlog(displayID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog[displayID])
}
