package display

import "time"

// MatchState is the lifecycle state of the match occupying a display slot.
type MatchState string

const (
	MatchStateNone     MatchState = ""
	MatchStatePending  MatchState = "pending"
	MatchStateOpen     MatchState = "open"
	MatchStateComplete MatchState = "complete"
)

// SlotState describes the match currently bound to one display slot: either a
// named station TV or a position in the up-next queue. Only MatchID, State,
// WinnerID and UnderwayAt participate in change detection; the remaining
// fields exist so clients can render without a second lookup.
type SlotState struct {
	MatchID     string     `json:"match_id"`
	State       MatchState `json:"state"`
	WinnerID    string     `json:"winner_id,omitempty"`
	UnderwayAt  *time.Time `json:"underway_at,omitempty"`
	Round       int        `json:"round,omitempty"`
	Player1Name string     `json:"player1_name,omitempty"`
	Player2Name string     `json:"player2_name,omitempty"`
	Station     string     `json:"station,omitempty"`
}

// Equal reports whether two slot states are indistinguishable to a viewer.
func (s *SlotState) Equal(other *SlotState) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.MatchID != other.MatchID || s.State != other.State || s.WinnerID != other.WinnerID {
		return false
	}
	return timePtrEqual(s.UnderwayAt, other.UnderwayAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DisplayState is the caller-owned holder of the last committed view of the
// displays: one slot per configured station, the bounded up-next queue, and
// whether the final standings have been reached. The delta detector reads it
// but never writes it; callers apply new values through Commit.
type DisplayState struct {
	Slots          map[string]*SlotState
	Queue          []*SlotState
	PodiumComplete bool
}

// NewDisplayState returns an empty holder tracking the given station names.
func NewDisplayState(stations []string) *DisplayState {
	slots := make(map[string]*SlotState, len(stations))
	for _, station := range stations {
		slots[station] = nil
	}
	return &DisplayState{Slots: slots}
}

// Commit replaces the held state with next. This is the explicit commit step
// that follows a detection pass; callers run it unconditionally, even when no
// change was detected, so the next pass never compares against stale data.
// Must not be called concurrently with a detection pass over the same holder.
func (s *DisplayState) Commit(next *DisplayState) {
	if next == nil {
		return
	}
	s.Slots = make(map[string]*SlotState, len(next.Slots))
	for station, slot := range next.Slots {
		s.Slots[station] = slot
	}
	s.Queue = make([]*SlotState, len(next.Queue))
	copy(s.Queue, next.Queue)
	s.PodiumComplete = next.PodiumComplete
}

// Payload is the full display document broadcast to clients. It always
// accompanies a change set so clients that missed intermediate deltas can
// redraw from scratch.
type Payload struct {
	TournamentName  string                `json:"tournament_name"`
	TournamentState string                `json:"tournament_state"`
	Slots           map[string]*SlotState `json:"slots"`
	UpNext          []*SlotState          `json:"up_next"`
	PodiumComplete  bool                  `json:"podium_complete"`
}
