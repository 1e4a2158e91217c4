package delta

import (
	"sort"
	"strconv"

	"github.com/despairhw/tourneycast/internal/bracket"
	"github.com/despairhw/tourneycast/internal/display"
)

// ChangeSetType distinguishes a change set that warrants a broadcast from one
// that must not be transmitted.
type ChangeSetType string

const (
	ChangeSetDelta ChangeSetType = "delta"
	ChangeSetNone  ChangeSetType = "none"
)

// ChangeSet aggregates the per-slot and per-queue verdicts of one detection
// pass. Payload is always the full document, so a client that dropped earlier
// deltas can redraw from any message it receives. Callers must check Type
// before transmitting: a ChangeSet of type none never goes on the wire.
type ChangeSet struct {
	Type          ChangeSetType                `json:"type"`
	Slots         map[string]*ChangeDescriptor `json:"slots,omitempty"`
	Queue         []QueueChange                `json:"queue,omitempty"`
	PodiumChanged bool                         `json:"podium_changed,omitempty"`
	Payload       *display.Payload             `json:"payload"`
}

// Detector derives the current display state from a bracket snapshot and
// diffs it against the previously committed state. Stations and QueueLen are
// fixed per instance; the queue length is a call-site constant, not a
// property of the detection rules.
type Detector struct {
	stations []string
	queueLen int
}

// NewDetector builds a detector for the given station names and up-next
// queue length.
func NewDetector(stations []string, queueLen int) *Detector {
	return &Detector{
		stations: append([]string(nil), stations...),
		queueLen: queueLen,
	}
}

// BuildChangeSet derives every tracked slot and the up-next queue from the
// snapshot, diffs them against prev, and returns both the change set and the
// freshly derived state. It never mutates prev; the caller applies the new
// state with prev.Commit(next) after inspecting the change set, and should do
// so unconditionally so the next pass compares against current data.
func (d *Detector) BuildChangeSet(prev *display.DisplayState, snap *bracket.Snapshot) (*ChangeSet, *display.DisplayState) {
	next := d.derive(snap)

	cs := &ChangeSet{
		Type:    ChangeSetNone,
		Slots:   make(map[string]*ChangeDescriptor),
		Payload: buildPayload(snap, next),
	}

	for _, station := range d.stations {
		var oldSlot *display.SlotState
		if prev != nil {
			oldSlot = prev.Slots[station]
		}
		if change := DetectSlotChange(oldSlot, next.Slots[station]); change != nil {
			cs.Slots[station] = change
			cs.Type = ChangeSetDelta
		}
	}

	var oldQueue []*display.SlotState
	if prev != nil {
		oldQueue = prev.Queue
	}
	if queueChanges := DetectQueueChanges(oldQueue, next.Queue, d.queueLen); queueChanges != nil {
		cs.Queue = queueChanges
		cs.Type = ChangeSetDelta
	}

	if prev != nil && prev.PodiumComplete != next.PodiumComplete {
		cs.PodiumChanged = true
		cs.Type = ChangeSetDelta
	}

	return cs, next
}

// derive computes the state the displays should show for this snapshot: per
// station the non-complete match currently assigned there, and the up-next
// queue of unassigned open matches in play order.
func (d *Detector) derive(snap *bracket.Snapshot) *display.DisplayState {
	next := display.NewDisplayState(d.stations)

	for _, station := range d.stations {
		for i := range snap.Matches {
			m := &snap.Matches[i]
			if m.State == "complete" || m.StationID == nil || *m.StationID != station {
				continue
			}
			next.Slots[station] = slotFromMatch(snap, m, station)
			break
		}
	}

	queue := make([]*bracket.Match, 0, len(snap.Matches))
	for i := range snap.Matches {
		m := &snap.Matches[i]
		if m.State == "open" && m.StationID == nil {
			queue = append(queue, m)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return playOrder(queue[i]) < playOrder(queue[j])
	})
	if len(queue) > d.queueLen {
		queue = queue[:d.queueLen]
	}
	for _, m := range queue {
		next.Queue = append(next.Queue, slotFromMatch(snap, m, ""))
	}

	next.PodiumComplete = snap.Tournament.State == "complete"
	return next
}

// playOrder is the queue sort key; matches without a suggested order sort
// after every ordered match.
func playOrder(m *bracket.Match) int {
	if m.SuggestedPlayOrder == nil {
		return int(^uint(0) >> 1)
	}
	return *m.SuggestedPlayOrder
}

func slotFromMatch(snap *bracket.Snapshot, m *bracket.Match, station string) *display.SlotState {
	slot := &display.SlotState{
		MatchID:     strconv.FormatInt(m.ID, 10),
		State:       matchState(m),
		Round:       m.Round,
		Player1Name: snap.ParticipantName(m.Player1ID),
		Player2Name: snap.ParticipantName(m.Player2ID),
		Station:     station,
		UnderwayAt:  m.UnderwayAt,
	}
	if m.WinnerID != nil {
		slot.WinnerID = strconv.FormatInt(*m.WinnerID, 10)
	}
	return slot
}

func matchState(m *bracket.Match) display.MatchState {
	switch m.State {
	case "open":
		return display.MatchStateOpen
	case "complete":
		return display.MatchStateComplete
	case "pending":
		return display.MatchStatePending
	default:
		return display.MatchStateNone
	}
}

func buildPayload(snap *bracket.Snapshot, state *display.DisplayState) *display.Payload {
	slots := make(map[string]*display.SlotState, len(state.Slots))
	for station, slot := range state.Slots {
		slots[station] = slot
	}
	return &display.Payload{
		TournamentName:  snap.Tournament.Name,
		TournamentState: snap.Tournament.State,
		Slots:           slots,
		UpNext:          state.Queue,
		PodiumComplete:  state.PodiumComplete,
	}
}
