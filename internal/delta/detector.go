package delta

import (
	"github.com/despairhw/tourneycast/internal/display"
)

// ChangeKind tags the single most significant difference between two
// observations of a display slot.
type ChangeKind string

const (
	ChangeNewItem        ChangeKind = "new_item"
	ChangeItemCleared    ChangeKind = "item_cleared"
	ChangeFullSwap       ChangeKind = "full_swap"
	ChangeStateChange    ChangeKind = "state_change"
	ChangeWinnerDeclared ChangeKind = "winner_declared"
	ChangeUnderway       ChangeKind = "underway_change"
)

// ChangeDescriptor is the detector's verdict for one slot: what kind of
// change happened and the slot's new contents. PrevState and PrevWinner carry
// the prior values for log/diagnostic output only.
type ChangeDescriptor struct {
	Kind       ChangeKind         `json:"kind"`
	Slot       *display.SlotState `json:"slot"`
	PrevState  display.MatchState `json:"prev_state,omitempty"`
	PrevWinner string             `json:"prev_winner,omitempty"`
}

// DetectSlotChange compares two observations of one slot and returns the
// first matching change, or nil when a viewer could not tell them apart.
// Rules are checked in order of visual significance, so a slot change carries
// exactly one kind even when several fields moved at once.
func DetectSlotChange(oldSlot, newSlot *display.SlotState) *ChangeDescriptor {
	if oldSlot == nil && newSlot == nil {
		return nil
	}
	if oldSlot == nil {
		return &ChangeDescriptor{Kind: ChangeNewItem, Slot: newSlot}
	}
	if newSlot == nil {
		return &ChangeDescriptor{
			Kind:       ChangeItemCleared,
			PrevState:  oldSlot.State,
			PrevWinner: oldSlot.WinnerID,
		}
	}
	if oldSlot.MatchID != newSlot.MatchID {
		return &ChangeDescriptor{Kind: ChangeFullSwap, Slot: newSlot, PrevState: oldSlot.State}
	}
	if oldSlot.State != newSlot.State {
		return &ChangeDescriptor{Kind: ChangeStateChange, Slot: newSlot, PrevState: oldSlot.State}
	}
	if oldSlot.WinnerID != newSlot.WinnerID {
		return &ChangeDescriptor{Kind: ChangeWinnerDeclared, Slot: newSlot, PrevWinner: oldSlot.WinnerID}
	}
	if !underwayEqual(oldSlot, newSlot) {
		return &ChangeDescriptor{Kind: ChangeUnderway, Slot: newSlot}
	}
	return nil
}

func underwayEqual(a, b *display.SlotState) bool {
	if a.UnderwayAt == nil || b.UnderwayAt == nil {
		return a.UnderwayAt == b.UnderwayAt
	}
	return a.UnderwayAt.Equal(*b.UnderwayAt)
}

// QueueChangeKind tags one position of the up-next queue. Queue positions
// only distinguish "looks different" from "looks the same"; a swapped-in
// match is reported as new content either way.
type QueueChangeKind string

const (
	QueueNoChange   QueueChangeKind = "no_change"
	QueueNewItem    QueueChangeKind = "new_item"
	QueueItemChange QueueChangeKind = "item_change"
)

// QueueChange is the verdict for one fixed queue position. Slot is nil when
// the position is now empty.
type QueueChange struct {
	Kind QueueChangeKind    `json:"kind"`
	Slot *display.SlotState `json:"slot"`
}

// DetectQueueChanges compares two up-next queues position by position. The
// result always has exactly slotCount entries, padding short inputs with
// empty positions. It returns nil when every position is unchanged, so a
// reordering with no visible effect never costs a broadcast.
func DetectQueueChanges(oldQueue, newQueue []*display.SlotState, slotCount int) []QueueChange {
	changes := make([]QueueChange, slotCount)
	changed := false

	for i := 0; i < slotCount; i++ {
		var oldSlot, newSlot *display.SlotState
		if i < len(oldQueue) {
			oldSlot = oldQueue[i]
		}
		if i < len(newQueue) {
			newSlot = newQueue[i]
		}

		switch {
		case oldSlot == nil && newSlot == nil:
			changes[i] = QueueChange{Kind: QueueNoChange}
		case oldSlot == nil:
			changes[i] = QueueChange{Kind: QueueNewItem, Slot: newSlot}
			changed = true
		case newSlot == nil:
			changes[i] = QueueChange{Kind: QueueItemChange}
			changed = true
		case !oldSlot.Equal(newSlot):
			changes[i] = QueueChange{Kind: QueueItemChange, Slot: newSlot}
			changed = true
		default:
			changes[i] = QueueChange{Kind: QueueNoChange, Slot: newSlot}
		}
	}

	if !changed {
		return nil
	}
	return changes
}
