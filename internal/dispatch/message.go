package dispatch

import "time"

// EventType is the closed set of event kinds this subsystem broadcasts.
type EventType string

const (
	// EventMatchesUpdate carries the full display payload after any slot or
	// queue change.
	EventMatchesUpdate EventType = "matches:update"
	// EventTournamentReset tells displays to drop local state and redraw,
	// sent when the server is pointed at a different tournament.
	EventTournamentReset EventType = "tournament:reset"
	// EventStandingsComplete fires once when final standings are reached.
	EventStandingsComplete EventType = "standings:complete"
)

// OutboundMessage is one broadcast as it goes on the wire. Immutable once
// constructed; the sequence number is unique and strictly increasing for the
// lifetime of the dispatcher that issued it and is never reused, so displays
// can drop anything at or below the last sequence they processed.
type OutboundMessage struct {
	MessageID string    `json:"messageId"`
	Sequence  uint64    `json:"sequenceNumber"`
	Event     EventType `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack is the confirmation a display sends back for one message. The sender's
// identity comes from the transport layer, not the payload.
type Ack struct {
	MessageID string `json:"messageId"`
	Sequence  uint64 `json:"sequenceNumber"`
}
