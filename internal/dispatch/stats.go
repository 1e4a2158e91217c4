package dispatch

// Stats is the dispatcher's observability snapshot, served to operational
// dashboards. Protocol logic never reads it.
type Stats struct {
	Sent         uint64 `json:"messages_sent"`
	Delivered    uint64 `json:"messages_acknowledged"`
	AcksReceived uint64 `json:"acks_received"`
	Retries      uint64 `json:"retries_issued"`
	Failures     uint64 `json:"terminal_failures"`
	Fallbacks    uint64 `json:"fallbacks_invoked"`
	Reaped       uint64 `json:"stale_entries_reaped"`
	InFlight     int    `json:"in_flight"`
}

// Stats returns a point-in-time copy of the delivery counters plus the
// current size of the pending table.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.InFlight = len(d.pending)
	return s
}
