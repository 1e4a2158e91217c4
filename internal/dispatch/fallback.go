package dispatch

import "time"

// DeliveryStatus is a point-in-time delivery record kept by callers that
// track broadcast outcomes themselves instead of going through the
// dispatcher's ACK registry. The helper below only reads it.
type DeliveryStatus struct {
	// LastBroadcast is when the caller last pushed an update; zero if never.
	LastBroadcast time.Time
	// LastAcks maps recipient id to that recipient's most recent
	// acknowledgement time.
	LastAcks map[string]time.Time
	// FallbackDelay is the grace period after a broadcast during which
	// missing acks are not yet suspicious.
	FallbackDelay time.Duration
}

// NeedsHTTPFallback reports whether status indicates real-time delivery
// cannot be confirmed and the caller should offer the pollable fallback.
// Within the grace period it always returns false, even with zero acks; past
// it, a single acknowledgement at or after the last broadcast is proof the
// channel works.
func NeedsHTTPFallback(status DeliveryStatus, now time.Time) bool {
	if status.LastBroadcast.IsZero() {
		return false
	}
	if now.Sub(status.LastBroadcast) <= status.FallbackDelay {
		return false
	}
	for _, ackedAt := range status.LastAcks {
		if !ackedAt.Before(status.LastBroadcast) {
			return false
		}
	}
	return true
}
