package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/despairhw/tourneycast/internal/metrics"
)

// ErrNotConfigured is returned by Broadcast when the dispatcher was built
// without a transport. This is a wiring bug in the host, not a delivery
// failure, and is reported loudly instead of being swallowed.
var ErrNotConfigured = errors.New("dispatch: transport not configured")

// Transport delivers messages to display clients. It is owned by the hosting
// application; the dispatcher only reads the recipient list and sends.
type Transport interface {
	// Send transmits one message to one recipient. A send to a recipient
	// that disconnected meanwhile returns an error, which the dispatcher
	// treats as a transient gap, not a fault.
	Send(recipientID string, msg *OutboundMessage) error
	// RecipientIDs enumerates the recipients currently connected.
	RecipientIDs() []string
}

// Fallback is the secondary delivery path, invoked at most once per failed
// message with the recipients that never acknowledged it.
type Fallback interface {
	Deliver(ctx context.Context, msg *OutboundMessage, recipientIDs []string) error
}

// deliveryState is the retry machine's state for one pending message.
// Transitions are driven by exactly three inputs: a scheduled delivery check
// firing, an acknowledgement arriving, and a reaper sweep.
type deliveryState string

const (
	stateSent     deliveryState = "sent"
	stateRetrying deliveryState = "retrying"
	stateAcked    deliveryState = "acked"
	stateFailed   deliveryState = "failed"
)

// pendingDelivery is the bookkeeping for one in-flight broadcast. Owned
// exclusively by the dispatcher; everything here is guarded by Dispatcher.mu.
type pendingDelivery struct {
	msg       *OutboundMessage
	state     deliveryState
	attempts  int
	firstSent time.Time
	acked     map[string]struct{}
	timer     clockwork.Timer
}

// Dispatcher reliably broadcasts display updates: every message carries a
// unique id and a strictly increasing sequence number, unacknowledged
// recipients are retried at a fixed interval up to a bound, and recipients
// that never acknowledge are handed to the fallback path. Delivery failures
// never propagate to broadcast callers; they surface through logs and stats
// only, because display sync is best-effort by design.
//
// All shared state sits behind one mutex: retries fire from timer goroutines,
// acknowledgements arrive from transport readers, and broadcasts come from
// the application loop, all concurrently.
type Dispatcher struct {
	cfg       Config
	transport Transport
	fallback  Fallback
	clock     clockwork.Clock

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingDelivery
	stats   Stats
}

// New creates a dispatcher. transport and fallback may be nil for hosts that
// wire them later, but Broadcast fails until a transport is present.
func New(cfg Config, transport Transport, fallback Fallback, clock clockwork.Clock) *Dispatcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Dispatcher{
		cfg:       cfg,
		transport: transport,
		fallback:  fallback,
		clock:     clock,
		pending:   make(map[string]*pendingDelivery),
	}
}

// Broadcast sends payload to every currently connected recipient and returns
// the allocated message id. Delivery continues asynchronously: the caller
// must not assume the message has arrived anywhere when Broadcast returns.
func (d *Dispatcher) Broadcast(event EventType, payload any) (string, error) {
	if d.transport == nil {
		log.Error().Str("event", string(event)).Msg("broadcast before transport configured")
		return "", ErrNotConfigured
	}

	d.mu.Lock()
	d.seq++
	msg := &OutboundMessage{
		MessageID: uuid.NewString(),
		Sequence:  d.seq,
		Event:     event,
		Payload:   payload,
		Timestamp: d.clock.Now(),
	}
	pd := &pendingDelivery{
		msg:       msg,
		state:     stateSent,
		attempts:  1,
		firstSent: d.clock.Now(),
		acked:     make(map[string]struct{}),
	}
	d.pending[msg.MessageID] = pd
	d.stats.Sent++
	recipients := d.transport.RecipientIDs()
	pd.timer = d.clock.AfterFunc(d.cfg.RetryDelay, func() {
		d.checkDelivery(msg.MessageID)
	})
	d.mu.Unlock()

	metrics.MessagesSent.Inc()
	metrics.PendingInFlight.Inc()

	d.sendTo(recipients, msg)

	log.Debug().
		Str("message_id", msg.MessageID).
		Uint64("sequence", msg.Sequence).
		Str("event", string(event)).
		Int("recipients", len(recipients)).
		Msg("broadcast issued")

	return msg.MessageID, nil
}

// Acknowledge records that a recipient received a message. Unknown message
// ids are expected traffic (late acks after resolution, duplicates) and are
// logged at debug level, never treated as errors. Acks from recipients the
// transport does not know are logged and ignored. When the last connected
// recipient acknowledges, the pending entry is resolved immediately instead
// of waiting for the next scheduled check.
func (d *Dispatcher) Acknowledge(recipientID, messageID string, sequence uint64) {
	if !d.connectedRecipient(recipientID) {
		log.Warn().
			Str("recipient_id", recipientID).
			Str("message_id", messageID).
			Msg("ack from unknown recipient, ignoring")
		return
	}

	d.mu.Lock()
	pd, ok := d.pending[messageID]
	if !ok {
		d.mu.Unlock()
		log.Debug().
			Str("recipient_id", recipientID).
			Str("message_id", messageID).
			Msg("ack for unknown message, ignoring")
		return
	}

	if sequence != pd.msg.Sequence {
		log.Warn().
			Str("message_id", messageID).
			Uint64("got_sequence", sequence).
			Uint64("want_sequence", pd.msg.Sequence).
			Msg("ack sequence mismatch")
	}

	pd.acked[recipientID] = struct{}{}
	d.stats.AcksReceived++

	if len(d.unacked(pd)) == 0 {
		acks := len(pd.acked)
		d.resolve(messageID, pd)
		d.mu.Unlock()
		log.Debug().
			Str("message_id", messageID).
			Int("acks", acks).
			Msg("message fully acknowledged")
		return
	}
	d.mu.Unlock()
}

// checkDelivery is the scheduled input of the retry machine. It runs on the
// timer goroutine, never from external callers.
func (d *Dispatcher) checkDelivery(messageID string) {
	d.mu.Lock()
	pd, ok := d.pending[messageID]
	if !ok {
		// Already resolved by an ack or the reaper.
		d.mu.Unlock()
		return
	}

	remaining := d.unacked(pd)
	if len(remaining) == 0 {
		d.resolve(messageID, pd)
		d.mu.Unlock()
		return
	}

	if pd.attempts >= d.cfg.MaxAttempts {
		pd.state = stateFailed
		delete(d.pending, messageID)
		d.stats.Failures++
		hasFallback := d.fallback != nil
		if hasFallback {
			d.stats.Fallbacks++
		}
		attempts := pd.attempts
		msg := pd.msg
		d.mu.Unlock()

		metrics.TerminalFailures.Inc()
		metrics.PendingInFlight.Dec()

		if !hasFallback {
			log.Warn().
				Str("message_id", messageID).
				Int("attempts", attempts).
				Strs("unacked", remaining).
				Msg("retry bound exhausted, no fallback configured, dropping message")
			return
		}

		metrics.FallbacksInvoked.Inc()
		log.Warn().
			Str("message_id", messageID).
			Int("attempts", attempts).
			Strs("unacked", remaining).
			Msg("retry bound exhausted, invoking fallback")

		go d.invokeFallback(msg, remaining)
		return
	}

	pd.attempts++
	pd.state = stateRetrying
	d.stats.Retries++
	attempt := pd.attempts
	msg := pd.msg
	pd.timer = d.clock.AfterFunc(d.cfg.RetryDelay, func() {
		d.checkDelivery(messageID)
	})
	d.mu.Unlock()

	metrics.RetriesIssued.Inc()

	log.Debug().
		Str("message_id", messageID).
		Str("state", string(stateRetrying)).
		Int("attempt", attempt).
		Strs("unacked", remaining).
		Msg("retrying unacknowledged recipients")

	// Recipients that already acknowledged are not re-sent the message.
	d.sendTo(remaining, msg)
}

func (d *Dispatcher) connectedRecipient(id string) bool {
	for _, rid := range d.transport.RecipientIDs() {
		if rid == id {
			return true
		}
	}
	return false
}

// unacked returns the currently connected recipients that have not yet
// acknowledged pd. Recipients that disconnected since the broadcast no longer
// count against delivery. Caller holds d.mu.
func (d *Dispatcher) unacked(pd *pendingDelivery) []string {
	var remaining []string
	for _, id := range d.transport.RecipientIDs() {
		if _, ok := pd.acked[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// resolve marks pd fully acknowledged and discards it. Caller holds d.mu.
func (d *Dispatcher) resolve(messageID string, pd *pendingDelivery) {
	pd.state = stateAcked
	if pd.timer != nil {
		pd.timer.Stop()
	}
	delete(d.pending, messageID)
	d.stats.Delivered++
	metrics.MessagesDelivered.Inc()
	metrics.PendingInFlight.Dec()
}

func (d *Dispatcher) sendTo(recipients []string, msg *OutboundMessage) {
	for _, id := range recipients {
		if err := d.transport.Send(id, msg); err != nil {
			// Transient: the recipient stays unacked and gets retried.
			log.Warn().
				Err(err).
				Str("recipient_id", id).
				Str("message_id", msg.MessageID).
				Msg("send failed")
		}
	}
}

// invokeFallback runs the injected fallback once, off the dispatcher
// goroutines. Its failure is terminal and logged; the pending entry is
// already gone and is never resurrected. Only called when a fallback is
// configured.
func (d *Dispatcher) invokeFallback(msg *OutboundMessage, recipients []string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.MessageTimeout)
	defer cancel()
	if err := d.fallback.Deliver(ctx, msg, recipients); err != nil {
		log.Error().
			Err(err).
			Str("message_id", msg.MessageID).
			Strs("recipients", recipients).
			Msg("fallback delivery failed")
	}
}

// Run drives the stale-entry reaper until ctx is cancelled. The reaper is a
// safety net independent of the retry bound: if a scheduled check is ever
// lost (process suspension, timer starvation), entries still get evicted
// instead of leaking.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := d.clock.NewTicker(d.cfg.ReapInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", d.cfg.ReapInterval).Msg("stale-entry reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stale-entry reaper stopped")
			return
		case <-ticker.Chan():
			if n := d.reap(); n > 0 {
				log.Warn().Int("evicted", n).Msg("reaped stale pending messages")
			}
		}
	}
}

// reap evicts every pending entry older than the stale age and returns how
// many were removed.
func (d *Dispatcher) reap() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	evicted := 0
	staleAge := d.cfg.staleAge()
	for id, pd := range d.pending {
		if d.clock.Since(pd.firstSent) <= staleAge {
			continue
		}
		if pd.timer != nil {
			pd.timer.Stop()
		}
		delete(d.pending, id)
		d.stats.Reaped++
		evicted++
		metrics.StaleReaped.Inc()
		metrics.PendingInFlight.Dec()
	}
	return evicted
}
