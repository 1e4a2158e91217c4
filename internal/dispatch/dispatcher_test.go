package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records sends and serves a mutable recipient list.
type fakeTransport struct {
	mu         sync.Mutex
	recipients []string
	sent       map[string][]*OutboundMessage // recipient -> messages
}

func newFakeTransport(recipients ...string) *fakeTransport {
	return &fakeTransport{
		recipients: recipients,
		sent:       make(map[string][]*OutboundMessage),
	}
}

func (t *fakeTransport) Send(recipientID string, msg *OutboundMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[recipientID] = append(t.sent[recipientID], msg)
	return nil
}

func (t *fakeTransport) RecipientIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.recipients...)
}

func (t *fakeTransport) setRecipients(recipients ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recipients = recipients
}

func (t *fakeTransport) sendCount(recipientID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent[recipientID])
}

// fakeFallback records Deliver invocations.
type fakeFallback struct {
	mu    sync.Mutex
	calls []fallbackCall
}

type fallbackCall struct {
	msg        *OutboundMessage
	recipients []string
}

func (f *fakeFallback) Deliver(_ context.Context, msg *OutboundMessage, recipientIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fallbackCall{msg: msg, recipients: recipientIDs})
	return nil
}

func (f *fakeFallback) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFallback) call(i int) fallbackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newTestDispatcher(transport Transport, fallback Fallback) (*Dispatcher, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	d := New(DefaultConfig(), transport, fallback, clock)
	return d, clock
}

func TestBroadcast_NotConfigured(t *testing.T) {
	d := New(DefaultConfig(), nil, nil, clockwork.NewFakeClock())
	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, id)
}

func TestBroadcast_SendsToAllRecipients(t *testing.T) {
	transport := newFakeTransport("d1", "d2", "d3")
	d, _ := newTestDispatcher(transport, nil)

	id, err := d.Broadcast(EventMatchesUpdate, map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	for _, recipient := range []string{"d1", "d2", "d3"} {
		assert.Equal(t, 1, transport.sendCount(recipient))
	}
	assert.Equal(t, 1, d.Stats().InFlight)
}

func TestBroadcast_SequencesStrictlyIncrease(t *testing.T) {
	transport := newFakeTransport("d1")
	d, _ := newTestDispatcher(transport, nil)

	var last uint64
	for i := 0; i < 50; i++ {
		_, err := d.Broadcast(EventMatchesUpdate, i)
		require.NoError(t, err)
	}

	transport.mu.Lock()
	defer transport.mu.Unlock()
	require.Len(t, transport.sent["d1"], 50)
	for _, msg := range transport.sent["d1"] {
		assert.Greater(t, msg.Sequence, last)
		last = msg.Sequence
	}
}

func TestAcknowledge_AllAckedResolvesImmediately(t *testing.T) {
	transport := newFakeTransport("d1", "d2")
	d, _ := newTestDispatcher(transport, nil)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)

	d.Acknowledge("d1", id, 1)
	assert.Equal(t, 1, d.Stats().InFlight)

	d.Acknowledge("d2", id, 1)
	stats := d.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, uint64(1), stats.Delivered)

	// The scheduled check finds nothing and neither resends nor retries.
	d.checkDelivery(id)
	assert.Equal(t, 1, transport.sendCount("d1"))
	assert.Equal(t, 1, transport.sendCount("d2"))
	assert.Zero(t, d.Stats().Retries)
}

func TestAcknowledge_UnknownMessageIgnored(t *testing.T) {
	transport := newFakeTransport("d1")
	d, _ := newTestDispatcher(transport, nil)

	// Must not panic or fault; late and duplicate acks are normal traffic.
	d.Acknowledge("d1", "no-such-message", 42)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)
	d.Acknowledge("d1", id, 1)
	d.Acknowledge("d1", id, 1) // duplicate
	assert.Equal(t, uint64(1), d.Stats().Delivered)
}

func TestAcknowledge_UnknownRecipientIgnored(t *testing.T) {
	transport := newFakeTransport("d1", "d2")
	d, _ := newTestDispatcher(transport, nil)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)

	// An ack from a recipient the transport does not know must not count
	// toward delivery or show up in the ack counters.
	d.Acknowledge("ghost", id, 1)
	stats := d.Stats()
	assert.Zero(t, stats.AcksReceived)
	assert.Equal(t, 1, stats.InFlight)

	d.Acknowledge("d1", id, 1)
	d.Acknowledge("d2", id, 1)
	assert.Equal(t, uint64(1), d.Stats().Delivered)
}

func TestCheckDelivery_RetriesOnlyUnacked(t *testing.T) {
	transport := newFakeTransport("d1", "d2")
	d, _ := newTestDispatcher(transport, nil)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)
	d.Acknowledge("d1", id, 1)

	d.checkDelivery(id)

	assert.Equal(t, 1, transport.sendCount("d1"))
	assert.Equal(t, 2, transport.sendCount("d2"))
	assert.Equal(t, uint64(1), d.Stats().Retries)
}

func TestCheckDelivery_FallbackAfterRetryBound(t *testing.T) {
	transport := newFakeTransport("d1", "d2")
	fallback := &fakeFallback{}
	d, _ := newTestDispatcher(transport, fallback)

	id, err := d.Broadcast(EventMatchesUpdate, "the-payload")
	require.NoError(t, err)
	d.Acknowledge("d1", id, 1)

	// Attempts 2 and 3.
	d.checkDelivery(id)
	d.checkDelivery(id)
	assert.Equal(t, 3, transport.sendCount("d2"))
	assert.Zero(t, fallback.callCount())

	// Bound exhausted: fallback fires once, with the unacked recipient only.
	d.checkDelivery(id)
	require.Eventually(t, func() bool { return fallback.callCount() == 1 }, time.Second, 5*time.Millisecond)

	call := fallback.call(0)
	assert.Equal(t, []string{"d2"}, call.recipients)
	assert.Equal(t, id, call.msg.MessageID)
	assert.Equal(t, "the-payload", call.msg.Payload)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(1), stats.Fallbacks)
	assert.Equal(t, 0, stats.InFlight)

	// Terminal: no resurrection on further checks.
	d.checkDelivery(id)
	assert.Equal(t, 3, transport.sendCount("d2"))
	assert.Equal(t, 1, fallback.callCount())
}

func TestCheckDelivery_NoFallbackConfigured(t *testing.T) {
	transport := newFakeTransport("d1")
	d, _ := newTestDispatcher(transport, nil)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)

	// Exhaust the retry bound with no fallback wired: the failure is
	// terminal, but no fallback invocation is counted.
	d.checkDelivery(id)
	d.checkDelivery(id)
	d.checkDelivery(id)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Zero(t, stats.Fallbacks)
	assert.Equal(t, 0, stats.InFlight)
}

func TestCheckDelivery_DisconnectedRecipientDoesNotBlock(t *testing.T) {
	transport := newFakeTransport("d1", "d2")
	fallback := &fakeFallback{}
	d, _ := newTestDispatcher(transport, fallback)

	id, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)
	d.Acknowledge("d1", id, 1)

	// d2 vanishes; only connected recipients count against delivery.
	transport.setRecipients("d1")
	d.checkDelivery(id)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, 0, stats.InFlight)
	assert.Zero(t, fallback.callCount())
}

func TestReap_EvictsOnlyStaleEntries(t *testing.T) {
	transport := newFakeTransport("d1")
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	// Keep the retry timer out of the advance window; this test drives the
	// reaper only.
	cfg.RetryDelay = 10 * time.Minute
	d := New(cfg, transport, nil, clock)

	oldID, err := d.Broadcast(EventMatchesUpdate, "old")
	require.NoError(t, err)

	clock.Advance(cfg.staleAge() + time.Second)

	newID, err := d.Broadcast(EventMatchesUpdate, "new")
	require.NoError(t, err)

	assert.Equal(t, 1, d.reap())

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Reaped)
	assert.Equal(t, 1, stats.InFlight)

	// The stale entry is gone, the fresh one still resolves normally.
	d.Acknowledge("d1", oldID, 1) // late ack for reaped entry: ignored
	d.Acknowledge("d1", newID, 2)
	assert.Equal(t, uint64(1), d.Stats().Delivered)
}

func TestRun_ReaperSweepsOnTicker(t *testing.T) {
	transport := newFakeTransport("d1")
	clock := clockwork.NewFakeClock()
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Minute
	d := New(cfg, transport, nil, clock)

	_, err := d.Broadcast(EventMatchesUpdate, "payload")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// Advance past the sweep period until the ticker has fired and the loop
	// has evicted the stale entry.
	require.Eventually(t, func() bool {
		clock.Advance(cfg.ReapInterval + time.Second)
		return d.Stats().Reaped == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStats_Snapshot(t *testing.T) {
	transport := newFakeTransport("d1")
	d, _ := newTestDispatcher(transport, nil)

	id1, _ := d.Broadcast(EventMatchesUpdate, "a")
	id2, _ := d.Broadcast(EventTournamentReset, "b")
	d.Acknowledge("d1", id1, 1)
	d.checkDelivery(id2)

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.AcksReceived)
	assert.Equal(t, uint64(1), stats.Retries)
	assert.Equal(t, 1, stats.InFlight)
}
