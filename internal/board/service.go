package board

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/despairhw/tourneycast/internal/bracket"
	"github.com/despairhw/tourneycast/internal/delta"
	"github.com/despairhw/tourneycast/internal/dispatch"
	"github.com/despairhw/tourneycast/internal/display"
)

// SnapshotFetcher is the read-only slice of the bracket client the board
// loop needs.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, slug string) (*bracket.Snapshot, error)
}

// Broadcaster is the slice of the dispatcher the board loop needs.
type Broadcaster interface {
	Broadcast(event dispatch.EventType, payload any) (string, error)
}

// Service is the hosting loop that connects the bracket API to the displays:
// every poll it fetches a snapshot, short-circuits on an unchanged
// fingerprint, builds a change set against the previously committed display
// state, broadcasts when something visible moved, and commits.
type Service struct {
	fetcher      SnapshotFetcher
	detector     *delta.Detector
	broadcaster  Broadcaster
	clock        clockwork.Clock
	pollInterval time.Duration

	// All mutable loop state is confined to the Run goroutine except slug
	// and game, which the admin endpoint swaps from request goroutines.
	targetCh chan target

	slug            string
	game            string
	prev            *display.DisplayState
	lastFingerprint string
	forceFull       bool
	podiumAnnounced bool

	stations []string
}

type target struct {
	slug string
	game string
}

// New creates the board service. stations and queueLen configure the
// detector; pollInterval drives the loop.
func New(fetcher SnapshotFetcher, broadcaster Broadcaster, clock clockwork.Clock, stations []string, queueLen int, pollInterval time.Duration) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		fetcher:      fetcher,
		detector:     delta.NewDetector(stations, queueLen),
		broadcaster:  broadcaster,
		clock:        clock,
		pollInterval: pollInterval,
		targetCh:     make(chan target, 4),
		prev:         display.NewDisplayState(stations),
		stations:     stations,
	}
}

// SetTournament points the displays at a different tournament. The next poll
// does a forced full push so every display redraws even if the new bracket
// happens to fingerprint-match the old one.
func (s *Service) SetTournament(slug, game string) {
	select {
	case s.targetCh <- target{slug: slug, game: game}:
	default:
		log.Warn().Str("slug", slug).Msg("tournament switch queue full, dropping request")
	}
}

// Run drives the poll loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.pollInterval).Msg("board poll loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("board poll loop stopped")
			return
		case t := <-s.targetCh:
			s.switchTournament(t)
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Service) switchTournament(t target) {
	s.slug = t.slug
	s.game = t.game
	s.prev = display.NewDisplayState(s.stations)
	s.lastFingerprint = ""
	s.forceFull = true
	s.podiumAnnounced = false

	log.Info().
		Str("slug", t.slug).
		Str("game", t.game).
		Msg("switched tournament")

	if _, err := s.broadcaster.Broadcast(dispatch.EventTournamentReset, map[string]string{
		"tournament": t.slug,
		"game":       t.game,
	}); err != nil {
		log.Error().Err(err).Msg("failed to broadcast tournament reset")
	}
}

// tick runs one poll cycle. Fetch or broadcast problems are logged and the
// loop moves on; display sync is best-effort and must never stall the host.
func (s *Service) tick(ctx context.Context) {
	if s.slug == "" {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
	snap, err := s.fetcher.Fetch(fetchCtx, s.slug)
	cancel()
	if err != nil {
		log.Error().Err(err).Str("slug", s.slug).Msg("bracket poll failed")
		return
	}

	fp := delta.Fingerprint(snap)
	if fp == s.lastFingerprint && !s.forceFull {
		return
	}

	cs, next := s.detector.BuildChangeSet(s.prev, snap)
	// Commit before deciding whether to broadcast, so the next pass never
	// diffs against stale data.
	s.prev.Commit(next)
	s.lastFingerprint = fp

	if cs.Type != delta.ChangeSetDelta && !s.forceFull {
		return
	}

	if _, err := s.broadcaster.Broadcast(dispatch.EventMatchesUpdate, cs.Payload); err != nil {
		log.Error().Err(err).Msg("failed to broadcast matches update")
		return
	}
	s.forceFull = false

	if cs.Payload.PodiumComplete && !s.podiumAnnounced {
		s.podiumAnnounced = true
		if _, err := s.broadcaster.Broadcast(dispatch.EventStandingsComplete, cs.Payload); err != nil {
			log.Error().Err(err).Msg("failed to broadcast standings complete")
		}
	}

	log.Info().
		Str("slug", s.slug).
		Int("slot_changes", len(cs.Slots)).
		Bool("queue_changed", cs.Queue != nil).
		Msg("display update broadcast")
}
