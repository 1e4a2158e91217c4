package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/despairhw/tourneycast/internal/bracket"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := snapshot(
		bracket.Match{ID: 100, State: "open"},
		bracket.Match{ID: 200, State: "pending"},
		bracket.Match{ID: 300, State: "complete", WinnerID: int64Ptr(7)},
	)
	b := snapshot(
		bracket.Match{ID: 300, State: "complete", WinnerID: int64Ptr(7)},
		bracket.Match{ID: 100, State: "open"},
		bracket.Match{ID: 200, State: "pending"},
	)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_SensitiveToVisibleFields(t *testing.T) {
	base := snapshot(bracket.Match{ID: 100, State: "open"})

	winner := snapshot(bracket.Match{ID: 100, State: "open", WinnerID: int64Ptr(7)})
	assert.NotEqual(t, Fingerprint(base), Fingerprint(winner))

	state := snapshot(bracket.Match{ID: 100, State: "complete"})
	assert.NotEqual(t, Fingerprint(base), Fingerprint(state))

	station := snapshot(bracket.Match{ID: 100, State: "open", StationID: strPtr("TV 1")})
	assert.NotEqual(t, Fingerprint(base), Fingerprint(station))
}

func TestFingerprint_DistinguishesTournaments(t *testing.T) {
	a := snapshot(bracket.Match{ID: 100, State: "open"})
	b := snapshot(bracket.Match{ID: 100, State: "open"})
	b.Tournament.Name = "Saturday Night Kart"
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_Deterministic(t *testing.T) {
	snap := snapshot(
		bracket.Match{ID: 100, State: "open", SuggestedPlayOrder: intPtr(1)},
		bracket.Match{ID: 200, State: "open", SuggestedPlayOrder: intPtr(2)},
	)
	assert.Equal(t, Fingerprint(snap), Fingerprint(snap))
}
