package delta

import (
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"strconv"

	"github.com/despairhw/tourneycast/internal/bracket"
)

// Fingerprint returns a cheap, order-independent digest of everything in the
// snapshot that can affect what a display shows. Callers compare it against
// the previous poll's digest to skip the whole detection pass when nothing
// moved. Equal fingerprints mean no visible change; unequal fingerprints may
// still produce an empty change set.
func Fingerprint(snap *bracket.Snapshot) string {
	parts := make([]string, 0, len(snap.Matches))
	for i := range snap.Matches {
		m := &snap.Matches[i]

		winner := "-"
		if m.WinnerID != nil {
			winner = strconv.FormatInt(*m.WinnerID, 10)
		}
		station := "-"
		if m.StationID != nil {
			station = *m.StationID
		}
		underway := "-"
		if m.UnderwayAt != nil {
			underway = strconv.FormatInt(m.UnderwayAt.UnixNano(), 10)
		}
		order := "-"
		if m.SuggestedPlayOrder != nil {
			order = strconv.Itoa(*m.SuggestedPlayOrder)
		}

		parts = append(parts, fmt.Sprintf("%d:%s:%s:%s:%s:%s", m.ID, m.State, winner, station, underway, order))
	}
	sort.Strings(parts)

	h := fnv.New64a()
	// Tournament identity avoids digest collisions when the displays are
	// pointed at a different tournament with a similar match layout.
	io.WriteString(h, snap.Tournament.Name)
	io.WriteString(h, "|")
	io.WriteString(h, snap.Tournament.State)
	for _, part := range parts {
		io.WriteString(h, "|")
		io.WriteString(h, part)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
