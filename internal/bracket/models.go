package bracket

import "time"

// Tournament is the hosting API's record of one bracket.
type Tournament struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	URL           string `json:"url"`
	GameName      string `json:"game_name"`
	ProgressMeter int    `json:"progress_meter"`
}

// Match is the hosting API's record of one bracket match. WinnerID and
// StationID are null until a winner is reported / a station is assigned.
type Match struct {
	ID                 int64      `json:"id"`
	State              string     `json:"state"`
	Round              int        `json:"round"`
	Player1ID          *int64     `json:"player1_id"`
	Player2ID          *int64     `json:"player2_id"`
	WinnerID           *int64     `json:"winner_id"`
	StationID          *string    `json:"station_id"`
	SuggestedPlayOrder *int       `json:"suggested_play_order"`
	UnderwayAt         *time.Time `json:"underway_at"`
}

// Participant is the hosting API's record of one entrant.
type Participant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Seed      int    `json:"seed"`
	FinalRank *int   `json:"final_rank"`
}

// Snapshot is one point-in-time read of a tournament and everything the
// displays need from it.
type Snapshot struct {
	Tournament   Tournament
	Matches      []Match
	Participants []Participant

	names map[int64]string
}

// ParticipantName resolves a participant id to a display name, or "" when the
// id is unknown (e.g. a bye).
func (s *Snapshot) ParticipantName(id *int64) string {
	if id == nil {
		return ""
	}
	if s.names == nil {
		s.names = make(map[int64]string, len(s.Participants))
		for _, p := range s.Participants {
			s.names[p.ID] = p.Name
		}
	}
	return s.names[*id]
}
