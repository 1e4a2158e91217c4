package board

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"
)

// slugPattern accepts the URL forms operators paste: full challonge links
// with or without scheme, subdomain links, or a bare slug.
var (
	slugPattern = regexp.MustCompile(`(?:https?://)?(?:\w+\.)?challonge\.com/([A-Za-z0-9_]+)/?$`)
	bareSlug    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ExtractSlug pulls the tournament slug out of a pasted URL. A string with
// no challonge host is treated as a bare slug if it looks like one.
func ExtractSlug(raw string) string {
	if m := slugPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if bareSlug.MatchString(raw) {
		return raw
	}
	return ""
}

type updateRequest struct {
	TournamentURL string `json:"tournament_url"`
	Game          string `json:"game"`
}

type updateResponse struct {
	Status     string `json:"status"`
	Tournament string `json:"tournament"`
	Game       string `json:"game,omitempty"`
}

// HandleTournamentUpdate serves POST /api/tournament/update, the endpoint the
// operator setup tool hits to point every display at tonight's bracket.
func (s *Service) HandleTournamentUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	slug := ExtractSlug(req.TournamentURL)
	if slug == "" {
		http.Error(w, "unrecognized tournament URL", http.StatusBadRequest)
		return
	}

	s.SetTournament(slug, req.Game)

	log.Info().
		Str("slug", slug).
		Str("game", req.Game).
		Str("remote", r.RemoteAddr).
		Msg("tournament update accepted")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updateResponse{Status: "ok", Tournament: slug, Game: req.Game})
}
