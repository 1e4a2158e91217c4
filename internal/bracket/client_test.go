package bracket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tournaments/fns25.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"tournament":{"id":1,"name":"Friday Night Smash","state":"underway","url":"fns25","game_name":"Super Smash Bros Ultimate","progress_meter":40}}`))
	})
	mux.HandleFunc("/tournaments/fns25/matches.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"match":{"id":100,"state":"open","round":1,"player1_id":7,"player2_id":8,"station_id":"TV 1","suggested_play_order":1,"underway_at":"2025-06-07T20:30:00Z"}},
			{"match":{"id":200,"state":"complete","round":1,"player1_id":9,"player2_id":10,"winner_id":9}}
		]`))
	})
	mux.HandleFunc("/tournaments/fns25/participants.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"participant":{"id":7,"name":"Alice","seed":1}},
			{"participant":{"id":8,"name":"Bob","seed":2,"final_rank":2}}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Fetch(t *testing.T) {
	server := newAPIServer(t)
	client := NewClient(server.URL, "test-key")

	snap, err := client.Fetch(context.Background(), "fns25")
	require.NoError(t, err)

	assert.Equal(t, "Friday Night Smash", snap.Tournament.Name)
	assert.Equal(t, "underway", snap.Tournament.State)

	require.Len(t, snap.Matches, 2)
	open := snap.Matches[0]
	assert.Equal(t, int64(100), open.ID)
	require.NotNil(t, open.StationID)
	assert.Equal(t, "TV 1", *open.StationID)
	require.NotNil(t, open.UnderwayAt)

	done := snap.Matches[1]
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, int64(9), *done.WinnerID)
	assert.Nil(t, done.StationID)

	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "Alice", snap.ParticipantName(open.Player1ID))
	assert.Equal(t, "Bob", snap.ParticipantName(open.Player2ID))
	assert.Equal(t, "", snap.ParticipantName(nil))
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such tournament", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.GetTournament(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_ContextCancelled(t *testing.T) {
	server := newAPIServer(t)
	client := NewClient(server.URL, "test-key")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, "fns25")
	assert.Error(t, err)
}
