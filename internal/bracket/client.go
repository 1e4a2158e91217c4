package bracket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a read-only client for the external bracket-hosting API. The
// displays never write through it; all tournament edits happen in the hosting
// service's own admin UI.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a client for the given API base URL, e.g.
// "https://api.challonge.com/v1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	u := c.baseURL + endpoint
	if c.apiKey != "" {
		u += "?api_key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status code: %d, response: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// The hosting API wraps every record in a single-key envelope.
type tournamentEnvelope struct {
	Tournament Tournament `json:"tournament"`
}

type matchEnvelope struct {
	Match Match `json:"match"`
}

type participantEnvelope struct {
	Participant Participant `json:"participant"`
}

// GetTournament fetches the tournament record for a slug.
func (c *Client) GetTournament(ctx context.Context, slug string) (*Tournament, error) {
	body, err := c.get(ctx, fmt.Sprintf("/tournaments/%s.json", slug))
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament %s: %w", slug, err)
	}

	var env tournamentEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse tournament response: %w", err)
	}
	return &env.Tournament, nil
}

// GetMatches fetches all matches for a tournament slug.
func (c *Client) GetMatches(ctx context.Context, slug string) ([]Match, error) {
	body, err := c.get(ctx, fmt.Sprintf("/tournaments/%s/matches.json", slug))
	if err != nil {
		return nil, fmt.Errorf("failed to get matches for %s: %w", slug, err)
	}

	var envs []matchEnvelope
	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, fmt.Errorf("failed to parse matches response: %w", err)
	}

	matches := make([]Match, 0, len(envs))
	for _, env := range envs {
		matches = append(matches, env.Match)
	}
	return matches, nil
}

// GetParticipants fetches all participants for a tournament slug.
func (c *Client) GetParticipants(ctx context.Context, slug string) ([]Participant, error) {
	body, err := c.get(ctx, fmt.Sprintf("/tournaments/%s/participants.json", slug))
	if err != nil {
		return nil, fmt.Errorf("failed to get participants for %s: %w", slug, err)
	}

	var envs []participantEnvelope
	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, fmt.Errorf("failed to parse participants response: %w", err)
	}

	participants := make([]Participant, 0, len(envs))
	for _, env := range envs {
		participants = append(participants, env.Participant)
	}
	return participants, nil
}

// Fetch reads a full snapshot of one tournament.
func (c *Client) Fetch(ctx context.Context, slug string) (*Snapshot, error) {
	tournament, err := c.GetTournament(ctx, slug)
	if err != nil {
		return nil, err
	}

	matches, err := c.GetMatches(ctx, slug)
	if err != nil {
		return nil, err
	}

	participants, err := c.GetParticipants(ctx, slug)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Tournament:   *tournament,
		Matches:      matches,
		Participants: participants,
	}, nil
}
