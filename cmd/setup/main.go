package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/despairhw/tourneycast/internal/board"
)

// games the venue runs regularly; "custom" covers everything else.
var games = map[string]string{
	"1": "Super Smash Bros Ultimate",
	"2": "Mario Kart Wii",
	"3": "Custom Game",
}

var (
	flagHosts []string
	flagGame  string
	flagURL   string
)

var rootCmd = &cobra.Command{
	Use:   "tourneycast-setup",
	Short: "Point the venue displays at tonight's tournament",
	Long: `Sends the selected tournament to every display server so the bracket
and now-playing screens switch over. Prompts for anything not given as a flag.`,
	RunE: run,
}

func main() {
	rootCmd.Flags().StringSliceVar(&flagHosts, "host", []string{"http://localhost:2052"}, "display server base URL (repeatable)")
	rootCmd.Flags().StringVar(&flagGame, "game", "", "game name (prompted if empty)")
	rootCmd.Flags().StringVar(&flagURL, "url", "", "challonge tournament URL or slug (prompted if empty)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	game := flagGame
	if game == "" {
		game = promptGame(reader)
	}

	rawURL := flagURL
	if rawURL == "" {
		rawURL = promptURL(reader)
	}

	slug := board.ExtractSlug(strings.TrimSpace(rawURL))
	if slug == "" {
		return fmt.Errorf("could not extract a tournament slug from %q", rawURL)
	}

	body, err := json.Marshal(map[string]string{
		"tournament_url": rawURL,
		"game":           game,
	})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := 0
	for _, host := range flagHosts {
		endpoint := strings.TrimRight(host, "/") + "/api/tournament/update"
		resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", host, err)
			failed++
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "✗ %s: status %d\n", host, resp.StatusCode)
			failed++
			continue
		}
		fmt.Printf("✓ %s now showing %s\n", host, slug)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d display hosts failed to update", failed, len(flagHosts))
	}
	return nil
}

func promptGame(reader *bufio.Reader) string {
	fmt.Println("Select the game for tonight's tournament:")
	fmt.Println("  1. Super Smash Bros Ultimate (SSBU)")
	fmt.Println("  2. Mario Kart Wii")
	fmt.Println("  3. Custom Game")

	for {
		fmt.Print("Enter your choice (1-3): ")
		line, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(line)
		if name, ok := games[choice]; ok {
			if choice != "3" {
				return name
			}
			fmt.Print("Enter the game name: ")
			custom, _ := reader.ReadString('\n')
			if custom = strings.TrimSpace(custom); custom != "" {
				return custom
			}
			return name
		}
		fmt.Println("Invalid choice. Please enter 1, 2, or 3.")
	}
}

func promptURL(reader *bufio.Reader) string {
	fmt.Println("Enter the Challonge tournament URL:")
	fmt.Println("Example: https://challonge.com/y8ltomds")

	for {
		fmt.Print("Challonge URL: ")
		line, _ := reader.ReadString('\n')
		if url := strings.TrimSpace(line); url != "" {
			return url
		}
		fmt.Println("URL cannot be empty. Please try again.")
	}
}
