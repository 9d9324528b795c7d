package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachmate/coachmate-api/internal/testdb"
)

var (
	statsJSON bool
	statsAddr string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show connection pool statistics",
	Long: `Fetch pool statistics from a running provisioner's ops API.

Use --json for machine-readable output.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output as JSON")
	statsCmd.Flags().
		StringVar(&statsAddr, "addr", "", "Ops API address (defaults to ops.addr from configuration)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	addr := statsAddr
	if addr == "" {
		addr = cfg.Ops.Addr
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/stats", addr))
	if err != nil {
		return fmt.Errorf("failed to reach ops API at %s: %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ops API returned status %d", resp.StatusCode)
	}

	var stats testdb.PoolStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("failed to decode stats response: %w", err)
	}

	if statsJSON {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal stats: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Print(formatStats(stats))
	return nil
}

// formatStats renders pool statistics for humans.
func formatStats(stats testdb.PoolStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connections: %d total, %d active\n",
		stats.TotalConnections, stats.ActiveConnections)
	fmt.Fprintf(&b, "Checkouts:   %d total, %.1f average per connection\n",
		stats.TotalUseCount, stats.AverageUseCount)
	if stats.OldestConnection.IsZero() {
		b.WriteString("Oldest:      none (pool is empty)\n")
	} else {
		fmt.Fprintf(&b, "Oldest:      created %s\n",
			stats.OldestConnection.UTC().Format(time.RFC3339))
	}
	return b.String()
}
