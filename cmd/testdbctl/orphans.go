package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachmate/coachmate-api/internal/config"
	"github.com/coachmate/coachmate-api/internal/platform/postgres"
	"github.com/coachmate/coachmate-api/internal/testdb"
)

var (
	orphansOlderThan time.Duration
	orphansJSON      bool
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Find and drop leaked test databases",
	Long: `Scan the database server for test databases left behind by crashed
runs.

Databases created by the provisioner embed their creation time in
their name, so age is judged without connecting to each one. Databases
whose names do not follow the provisioner's shape are never touched.`,
}

var orphansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leaked test databases",
	RunE:  runOrphansList,
}

var orphansDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop leaked test databases",
	RunE:  runOrphansDrop,
}

func init() {
	orphansCmd.PersistentFlags().
		DurationVar(&orphansOlderThan, "older-than", time.Hour, "Only consider databases older than this")
	orphansListCmd.Flags().BoolVar(&orphansJSON, "json", false, "Output as JSON")
	orphansCmd.AddCommand(orphansListCmd)
	orphansCmd.AddCommand(orphansDropCmd)
	rootCmd.AddCommand(orphansCmd)
}

// orphanRecord is one leaked database, with its age at scan time.
type orphanRecord struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"age"`
}

func runOrphansList(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	admin, err := openAdmin(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	orphans, err := findOrphans(ctx, admin, orphansOlderThan)
	if err != nil {
		return err
	}

	if orphansJSON {
		out, err := json.MarshalIndent(orphans, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal orphan list: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(orphans) == 0 {
		fmt.Println("No orphaned test databases found.")
		return nil
	}

	for _, o := range orphans {
		fmt.Printf("%s\t(age %s)\n", o.Name, o.Age)
	}
	return nil
}

func runOrphansDrop(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	admin, err := openAdmin(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close() }()

	orphans, err := findOrphans(ctx, admin, orphansOlderThan)
	if err != nil {
		return err
	}

	if len(orphans) == 0 {
		fmt.Println("No orphaned test databases found.")
		return nil
	}

	dropped := 0
	for _, o := range orphans {
		if err := admin.DropDatabase(ctx, o.Name); err != nil {
			fmt.Printf("  warning: failed to drop %s: %v\n", o.Name, err)
			continue
		}
		fmt.Printf("Dropped %s (age %s)\n", o.Name, o.Age)
		dropped++
	}

	fmt.Printf("Dropped %d of %d orphaned test databases.\n", dropped, len(orphans))
	return nil
}

// openAdmin connects to the bootstrap database of the configured server.
func openAdmin(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Admin, error) {
	baseURL, err := testdb.ExtractBaseURL(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	admin, err := postgres.OpenAdmin(ctx, baseURL, cfg.Database.BootstrapName, cfg.Pool.ConnectTimeout, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database server: %w", err)
	}
	return admin, nil
}

// findOrphans lists provisioner-shaped databases on the server and keeps
// the ones older than the cutoff.
func findOrphans(ctx context.Context, admin *postgres.Admin, olderThan time.Duration) ([]orphanRecord, error) {
	names, err := admin.ListDatabases(ctx, `test\_%`)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return filterOrphans(names, olderThan, time.Now().UTC()), nil
}

// filterOrphans keeps the names whose embedded creation stamp is older
// than the cutoff. Names without a readable stamp belong to other tooling
// and are skipped.
func filterOrphans(names []string, olderThan time.Duration, now time.Time) []orphanRecord {
	orphans := make([]orphanRecord, 0, len(names))
	for _, name := range names {
		created, ok := testdb.NameTimestamp(name)
		if !ok {
			continue
		}
		age := now.Sub(created)
		if age < olderThan {
			continue
		}
		orphans = append(orphans, orphanRecord{
			Name:      name,
			CreatedAt: created,
			Age:       age.Round(time.Second).String(),
		})
	}
	return orphans
}
