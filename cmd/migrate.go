package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded SQL migrations that have not been applied yet.

Examples:
  # Apply pending migrations
  attendance migrate

  # Only list applied and pending migrations
  attendance migrate --status`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("status", false, "List migrations without applying them")
	migrateCmd.Flags().Bool("json", false, "Output as JSON")
}

// MigrateResult lists migrations by state
type MigrateResult struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
	Ran     []string `json:"ran"`
}

func runMigrate(cmd *cobra.Command, args []string) error {
	statusOnly := mustGetBool(cmd, "status")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	result := MigrateResult{Ran: []string{}}

	if !statusOnly {
		ran, err := pool.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migration failed after %d files: %w", len(ran), err)
		}
		if ran != nil {
			result.Ran = ran
		}
	}

	if result.Pending, err = pool.PendingMigrations(ctx); err != nil {
		return err
	}
	if result.Applied, err = pool.MigrationsApplied(ctx); err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(result)
	}

	for _, v := range result.Applied {
		fmt.Printf("  applied  %s\n", v)
	}
	for _, v := range result.Pending {
		fmt.Printf("  pending  %s\n", v)
	}
	if statusOnly {
		fmt.Printf("%d applied, %d pending\n", len(result.Applied), len(result.Pending))
	} else {
		fmt.Printf("Applied %d new migrations\n", len(result.Ran))
	}
	return nil
}
