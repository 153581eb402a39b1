package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the seed accounts",
	Long: `Create the government admin, the seed school and its admin from the
SEED_* environment variables. Existing accounts are kept; their passwords are
updated when a SEED_*_PASSWORD variable is set.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Seed.GovAdminEmail == "" && cfg.Seed.SchoolName == "" {
		fmt.Println("Nothing to seed: set SEED_GOV_ADMIN_EMAIL or SEED_SCHOOL_NAME")
		return nil
	}
	if err := a.accounts.Seed(ctx, cfg.Seed); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	fmt.Println("Seeding complete")
	return nil
}
