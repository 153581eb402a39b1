package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/school-attendance/internal/attendance"
	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <photo>",
	Short: "Match a photo against a section without marking attendance",
	Long: `Resolve a face photo against the enrolled students of a section and print
the outcome. Nothing is recorded.

Examples:
  # Try a photo against a section
  attendance match face.jpg --section 3f9c...

  # Use a stricter threshold
  attendance match face.jpg --section 3f9c... --threshold 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("section", "", "Section ID to match against (required)")
	matchCmd.Flags().Float64("threshold", 0, "Minimum similarity (overrides MATCH_THRESHOLD)")
	matchCmd.Flags().String("confirm", "", "Resolve a twin conflict in favor of this student ID")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runMatch(cmd *cobra.Command, args []string) error {
	sectionID := mustGetString(cmd, "section")
	confirmID := mustGetString(cmd, "confirm")
	jsonOutput := mustGetBool(cmd, "json")
	threshold, err := similarityFlag(cmd, "threshold")
	if err != nil {
		return err
	}

	if sectionID == "" {
		return errors.New("--section is required")
	}
	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading photo: %w", err)
	}

	cfg := config.Load()
	if threshold > 0 {
		cfg.Matching.Threshold = threshold
	}
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.attendance.Preview(ctx, cliActor, attendance.ScanInput{
		SectionID:          sectionID,
		Image:              image,
		ConfirmedStudentID: confirmID,
	})
	if err != nil {
		return fmt.Errorf("matching failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(res)
	}

	fmt.Printf("%s\n", res.Status)
	fmt.Printf("  Outcome: %s\n", res.Outcome)
	if res.StudentID != "" {
		fmt.Printf("  Student: %s (%s)\n", res.StudentName, res.StudentID)
	}
	fmt.Printf("  Score:   %.4f (threshold %.2f)\n", res.Score, cfg.Matching.Threshold)
	for _, c := range res.TwinCandidates {
		fmt.Printf("  Twin candidate: %s (%s)\n", c.Name, c.ID)
	}
	return nil
}
