package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/constants"
	"github.com/kozaktomas/school-attendance/internal/roster"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <dir>",
	Short: "Bulk-enroll face photos from a directory",
	Long: `Enroll face photos for existing students from a directory tree.

Every subdirectory is named after a student ID and holds that student's
photos (jpg, jpeg, png or webp). At most five photos per student are used.
A student is skipped when any of their photos fails extraction.

Examples:
  # Enroll photos
  attendance enroll ./photos

  # List what would be enrolled
  attendance enroll ./photos --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("dry-run", false, "List students and photos without enrolling")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// enrollBatch is the photos of one student
type enrollBatch struct {
	StudentID string
	Files     []string
}

// EnrollStudentResult is the outcome for one student directory
type EnrollStudentResult struct {
	StudentID          string `json:"student_id"`
	Name               string `json:"name,omitempty"`
	Photos             int    `json:"photos"`
	EmbeddingsCount    int    `json:"embeddings_count"`
	PossibleDuplicates int    `json:"possible_duplicates"`
	Error              string `json:"error,omitempty"`
}

// EnrollCommandResult summarizes a bulk enrollment
type EnrollCommandResult struct {
	Students      []EnrollStudentResult `json:"students"`
	Enrolled      int                   `json:"enrolled"`
	Failed        int                   `json:"failed"`
	DryRun        bool                  `json:"dry_run"`
	DurationMs    int64                 `json:"duration_ms"`
	DurationHuman string                `json:"duration_human,omitempty"`
}

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// collectEnrollBatches reads <dir>/<student_id>/* in name order.
func collectEnrollBatches(dir string) ([]enrollBatch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var batches []enrollBatch
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		batch := enrollBatch{StudentID: entry.Name()}
		for _, f := range files {
			if f.IsDir() || !photoExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			batch.Files = append(batch.Files, filepath.Join(dir, entry.Name(), f.Name()))
		}
		if len(batch.Files) == 0 {
			continue
		}
		sort.Strings(batch.Files)
		if len(batch.Files) > constants.MaxEnrollmentImages {
			batch.Files = batch.Files[:constants.MaxEnrollmentImages]
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func readPhotos(files []string) ([][]byte, error) {
	images := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		images = append(images, data)
	}
	return images, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	dryRun := mustGetBool(cmd, "dry-run")
	jsonOutput := mustGetBool(cmd, "json")
	startTime := time.Now()

	batches, err := collectEnrollBatches(args[0])
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		return errors.New("no student directories with photos found")
	}

	result := EnrollCommandResult{DryRun: dryRun, Students: make([]EnrollStudentResult, 0, len(batches))}
	if dryRun {
		for _, b := range batches {
			result.Students = append(result.Students, EnrollStudentResult{StudentID: b.StudentID, Photos: len(b.Files)})
		}
		result.DurationMs = time.Since(startTime).Milliseconds()
		if jsonOutput {
			return outputJSON(result)
		}
		for _, s := range result.Students {
			fmt.Printf("  %s: %d photos\n", s.StudentID, s.Photos)
		}
		fmt.Printf("%d students would be enrolled\n", len(result.Students))
		return nil
	}

	cfg := config.Load()
	if err := connectDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(batches),
			progressbar.OptionSetDescription("Enrolling students"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("students"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	for _, b := range batches {
		res := enrollOne(ctx, a, b)
		if res.Error != "" {
			result.Failed++
		} else {
			result.Enrolled++
		}
		result.Students = append(result.Students, res)
		if bar != nil {
			bar.Add(1)
		}
	}

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = duration.Round(time.Millisecond).String()

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Println()
	for _, s := range result.Students {
		switch {
		case s.Error != "":
			fmt.Printf("  %s: FAILED %s\n", s.StudentID, s.Error)
		case s.PossibleDuplicates > 0:
			fmt.Printf("  %s (%s): %d embeddings, %d possible duplicates\n", s.StudentID, s.Name, s.EmbeddingsCount, s.PossibleDuplicates)
		}
	}
	fmt.Printf("Enrolled %d students, %d failed in %s\n", result.Enrolled, result.Failed, result.DurationHuman)
	return nil
}

func enrollOne(ctx context.Context, a *app, b enrollBatch) EnrollStudentResult {
	res := EnrollStudentResult{StudentID: b.StudentID, Photos: len(b.Files)}
	images, err := readPhotos(b.Files)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	out, err := a.roster.Enroll(ctx, cliActor, roster.EnrollInput{StudentID: b.StudentID, Images: images})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Name = out.Student.Name
	res.EmbeddingsCount = out.EmbeddingsCount
	res.PossibleDuplicates = len(out.PossibleDuplicates)
	return res
}
