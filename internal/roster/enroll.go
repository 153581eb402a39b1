package roster

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/constants"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"golang.org/x/sync/errgroup"
)

// EnrollOptions tunes enrollment.
type EnrollOptions struct {
	MinImages          int
	MaxImages          int
	Timeout            time.Duration // per image
	DuplicateThreshold float64
}

// EnrollOptionsFromConfig reads enrollment options from the loaded configuration.
func EnrollOptionsFromConfig(cfg *config.Config) EnrollOptions {
	return EnrollOptions{
		MinImages:          cfg.School.Enrollment.MinImages,
		MaxImages:          cfg.School.Enrollment.MaxImages,
		Timeout:            cfg.Embedding.Timeout,
		DuplicateThreshold: cfg.Matching.DuplicateThreshold,
	}
}

// Enroller extracts embeddings from enrollment photos and stores them.
type Enroller struct {
	provider embedding.Provider
	index    *database.FaceIndex
	opts     EnrollOptions
}

// NewEnroller creates an enroller. index may be nil, which disables duplicate detection.
func NewEnroller(provider embedding.Provider, index *database.FaceIndex, opts EnrollOptions) *Enroller {
	if opts.MinImages <= 0 {
		opts.MinImages = constants.MinEnrollmentImages
	}
	if opts.MaxImages <= 0 {
		opts.MaxImages = constants.MaxEnrollmentImages
	}
	if opts.DuplicateThreshold <= 0 {
		opts.DuplicateThreshold = constants.DefaultDuplicateThreshold
	}
	return &Enroller{provider: provider, index: index, opts: opts}
}

// EnrollInput is an enrollment request. When StudentID is set the photos are
// added to that student and the StudentInput fields are ignored.
type EnrollInput struct {
	StudentInput
	StudentID string
	Images    [][]byte
}

// EnrollResult is the stored student with duplicate warnings.
type EnrollResult struct {
	Student            *database.Student  `json:"student"`
	EmbeddingsCount    int                `json:"embeddings_count"`
	PossibleDuplicates []database.FaceHit `json:"possible_duplicates"`
}

// ImageError reports which photo failed extraction.
type ImageError struct {
	Index int // 1-based
	Err   error
}

func (e *ImageError) Error() string { return fmt.Sprintf("image %d: %v", e.Index, e.Err) }
func (e *ImageError) Unwrap() error { return e.Err }

// Enroll extracts one embedding per photo and stores them for a new or
// existing student. Nothing is written when any photo fails.
func (s *Service) Enroll(ctx context.Context, actor *database.User, in EnrollInput) (*EnrollResult, error) {
	if s.enroller == nil {
		return nil, fmt.Errorf("enrollment: %w", embedding.ErrModelUnavailable)
	}
	e := s.enroller
	if n := len(in.Images); n < e.opts.MinImages || n > e.opts.MaxImages {
		return nil, &accounts.ValidationError{
			Message: fmt.Sprintf("Provide between %d and %d images", e.opts.MinImages, e.opts.MaxImages),
		}
	}

	var (
		student *database.Student
		section *database.Section
		err     error
	)
	if in.StudentID != "" {
		student, section, err = s.existingStudent(ctx, actor, in.StudentID)
	} else {
		student, section, err = s.newStudent(ctx, actor, in.StudentInput)
	}
	if err != nil {
		return nil, err
	}
	if total := student.EmbeddingCount + len(in.Images); total > e.opts.MaxImages {
		return nil, &accounts.ValidationError{
			Message: fmt.Sprintf("Student already has %d of %d face images", student.EmbeddingCount, e.opts.MaxImages),
		}
	}

	vectors, err := e.extractAll(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	var saved []database.StudentEmbedding
	if in.StudentID == "" {
		saved, err = s.students.CreateWithEmbeddings(ctx, student, vectors, e.provider.Model())
	} else {
		saved, err = s.students.AddEmbeddings(ctx, student.ID, vectors, e.provider.Model())
	}
	if err != nil {
		return nil, fmt.Errorf("store embeddings: %w", err)
	}
	for i := range saved {
		saved[i].StudentName = student.Name
		saved[i].SectionID = student.SectionID
		saved[i].SchoolID = section.SchoolID
		saved[i].TwinGroupID = student.TwinGroupID
	}

	duplicates := e.duplicates(student, section.SchoolID, vectors)
	if e.index != nil {
		for _, emb := range saved {
			e.index.Add(emb)
		}
	}

	if fresh, err := s.students.Get(ctx, student.ID); err == nil {
		student = fresh
	} else {
		student.EmbeddingCount += len(saved)
	}

	log.Printf("roster: enrolled %s (%s) with %d embeddings, %d possible duplicates",
		student.Name, student.ID, len(saved), len(duplicates))

	return &EnrollResult{
		Student:            student,
		EmbeddingsCount:    student.EmbeddingCount,
		PossibleDuplicates: duplicates,
	}, nil
}

func (s *Service) existingStudent(ctx context.Context, actor *database.User, id string) (*database.Student, *database.Section, error) {
	st, err := s.students.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup student: %w", err)
	}
	sec, err := s.sections.Get(ctx, st.SectionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrSectionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup section: %w", err)
	}
	if !accounts.CanManageSchool(actor, sec.SchoolID) {
		return nil, nil, accounts.ErrForbidden
	}
	return st, sec, nil
}

// extractAll runs the extractions concurrently and keeps the input order.
func (e *Enroller) extractAll(ctx context.Context, images [][]byte) ([][]float32, error) {
	vectors := make([][]float32, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			vec, err := embedding.Extract(gctx, e.provider, img, e.opts.Timeout)
			if err != nil {
				return &ImageError{Index: i + 1, Err: err}
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// duplicates searches the face index for other students of the school that
// look like the new photos. Each student is reported once with their best score.
func (e *Enroller) duplicates(student *database.Student, schoolID string, vectors [][]float32) []database.FaceHit {
	hits := []database.FaceHit{}
	if e.index == nil {
		return hits
	}

	best := make(map[string]database.FaceHit)
	for _, vec := range vectors {
		found, err := e.index.FindDuplicates(database.DuplicateQuery{
			Embedding:     vec,
			SchoolID:      schoolID,
			StudentID:     student.ID,
			TwinGroupID:   student.TwinGroupID,
			MinSimilarity: e.opts.DuplicateThreshold,
			Limit:         constants.DuplicateSearchLimit,
		})
		if err != nil {
			log.Printf("roster: duplicate search for %s skipped: %v", student.ID, err)
			continue
		}
		for _, h := range found {
			if prev, ok := best[h.StudentID]; !ok || h.Similarity > prev.Similarity {
				best[h.StudentID] = h
			}
		}
	}

	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].StudentID < hits[j].StudentID
	})
	return hits
}
