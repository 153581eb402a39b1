// Package attendance marks students present from a face scan and reports
// daily attendance per section.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/constants"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/embedding"
	"github.com/kozaktomas/school-attendance/internal/facematch"
	"github.com/kozaktomas/school-attendance/internal/roster"
)

// Options tunes scan matching.
type Options struct {
	Threshold float64
	Timeout   time.Duration
}

// OptionsFromConfig reads matching options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Threshold: cfg.Matching.Threshold,
		Timeout:   cfg.Embedding.Timeout,
	}
}

// Service records attendance.
type Service struct {
	sections database.SectionReader
	students database.StudentReader
	records  database.AttendanceWriter
	provider embedding.Provider
	opts     Options

	now func() time.Time
}

// NewService creates an attendance service.
func NewService(sections database.SectionReader, students database.StudentReader, records database.AttendanceWriter, provider embedding.Provider, opts Options) *Service {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = constants.DefaultMatchThreshold
	}
	return &Service{
		sections: sections,
		students: students,
		records:  records,
		provider: provider,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Service) today() string {
	return s.now().UTC().Format(constants.DateLayout)
}

// parseDate returns today for an empty value.
func (s *Service) parseDate(date string) (string, error) {
	if date == "" {
		return s.today(), nil
	}
	if _, err := time.Parse(constants.DateLayout, date); err != nil {
		return "", &accounts.ValidationError{Message: "date must be YYYY-MM-DD"}
	}
	return date, nil
}

// sectionFor resolves the section a request acts on. Teachers default to their own.
func (s *Service) sectionFor(ctx context.Context, actor *database.User, sectionID string) (*database.Section, error) {
	if sectionID == "" && actor.Role == database.RoleTeacher {
		sectionID = actor.SectionID
	}
	return roster.LoadSection(ctx, s.sections, actor, sectionID)
}

// ScanInput is one attendance scan.
type ScanInput struct {
	SectionID          string
	Image              []byte
	ConfirmedStudentID string // set on the follow-up to a twin conflict
}

// ScanResult is the reply to a scan.
type ScanResult struct {
	Status         string                    `json:"status"`
	Outcome        string                    `json:"outcome"`
	StudentID      string                    `json:"student_id,omitempty"`
	StudentName    string                    `json:"student_name,omitempty"`
	Score          float64                   `json:"score"`
	TwinConflict   bool                      `json:"twin_conflict"`
	TwinCandidates []facematch.TwinCandidate `json:"twin_candidates"`
	Date           string                    `json:"date"`
	SectionID      string                    `json:"section_id"`
}

// Preview resolves a scan against a section without recording anything.
func (s *Service) Preview(ctx context.Context, actor *database.User, in ScanInput) (*ScanResult, error) {
	sec, err := s.sectionFor(ctx, actor, in.SectionID)
	if err != nil {
		return nil, err
	}
	date := s.today()
	outcome, err := s.resolve(ctx, sec.ID, date, in)
	if err != nil {
		return nil, err
	}
	return newScanResult(outcome, sec.ID, date), nil
}

// Mark resolves a scan and records the matched student present for today.
func (s *Service) Mark(ctx context.Context, actor *database.User, in ScanInput) (*ScanResult, error) {
	sec, err := s.sectionFor(ctx, actor, in.SectionID)
	if err != nil {
		return nil, err
	}
	date := s.today()
	outcome, err := s.resolve(ctx, sec.ID, date, in)
	if err != nil {
		return nil, err
	}

	if outcome.Kind == facematch.Matched {
		record := &database.AttendanceRecord{
			ID:        uuid.NewString(),
			StudentID: outcome.StudentID,
			SectionID: sec.ID,
			Date:      date,
			Status:    database.StatusPresent,
			MarkedBy:  actor.ID,
			Score:     outcome.Score,
		}
		err := s.records.MarkPresent(ctx, record)
		switch {
		case errors.Is(err, database.ErrAlreadyMarked):
			outcome.Kind = facematch.AlreadyMarked
		case err != nil:
			return nil, fmt.Errorf("record attendance: %w", err)
		default:
			log.Printf("attendance: %s marked present in %s (score %.3f)", outcome.StudentID, sec.ID, outcome.Score)
		}
	}

	scanOutcomes.WithLabelValues(outcome.Kind.String()).Inc()
	return newScanResult(outcome, sec.ID, date), nil
}

func (s *Service) resolve(ctx context.Context, sectionID, date string, in ScanInput) (facematch.Outcome, error) {
	query, err := embedding.Extract(ctx, s.provider, in.Image, s.opts.Timeout)
	if err != nil {
		return facematch.Outcome{}, err
	}

	rows, err := s.students.ListWithEmbeddings(ctx, sectionID)
	if err != nil {
		return facematch.Outcome{}, fmt.Errorf("load section students: %w", err)
	}
	candidates := make([]facematch.StudentFaceProfile, 0, len(rows))
	for i := range rows {
		candidates = append(candidates, rows[i].FaceProfile())
	}

	presentIDs, err := s.records.PresentStudentIDs(ctx, sectionID, date)
	if err != nil {
		return facematch.Outcome{}, fmt.Errorf("load present students: %w", err)
	}
	present := facematch.NewPresentSet(presentIDs...)

	if id := strings.TrimSpace(in.ConfirmedStudentID); id != "" {
		return facematch.Confirm(query, id, candidates, present), nil
	}
	return facematch.Resolve(query, candidates, s.opts.Threshold, present), nil
}

func newScanResult(o facematch.Outcome, sectionID, date string) *ScanResult {
	res := &ScanResult{
		Outcome:        o.Kind.String(),
		StudentID:      o.StudentID,
		StudentName:    o.StudentName,
		Score:          o.Score,
		TwinCandidates: []facematch.TwinCandidate{},
		Date:           date,
		SectionID:      sectionID,
	}
	switch o.Kind {
	case facematch.Matched:
		res.Status = "Marked present: " + o.StudentName
	case facematch.AlreadyMarked:
		res.Status = "Already marked: " + o.StudentName
	case facematch.AmbiguousTwins:
		res.Status = "Twin conflict: confirm student"
		res.TwinConflict = true
		res.TwinCandidates = o.TwinCandidates
	default:
		res.Status = "No match: not a student from this section"
	}
	return res
}

// ManualInput sets a student's status for a day.
type ManualInput struct {
	SectionID string
	StudentID string
	Status    string
	Date      string // defaults to today
}

// ManualMark creates or updates the day's record for a student of the section.
func (s *Service) ManualMark(ctx context.Context, actor *database.User, in ManualInput) (*database.AttendanceRecord, error) {
	status, ok := database.ParseAttendanceStatus(in.Status)
	if !ok {
		return nil, &accounts.ValidationError{Message: "status must be Present or Absent"}
	}
	date, err := s.parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	sec, err := s.sectionFor(ctx, actor, in.SectionID)
	if err != nil {
		return nil, err
	}

	st, err := s.students.Get(ctx, in.StudentID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, roster.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup student: %w", err)
	}
	if st.SectionID != sec.ID {
		return nil, &accounts.ValidationError{Message: "Student is not in this section"}
	}

	record := &database.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: st.ID,
		SectionID: sec.ID,
		Date:      date,
		Status:    status,
		MarkedBy:  actor.ID,
	}
	if err := s.records.SetStatus(ctx, record); err != nil {
		return nil, fmt.Errorf("set attendance: %w", err)
	}
	manualMarks.WithLabelValues(string(status)).Inc()
	return record, nil
}

// Summary is the attendance of a section on one day.
type Summary struct {
	SectionID    string   `json:"section_id"`
	Date         string   `json:"date"`
	Total        int      `json:"total"`
	PresentCount int      `json:"present_count"`
	AbsentCount  int      `json:"absent_count"`
	Present      []string `json:"present"`
}

// Summary counts the section's students present on date.
func (s *Service) Summary(ctx context.Context, actor *database.User, sectionID, date string) (*Summary, error) {
	date, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	sec, err := s.sectionFor(ctx, actor, sectionID)
	if err != nil {
		return nil, err
	}

	total, err := s.students.CountBySection(ctx, sec.ID)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	present, err := s.records.PresentStudentIDs(ctx, sec.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load present students: %w", err)
	}
	if present == nil {
		present = []string{}
	}

	return &Summary{
		SectionID:    sec.ID,
		Date:         date,
		Total:        total,
		PresentCount: len(present),
		AbsentCount:  max(0, total-len(present)),
		Present:      present,
	}, nil
}

// History is the per-day present count of a section.
type History struct {
	SectionID string                `json:"section_id"`
	Days      int                   `json:"days"`
	Counts    []database.DailyCount `json:"counts"`
}

// History returns present counts for the last days days, today included.
func (s *Service) History(ctx context.Context, actor *database.User, sectionID string, days int) (*History, error) {
	if days <= 0 {
		days = constants.DefaultHistoryDays
	}
	days = min(days, constants.MaxHistoryDays)

	sec, err := s.sectionFor(ctx, actor, sectionID)
	if err != nil {
		return nil, err
	}

	to := s.now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	counts, err := s.records.DailyPresentCounts(ctx, sec.ID, from.Format(constants.DateLayout), to.Format(constants.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if counts == nil {
		counts = []database.DailyCount{}
	}
	return &History{SectionID: sec.ID, Days: days, Counts: counts}, nil
}
