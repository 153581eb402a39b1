// Package roster manages sections, students and face enrollment.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/accounts"
	"github.com/kozaktomas/school-attendance/internal/constants"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/facematch"
)

var (
	// ErrSchoolNotFound is returned when a referenced school does not exist.
	ErrSchoolNotFound = errors.New("school not found")
	// ErrSectionNotFound is returned when a referenced section does not exist.
	ErrSectionNotFound = errors.New("section not found")
	// ErrStudentNotFound is returned when a referenced student does not exist.
	ErrStudentNotFound = errors.New("student not found")
)

// Service implements section and student workflows.
type Service struct {
	schools  database.SchoolReader
	sections database.SectionWriter
	students database.StudentWriter
	enroller *Enroller
}

// NewService creates a roster service. enroller may be nil when enrollment is not served.
func NewService(schools database.SchoolReader, sections database.SectionWriter, students database.StudentWriter, enroller *Enroller) *Service {
	return &Service{
		schools:  schools,
		sections: sections,
		students: students,
		enroller: enroller,
	}
}

// LoadSection fetches a section and checks that actor may access it.
func LoadSection(ctx context.Context, sections database.SectionReader, actor *database.User, sectionID string) (*database.Section, error) {
	if sectionID == "" {
		return nil, &accounts.ValidationError{Message: "section_id required"}
	}
	sec, err := sections.Get(ctx, sectionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup section: %w", err)
	}
	if !accounts.CanAccessSection(actor, sec) {
		return nil, accounts.ErrForbidden
	}
	return sec, nil
}

// SectionInput is a new section.
type SectionInput struct {
	SchoolID string
	Name     string
	Grade    string
}

// CreateSection adds a section to a school. School admins may only add to their own school.
func (s *Service) CreateSection(ctx context.Context, actor *database.User, in SectionInput) (*database.Section, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &accounts.ValidationError{Message: "name required"}
	}

	schoolID := in.SchoolID
	if schoolID == "" {
		schoolID = actor.SchoolID
	}
	if schoolID == "" {
		return nil, &accounts.ValidationError{Message: "school_id required"}
	}
	if !accounts.CanManageSchool(actor, schoolID) {
		return nil, accounts.ErrForbidden
	}
	if _, err := s.schools.Get(ctx, schoolID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrSchoolNotFound
		}
		return nil, fmt.Errorf("lookup school: %w", err)
	}

	sec := &database.Section{
		ID:       uuid.NewString(),
		SchoolID: schoolID,
		Name:     name,
		Grade:    strings.TrimSpace(in.Grade),
	}
	if err := s.sections.Create(ctx, sec); err != nil {
		return nil, fmt.Errorf("create section: %w", err)
	}
	return sec, nil
}

// ListSections returns the sections visible to actor.
// School staff always see their own school; government admins may filter by schoolID.
func (s *Service) ListSections(ctx context.Context, actor *database.User, schoolID string) ([]database.Section, error) {
	if actor.Role.IsSchoolStaff() {
		if actor.SchoolID == "" {
			return []database.Section{}, nil
		}
		schoolID = actor.SchoolID
	}
	sections, err := s.sections.List(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	if actor.Role == database.RoleTeacher {
		own := sections[:0]
		for _, sec := range sections {
			if sec.ID == actor.SectionID {
				own = append(own, sec)
			}
		}
		sections = own
	}
	return sections, nil
}

// StudentInput is a new student.
type StudentInput struct {
	Name         string
	SectionID    string
	StudentCode  string
	RollNo       string
	ParentMobile string
	HasTwin      bool
	TwinGroupID  string
}

// newStudent validates in against the section and builds the row to insert.
func (s *Service) newStudent(ctx context.Context, actor *database.User, in StudentInput) (*database.Student, *database.Section, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, &accounts.ValidationError{Message: "name required"}
	}
	if in.SectionID == "" {
		return nil, nil, &accounts.ValidationError{Message: "section_id required"}
	}
	sec, err := s.sections.Get(ctx, in.SectionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrSectionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup section: %w", err)
	}
	if !accounts.CanManageSchool(actor, sec.SchoolID) {
		return nil, nil, accounts.ErrForbidden
	}

	st := &database.Student{
		ID:           uuid.NewString(),
		Name:         name,
		RollNo:       strings.TrimSpace(in.RollNo),
		SectionID:    sec.ID,
		ParentMobile: strings.TrimSpace(in.ParentMobile),
		HasTwin:      in.HasTwin,
	}
	st.StudentCode = studentCode(in.StudentCode, st.RollNo, st.ID)
	if st.HasTwin {
		st.TwinGroupID = facematch.NormalizeTwinGroupID(in.TwinGroupID)
	}
	return st, sec, nil
}

// studentCode prefers an explicit code, then the roll number, then the id prefix.
func studentCode(code, rollNo, id string) string {
	if code = strings.TrimSpace(code); code != "" {
		return code
	}
	if rollNo != "" {
		return rollNo
	}
	if len(id) > constants.StudentCodeLength {
		return id[:constants.StudentCodeLength]
	}
	return id
}

// CreateStudent adds a student without face data.
func (s *Service) CreateStudent(ctx context.Context, actor *database.User, in StudentInput) (*database.Student, error) {
	st, _, err := s.newStudent(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.students.Create(ctx, st); err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

// StudentQuery filters ListStudents.
type StudentQuery struct {
	SectionID string
	Query     string // name filter, diacritic-insensitive
	Enrolled  bool   // only students with stored embeddings
}

// ListStudents returns the students visible to actor.
// Teachers only see their assigned section.
func (s *Service) ListStudents(ctx context.Context, actor *database.User, q StudentQuery) ([]database.Student, error) {
	filter := database.StudentFilter{EnrolledOnly: q.Enrolled}

	switch {
	case actor.Role == database.RoleTeacher:
		if actor.SectionID == "" {
			return []database.Student{}, nil
		}
		filter.SectionIDs = []string{actor.SectionID}
	case q.SectionID != "":
		if _, err := LoadSection(ctx, s.sections, actor, q.SectionID); err != nil {
			return nil, err
		}
		filter.SectionIDs = []string{q.SectionID}
	case actor.Role.IsSchoolStaff():
		sections, err := s.ListSections(ctx, actor, "")
		if err != nil {
			return nil, err
		}
		if len(sections) == 0 {
			return []database.Student{}, nil
		}
		filter.SectionIDs = make([]string, 0, len(sections))
		for _, sec := range sections {
			filter.SectionIDs = append(filter.SectionIDs, sec.ID)
		}
	}

	students, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if q.Query == "" {
		return students, nil
	}
	matched := make([]database.Student, 0, len(students))
	for _, st := range students {
		if facematch.NameMatchesQuery(st.Name, q.Query) {
			matched = append(matched, st)
		}
	}
	return matched, nil
}
