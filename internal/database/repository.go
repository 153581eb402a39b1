package database

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyMarked is returned when a student is already present for the day.
	ErrAlreadyMarked = errors.New("attendance already marked")
	// ErrDuplicateEmail is returned when a user email is already taken.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicate is returned when a unique name or code is already taken.
	ErrDuplicate = errors.New("already exists")
)

// SchoolReader provides read-only access to schools
type SchoolReader interface {
	// Get returns a school by id or ErrNotFound
	Get(ctx context.Context, id string) (*School, error)
	// GetByName returns a school by exact name or ErrNotFound
	GetByName(ctx context.Context, name string) (*School, error)
	// List returns all schools ordered by name
	List(ctx context.Context) ([]School, error)
}

// SchoolWriter provides write access to schools
type SchoolWriter interface {
	SchoolReader

	// Create stores a school without a principal account
	Create(ctx context.Context, school *School) error
	// CreateWithAdmin stores a school and its principal in one transaction.
	// Returns ErrDuplicateEmail if the principal's email is taken.
	CreateWithAdmin(ctx context.Context, school *School, admin *User) error
}

// SectionReader provides read-only access to sections
type SectionReader interface {
	Get(ctx context.Context, id string) (*Section, error)
	// List returns sections of a school, or all sections when schoolID is empty
	List(ctx context.Context, schoolID string) ([]Section, error)
}

// SectionWriter provides write access to sections
type SectionWriter interface {
	SectionReader

	Create(ctx context.Context, section *Section) error
}

// StudentFilter narrows student listings.
type StudentFilter struct {
	// SectionIDs restricts to these sections; nil means no restriction
	SectionIDs []string
	// EnrolledOnly keeps students with at least one embedding
	EnrolledOnly bool
}

// StudentReader provides read-only access to students and their embeddings
type StudentReader interface {
	Get(ctx context.Context, id string) (*Student, error)
	// List returns students matching the filter, with EmbeddingCount populated
	List(ctx context.Context, filter StudentFilter) ([]Student, error)
	// CountBySection returns the number of students in a section
	CountBySection(ctx context.Context, sectionID string) (int, error)
	// ListWithEmbeddings returns every student of a section with their embeddings.
	// Students without embeddings are included with an empty slice.
	ListWithEmbeddings(ctx context.Context, sectionID string) ([]StudentWithEmbeddings, error)
	// AllEmbeddings returns every stored embedding with school and section data,
	// used to build the in-memory face index
	AllEmbeddings(ctx context.Context) ([]StudentEmbedding, error)
}

// StudentWriter provides write access to students
type StudentWriter interface {
	StudentReader

	Create(ctx context.Context, student *Student) error
	// CreateWithEmbeddings stores a new student together with their embeddings.
	// Either both are stored or neither is.
	CreateWithEmbeddings(ctx context.Context, student *Student, embeddings [][]float32, model string) ([]StudentEmbedding, error)
	// AddEmbeddings appends embeddings to a student and returns them with ids
	AddEmbeddings(ctx context.Context, studentID string, embeddings [][]float32, model string) ([]StudentEmbedding, error)
}

// UserReader provides read-only access to accounts
type UserReader interface {
	Get(ctx context.Context, id string) (*User, error)
	// GetByEmail looks up a user by lower-cased email or returns ErrNotFound
	GetByEmail(ctx context.Context, email string) (*User, error)
	// List returns users with a role, scoped to a school when schoolID is not empty
	List(ctx context.Context, role Role, schoolID string) ([]User, error)
}

// UserWriter provides write access to accounts
type UserWriter interface {
	UserReader

	// Create stores a user, returning ErrDuplicateEmail on a taken email
	Create(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// PresentStudentIDs returns the students marked Present in a section on a date
	PresentStudentIDs(ctx context.Context, sectionID, date string) ([]string, error)
	// ListBySection returns every record of a section on a date
	ListBySection(ctx context.Context, sectionID, date string) ([]AttendanceRecord, error)
	// DailyPresentCounts returns present counts per day in [from, to], oldest first
	DailyPresentCounts(ctx context.Context, sectionID, from, to string) ([]DailyCount, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// MarkPresent records the student present for the day. An existing Absent
	// record is flipped to Present. Returns ErrAlreadyMarked if already present.
	MarkPresent(ctx context.Context, record *AttendanceRecord) error
	// SetStatus creates or updates the day's record with the given status
	SetStatus(ctx context.Context, record *AttendanceRecord) error
}
