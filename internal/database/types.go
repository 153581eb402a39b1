package database

import (
	"strings"
	"time"

	"github.com/kozaktomas/school-attendance/internal/facematch"
)

// Role is an account role.
type Role string

const (
	RoleGovAdmin    Role = "GOV_ADMIN"
	RoleSchoolAdmin Role = "SCHOOL_ADMIN"
	RoleCoAdmin     Role = "CO_ADMIN"
	RoleTeacher     Role = "TEACHER"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleGovAdmin, RoleSchoolAdmin, RoleCoAdmin, RoleTeacher:
		return r, true
	}
	return "", false
}

// IsSchoolStaff reports whether the role is bound to a single school.
func (r Role) IsSchoolStaff() bool {
	return r == RoleSchoolAdmin || r == RoleCoAdmin || r == RoleTeacher
}

// IsSchoolAdmin reports whether the role administers a single school.
func (r Role) IsSchoolAdmin() bool {
	return r == RoleSchoolAdmin || r == RoleCoAdmin
}

// AttendanceStatus is the state of an attendance record.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusAbsent  AttendanceStatus = "Absent"
)

// ParseAttendanceStatus accepts "Present"/"Absent" in any case.
func ParseAttendanceStatus(s string) (AttendanceStatus, bool) {
	switch {
	case strings.EqualFold(s, string(StatusPresent)):
		return StatusPresent, true
	case strings.EqualFold(s, string(StatusAbsent)):
		return StatusAbsent, true
	}
	return "", false
}

// School is a school managed by a principal.
type School struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AddressLine1   string    `json:"address_line1,omitempty"`
	City           string    `json:"city,omitempty"`
	State          string    `json:"state,omitempty"`
	Pincode        string    `json:"pincode,omitempty"`
	PrincipalName  string    `json:"principal_name,omitempty"`
	PrincipalEmail string    `json:"principal_email,omitempty"`
	PrincipalPhone string    `json:"principal_phone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Section is a class within a school.
type Section struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	Name      string    `json:"name"`
	Grade     string    `json:"grade,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Student is an enrolled or not yet enrolled student.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StudentCode  string    `json:"student_code"`
	RollNo       string    `json:"roll_no,omitempty"`
	SectionID    string    `json:"section_id"`
	ParentMobile string    `json:"parent_mobile,omitempty"`
	HasTwin      bool      `json:"has_twin"`
	TwinGroupID  string    `json:"twin_group_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// EmbeddingCount is filled by list queries.
	EmbeddingCount int `json:"embeddings_count"`
}

// StudentEmbedding is one stored face embedding of a student.
type StudentEmbedding struct {
	ID        int64
	StudentID string
	Embedding []float32
	Model     string
	Dim       int
	CreatedAt time.Time

	// Denormalized from students/sections for the face index.
	StudentName string
	SectionID   string
	SchoolID    string
	TwinGroupID string
}

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Phone        string    `json:"phone,omitempty"`
	SchoolID     string    `json:"school_id,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	SectionID    string    `json:"section_id,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttendanceRecord is at most one row per (student, section, date).
type AttendanceRecord struct {
	ID        string           `json:"id"`
	StudentID string           `json:"student_id"`
	SectionID string           `json:"section_id"`
	Date      string           `json:"date"` // YYYY-MM-DD
	Status    AttendanceStatus `json:"status"`
	MarkedBy  string           `json:"marked_by,omitempty"`
	Score     float64          `json:"score,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// DailyCount is the number of present students on one day.
type DailyCount struct {
	Date         string `json:"date"`
	PresentCount int    `json:"present_count"`
}

// StudentWithEmbeddings pairs a student with all of their stored embeddings.
type StudentWithEmbeddings struct {
	Student    Student
	Embeddings [][]float32
}

// FaceProfile converts the pair into the matcher's input type.
func (s *StudentWithEmbeddings) FaceProfile() facematch.StudentFaceProfile {
	return facematch.StudentFaceProfile{
		StudentID:   s.Student.ID,
		Name:        s.Student.Name,
		SectionID:   s.Student.SectionID,
		Embeddings:  s.Embeddings,
		HasTwin:     s.Student.HasTwin,
		TwinGroupID: facematch.NormalizeTwinGroupID(s.Student.TwinGroupID),
	}
}
