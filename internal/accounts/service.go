// Package accounts manages users, schools and their credentials.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kozaktomas/school-attendance/internal/config"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/kozaktomas/school-attendance/internal/notify"
)

var (
	// ErrInvalidCredentials is returned by Authenticate for any login failure.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden is returned when the actor may not act on the target school.
	ErrForbidden = errors.New("insufficient permissions")
)

// ValidationError is a client error with a user-facing message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Service implements account workflows on top of the repositories.
type Service struct {
	users    database.UserWriter
	schools  database.SchoolWriter
	sections database.SectionReader
	sender   notify.Sender
	policy   config.SchoolPolicy
}

// NewService creates an account service
func NewService(users database.UserWriter, schools database.SchoolWriter, sections database.SectionReader, sender notify.Sender, policy config.SchoolPolicy) *Service {
	return &Service{
		users:    users,
		schools:  schools,
		sections: sections,
		sender:   sender,
		policy:   policy,
	}
}

// Authenticate checks an email and password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*database.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// notifyCredentials sends the email and logs failures; delivery never fails the caller.
func (s *Service) notifyCredentials(ctx context.Context, u *database.User, tempPassword string) notify.Result {
	if s.sender == nil {
		return notify.Result{Error: notify.ErrNotConfigured.Error()}
	}
	res, err := s.sender.SendCredentials(ctx, notify.Credentials{
		ToEmail:      u.Email,
		ToName:       u.FullName,
		RoleName:     s.policy.RoleName(string(u.Role)),
		TempPassword: tempPassword,
	})
	if err != nil {
		log.Printf("accounts: credentials email to %s not sent: %v", u.Email, err)
	}
	return res
}

// SchoolInput is a new school with its principal.
type SchoolInput struct {
	Name           string
	AddressLine1   string
	City           string
	State          string
	Pincode        string
	PrincipalName  string
	PrincipalEmail string
	PrincipalPhone string
}

// CreateSchool stores a school and a SCHOOL_ADMIN account for its principal,
// then emails the principal a temporary password.
func (s *Service) CreateSchool(ctx context.Context, in SchoolInput) (*database.School, *database.User, error) {
	tempPassword, err := TempPassword()
	if err != nil {
		return nil, nil, err
	}
	hash, err := HashPassword(tempPassword)
	if err != nil {
		return nil, nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.PrincipalEmail))
	school := &database.School{
		Name:           strings.TrimSpace(in.Name),
		AddressLine1:   in.AddressLine1,
		City:           in.City,
		State:          in.State,
		Pincode:        in.Pincode,
		PrincipalName:  in.PrincipalName,
		PrincipalEmail: email,
		PrincipalPhone: in.PrincipalPhone,
	}
	admin := &database.User{
		FullName:     in.PrincipalName,
		Email:        email,
		Role:         database.RoleSchoolAdmin,
		Phone:        in.PrincipalPhone,
		PasswordHash: hash,
	}

	if err := s.schools.CreateWithAdmin(ctx, school, admin); err != nil {
		return nil, nil, fmt.Errorf("create school: %w", err)
	}

	s.notifyCredentials(ctx, admin, tempPassword)
	return school, admin, nil
}

// StaffInput is a new teacher or co-admin.
type StaffInput struct {
	FullName  string
	Email     string
	Role      database.Role
	Phone     string
	SchoolID  string
	Subject   string
	SectionID string
	Password  string // optional; a temporary password is generated when empty
}

// CreateStaff creates a TEACHER or CO_ADMIN in the actor's school.
// Government admins must name the school; school admins are pinned to theirs.
func (s *Service) CreateStaff(ctx context.Context, actor *database.User, in StaffInput) (*database.User, error) {
	if in.Role != database.RoleTeacher && in.Role != database.RoleCoAdmin {
		return nil, invalid("role must be TEACHER or CO_ADMIN")
	}

	schoolID := in.SchoolID
	if schoolID == "" || actor.Role.IsSchoolAdmin() {
		schoolID = actor.SchoolID
	}
	if schoolID == "" {
		return nil, invalid("school_id required")
	}
	if !CanManageSchool(actor, schoolID) {
		return nil, ErrForbidden
	}

	user := &database.User{
		FullName: strings.TrimSpace(in.FullName),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Role:     in.Role,
		Phone:    in.Phone,
		SchoolID: schoolID,
	}

	if in.Role == database.RoleTeacher {
		if in.Subject != "" && !s.policy.IsAllowedSubject(in.Subject) {
			return nil, invalid("Invalid subject")
		}
		if in.SectionID != "" {
			sec, err := s.sections.Get(ctx, in.SectionID)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("lookup section: %w", err)
			}
			if sec == nil || sec.SchoolID != schoolID {
				return nil, invalid("Invalid section for this school")
			}
		}
		user.Subject = in.Subject
		user.SectionID = in.SectionID
	}

	password := in.Password
	if password == "" {
		var err error
		if password, err = TempPassword(); err != nil {
			return nil, err
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.notifyCredentials(ctx, user, password)
	return user, nil
}

// ListUsers returns users of a role. School staff only see their own school.
func (s *Service) ListUsers(ctx context.Context, actor *database.User, role database.Role) ([]database.User, error) {
	schoolID := ""
	if actor.Role.IsSchoolStaff() {
		schoolID = actor.SchoolID
		if schoolID == "" {
			return []database.User{}, nil
		}
	}
	users, err := s.users.List(ctx, role, schoolID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ResendResult is the outcome of a credentials reset.
type ResendResult struct {
	Sent  bool          `json:"sent"`
	Email string        `json:"email"`
	Role  database.Role `json:"role"`
	Brevo notify.Result `json:"brevo"`
}

// ResendCredentials resets a user's password and emails it.
// An empty tempPassword generates one.
func (s *Service) ResendCredentials(ctx context.Context, email, tempPassword string) (*ResendResult, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}

	if tempPassword == "" {
		if tempPassword, err = TempPassword(); err != nil {
			return nil, err
		}
	}
	hash, err := HashPassword(tempPassword)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	res := s.notifyCredentials(ctx, u, tempPassword)
	return &ResendResult{Sent: res.Sent, Email: u.Email, Role: u.Role, Brevo: res}, nil
}
