package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/database"
)

const emailConstraint = "users_email_key"

const userColumns = `id, full_name, email, role, phone, COALESCE(school_id, ''),
	subject, COALESCE(section_id, ''), password_hash, created_at`

const insertUser = `
	INSERT INTO users (id, full_name, email, role, phone, school_id, subject, section_id, password_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at
`

// UserRepository provides PostgreSQL-backed account storage
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func userArgs(u *database.User) []any {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return []any{
		u.ID, u.FullName, u.Email, string(u.Role), u.Phone,
		nullIfEmpty(u.SchoolID), u.Subject, nullIfEmpty(u.SectionID), u.PasswordHash,
	}
}

func scanUser(row rowScanner) (*database.User, error) {
	var u database.User
	var role string
	err := row.Scan(
		&u.ID,
		&u.FullName,
		&u.Email,
		&role,
		&u.Phone,
		&u.SchoolID,
		&u.Subject,
		&u.SectionID,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = database.Role(role)
	return &u, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*database.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*database.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List returns users with the given role, optionally scoped to a school
func (r *UserRepository) List(ctx context.Context, role database.Role, schoolID string) ([]database.User, error) {
	query := "SELECT " + userColumns + ` FROM users
		WHERE role = $1 AND ($2 = '' OR school_id = $2)
		ORDER BY full_name, id`

	rows, err := r.pool.Query(ctx, query, string(role), schoolID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []database.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// Create stores a new user. Emails are stored lower-cased.
func (r *UserRepository) Create(ctx context.Context, user *database.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, insertUser, userArgs(user)...).Scan(&user.CreatedAt)
	if isUniqueViolation(err, emailConstraint) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash of a user
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.pool.Exec(ctx, "UPDATE users SET password_hash = $2 WHERE id = $1", id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
