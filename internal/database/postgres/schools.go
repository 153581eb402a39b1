package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/database"
)

const schoolColumns = `id, name, address_line1, city, state, pincode,
	principal_name, principal_email, principal_phone, created_at`

// SchoolRepository provides PostgreSQL-backed school storage
type SchoolRepository struct {
	pool *Pool
}

// NewSchoolRepository creates a new PostgreSQL school repository
func NewSchoolRepository(pool *Pool) *SchoolRepository {
	return &SchoolRepository{pool: pool}
}

func scanSchool(row rowScanner) (*database.School, error) {
	var s database.School
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.AddressLine1,
		&s.City,
		&s.State,
		&s.Pincode,
		&s.PrincipalName,
		&s.PrincipalEmail,
		&s.PrincipalPhone,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves a school by ID
func (r *SchoolRepository) Get(ctx context.Context, id string) (*database.School, error) {
	s, err := scanSchool(r.pool.QueryRow(ctx, "SELECT "+schoolColumns+" FROM schools WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get school: %w", err)
	}
	return s, nil
}

// GetByName retrieves a school by its exact name
func (r *SchoolRepository) GetByName(ctx context.Context, name string) (*database.School, error) {
	s, err := scanSchool(r.pool.QueryRow(ctx, "SELECT "+schoolColumns+" FROM schools WHERE name = $1", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get school by name: %w", err)
	}
	return s, nil
}

// List returns all schools ordered by name
func (r *SchoolRepository) List(ctx context.Context) ([]database.School, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+schoolColumns+" FROM schools ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	defer rows.Close()

	var schools []database.School
	for rows.Next() {
		s, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan school: %w", err)
		}
		schools = append(schools, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schools: %w", err)
	}
	return schools, nil
}

const insertSchool = `
	INSERT INTO schools (id, name, address_line1, city, state, pincode,
		principal_name, principal_email, principal_phone)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING created_at
`

func schoolArgs(s *database.School) []any {
	return []any{
		s.ID, s.Name, s.AddressLine1, s.City, s.State, s.Pincode,
		s.PrincipalName, s.PrincipalEmail, s.PrincipalPhone,
	}
}

// Create stores a new school. An empty ID is generated.
func (r *SchoolRepository) Create(ctx context.Context, school *database.School) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, insertSchool, schoolArgs(school)...).Scan(&school.CreatedAt)
	if isUniqueViolation(err, "") {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create school: %w", err)
	}
	return nil
}

// CreateWithAdmin stores a school and its principal account in a single transaction
func (r *SchoolRepository) CreateWithAdmin(ctx context.Context, school *database.School, admin *database.User) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	if admin.ID == "" {
		admin.ID = uuid.NewString()
	}
	admin.SchoolID = school.ID

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, insertSchool, schoolArgs(school)...).Scan(&school.CreatedAt)
	if isUniqueViolation(err, "") {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert school: %w", err)
	}

	err = tx.QueryRowContext(ctx, insertUser, userArgs(admin)...).Scan(&admin.CreatedAt)
	if isUniqueViolation(err, emailConstraint) {
		return database.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert school admin: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
