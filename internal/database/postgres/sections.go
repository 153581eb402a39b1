package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/database"
)

// SectionRepository provides PostgreSQL-backed section storage
type SectionRepository struct {
	pool *Pool
}

// NewSectionRepository creates a new PostgreSQL section repository
func NewSectionRepository(pool *Pool) *SectionRepository {
	return &SectionRepository{pool: pool}
}

// Get retrieves a section by ID
func (r *SectionRepository) Get(ctx context.Context, id string) (*database.Section, error) {
	var s database.Section
	err := r.pool.QueryRow(ctx,
		"SELECT id, school_id, name, grade, created_at FROM sections WHERE id = $1", id,
	).Scan(&s.ID, &s.SchoolID, &s.Name, &s.Grade, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get section: %w", err)
	}
	return &s, nil
}

// List returns the sections of a school, or every section when schoolID is empty
func (r *SectionRepository) List(ctx context.Context, schoolID string) ([]database.Section, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, school_id, name, grade, created_at
		FROM sections
		WHERE $1 = '' OR school_id = $1
		ORDER BY grade, name, id
	`, schoolID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	var sections []database.Section
	for rows.Next() {
		var s database.Section
		if err := rows.Scan(&s.ID, &s.SchoolID, &s.Name, &s.Grade, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return sections, nil
}

// Create stores a new section. Names are unique within a school.
func (r *SectionRepository) Create(ctx context.Context, section *database.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sections (id, school_id, name, grade)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, section.ID, section.SchoolID, section.Name, section.Grade).Scan(&section.CreatedAt)
	if isUniqueViolation(err, "") {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}
	return nil
}
