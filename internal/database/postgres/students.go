package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// StudentRepository provides PostgreSQL-backed student and embedding storage
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

const studentColumns = `s.id, s.name, s.student_code, s.roll_no, s.section_id,
	s.parent_mobile, s.has_twin, s.twin_group_id, s.created_at`

func scanStudent(row rowScanner, extra ...any) (*database.Student, error) {
	var s database.Student
	dest := []any{
		&s.ID,
		&s.Name,
		&s.StudentCode,
		&s.RollNo,
		&s.SectionID,
		&s.ParentMobile,
		&s.HasTwin,
		&s.TwinGroupID,
		&s.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &s, nil
}

// Get retrieves a student by ID with their embedding count
func (r *StudentRepository) Get(ctx context.Context, id string) (*database.Student, error) {
	query := "SELECT " + studentColumns + `,
			(SELECT COUNT(*) FROM student_embeddings e WHERE e.student_id = s.id)
		FROM students s WHERE s.id = $1`

	var count int
	s, err := scanStudent(r.pool.QueryRow(ctx, query, id), &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	s.EmbeddingCount = count
	return s, nil
}

// List returns students matching the filter ordered by name
func (r *StudentRepository) List(ctx context.Context, filter database.StudentFilter) ([]database.Student, error) {
	var sections any
	if filter.SectionIDs != nil {
		sections = pq.Array(filter.SectionIDs)
	}

	query := "SELECT " + studentColumns + `, COUNT(e.id)
		FROM students s
		LEFT JOIN student_embeddings e ON e.student_id = s.id
		WHERE $1::text[] IS NULL OR s.section_id = ANY($1::text[])
		GROUP BY s.id
		HAVING NOT $2::boolean OR COUNT(e.id) > 0
		ORDER BY s.name, s.id`

	rows, err := r.pool.Query(ctx, query, sections, filter.EnrolledOnly)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var count int
		s, err := scanStudent(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		s.EmbeddingCount = count
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// CountBySection returns the number of students in a section
func (r *StudentRepository) CountBySection(ctx context.Context, sectionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM students WHERE section_id = $1", sectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

// ListWithEmbeddings returns every student of a section together with their embeddings
func (r *StudentRepository) ListWithEmbeddings(ctx context.Context, sectionID string) ([]database.StudentWithEmbeddings, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+studentColumns+" FROM students s WHERE s.section_id = $1 ORDER BY s.id", sectionID)
	if err != nil {
		return nil, fmt.Errorf("list section students: %w", err)
	}
	defer rows.Close()

	var result []database.StudentWithEmbeddings
	byID := make(map[string]int)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		byID[s.ID] = len(result)
		result = append(result, database.StudentWithEmbeddings{Student: *s})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	if len(result) == 0 {
		return result, nil
	}

	embRows, err := r.pool.Query(ctx, `
		SELECT e.student_id, e.embedding
		FROM student_embeddings e
		JOIN students s ON s.id = e.student_id
		WHERE s.section_id = $1
		ORDER BY e.id
	`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list section embeddings: %w", err)
	}
	defer embRows.Close()

	for embRows.Next() {
		var studentID string
		var vec pgvector.Vector
		if err := embRows.Scan(&studentID, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if i, ok := byID[studentID]; ok {
			result[i].Embeddings = append(result[i].Embeddings, vec.Slice())
		}
	}
	if err := embRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// AllEmbeddings returns every stored embedding with its student, section and school
func (r *StudentRepository) AllEmbeddings(ctx context.Context) ([]database.StudentEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.student_id, e.embedding, e.model, e.dim, e.created_at,
			s.name, s.section_id, sec.school_id, s.twin_group_id
		FROM student_embeddings e
		JOIN students s ON s.id = e.student_id
		JOIN sections sec ON sec.id = s.section_id
		ORDER BY e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []database.StudentEmbedding
	for rows.Next() {
		var emb database.StudentEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(
			&emb.ID,
			&emb.StudentID,
			&vec,
			&emb.Model,
			&emb.Dim,
			&emb.CreatedAt,
			&emb.StudentName,
			&emb.SectionID,
			&emb.SchoolID,
			&emb.TwinGroupID,
		); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		embeddings = append(embeddings, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return embeddings, nil
}

const insertStudentSQL = `
	INSERT INTO students (id, name, student_code, roll_no, section_id, parent_mobile, has_twin, twin_group_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING created_at
`

func studentArgs(student *database.Student) []any {
	return []any{
		student.ID,
		student.Name,
		student.StudentCode,
		student.RollNo,
		student.SectionID,
		student.ParentMobile,
		student.HasTwin,
		student.TwinGroupID,
	}
}

// Create stores a new student. Student codes are unique.
func (r *StudentRepository) Create(ctx context.Context, student *database.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx, insertStudentSQL, studentArgs(student)...).Scan(&student.CreatedAt)
	if isUniqueViolation(err, "") {
		return database.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateWithEmbeddings stores a new student and their embeddings in one
// transaction, so a failed embedding insert leaves no student row behind.
func (r *StudentRepository) CreateWithEmbeddings(ctx context.Context, student *database.Student, embeddings [][]float32, model string) ([]database.StudentEmbedding, error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, insertStudentSQL, studentArgs(student)...).Scan(&student.CreatedAt)
	if isUniqueViolation(err, "") {
		return nil, database.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}

	saved, err := insertEmbeddings(ctx, tx, student.ID, embeddings, model)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return saved, nil
}

// AddEmbeddings saves embeddings for a student in a single transaction
func (r *StudentRepository) AddEmbeddings(ctx context.Context, studentID string, embeddings [][]float32, model string) ([]database.StudentEmbedding, error) {
	if len(embeddings) == 0 {
		return nil, nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved, err := insertEmbeddings(ctx, tx, studentID, embeddings, model)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return saved, nil
}

func insertEmbeddings(ctx context.Context, tx *sql.Tx, studentID string, embeddings [][]float32, model string) ([]database.StudentEmbedding, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO student_embeddings (student_id, embedding, model, dim)
		VALUES ($1, $2::vector, $3, $4)
		RETURNING id, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	saved := make([]database.StudentEmbedding, 0, len(embeddings))
	for _, e := range embeddings {
		emb := database.StudentEmbedding{
			StudentID: studentID,
			Embedding: e,
			Model:     model,
			Dim:       len(e),
		}
		vec := pgvector.NewVector(e)
		if err := stmt.QueryRowContext(ctx, studentID, vec, model, emb.Dim).Scan(&emb.ID, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert embedding for %s: %w", studentID, err)
		}
		saved = append(saved, emb)
	}
	return saved, nil
}
