package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/school-attendance/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// PresentStudentIDs returns students marked Present in a section on a date
func (r *AttendanceRepository) PresentStudentIDs(ctx context.Context, sectionID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id FROM attendance
		WHERE section_id = $1 AND date = $2::date AND status = 'Present'
		ORDER BY student_id
	`, sectionID, date)
	if err != nil {
		return nil, fmt.Errorf("list present students: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate present students: %w", err)
	}
	return ids, nil
}

// ListBySection returns all records of a section on a date
func (r *AttendanceRepository) ListBySection(ctx context.Context, sectionID, date string) ([]database.AttendanceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, section_id, to_char(date, 'YYYY-MM-DD'), status, marked_by, score, marked_at
		FROM attendance
		WHERE section_id = $1 AND date = $2::date
		ORDER BY marked_at, id
	`, sectionID, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		var status string
		if err := rows.Scan(
			&rec.ID,
			&rec.StudentID,
			&rec.SectionID,
			&rec.Date,
			&status,
			&rec.MarkedBy,
			&rec.Score,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		rec.Status = database.AttendanceStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// DailyPresentCounts returns one count per day in [from, to], including empty days
func (r *AttendanceRepository) DailyPresentCounts(ctx context.Context, sectionID, from, to string) ([]database.DailyCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(d::date, 'YYYY-MM-DD'), COUNT(a.id)
		FROM generate_series($2::date, $3::date, interval '1 day') AS d
		LEFT JOIN attendance a
			ON a.date = d::date AND a.section_id = $1 AND a.status = 'Present'
		GROUP BY d
		ORDER BY d
	`, sectionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily present counts: %w", err)
	}
	defer rows.Close()

	var counts []database.DailyCount
	for rows.Next() {
		var c database.DailyCount
		if err := rows.Scan(&c.Date, &c.PresentCount); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily counts: %w", err)
	}
	return counts, nil
}

// MarkPresent inserts a Present record or flips an Absent one. The WHERE on the
// conflict branch makes a second mark for the same day a no-op.
func (r *AttendanceRepository) MarkPresent(ctx context.Context, record *database.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Status = database.StatusPresent

	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (id, student_id, section_id, date, status, marked_by, score)
		VALUES ($1, $2, $3, $4::date, 'Present', $5, $6)
		ON CONFLICT (student_id, section_id, date) DO UPDATE SET
			status = 'Present',
			marked_by = EXCLUDED.marked_by,
			score = EXCLUDED.score,
			marked_at = NOW()
		WHERE attendance.status <> 'Present'
		RETURNING id, marked_at
	`,
		record.ID,
		record.StudentID,
		record.SectionID,
		record.Date,
		record.MarkedBy,
		record.Score,
	).Scan(&record.ID, &record.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrAlreadyMarked
	}
	if err != nil {
		return fmt.Errorf("mark present: %w", err)
	}
	return nil
}

// SetStatus creates or overwrites the day's record with the record's status
func (r *AttendanceRepository) SetStatus(ctx context.Context, record *database.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (id, student_id, section_id, date, status, marked_by, score)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7)
		ON CONFLICT (student_id, section_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			marked_by = EXCLUDED.marked_by,
			score = EXCLUDED.score,
			marked_at = NOW()
		RETURNING id, marked_at
	`,
		record.ID,
		record.StudentID,
		record.SectionID,
		record.Date,
		string(record.Status),
		record.MarkedBy,
		record.Score,
	).Scan(&record.ID, &record.Timestamp)
	if err != nil {
		return fmt.Errorf("set attendance status: %w", err)
	}
	return nil
}
