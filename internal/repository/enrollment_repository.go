package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ocrs/registration-api/internal/models"
)

// enrollmentDetailColumns is shared by the detail queries.
const enrollmentDetailColumns = `e.id, e.student_id, e.section_id, e.status, e.grade, e.enrolled_at, e.dropped_at,
        s.section_number, s.location, s.instructor, s.term_id,
        c.id AS course_id, c.course_number, c.title AS course_title, c.credits,
        d.code AS dept_code, t.name AS term_name`

const enrollmentDetailJoins = `FROM enrollments e
JOIN sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id
JOIN departments d ON d.id = c.dept_id
JOIN terms t ON t.id = s.term_id`

// EnrollmentRepository handles persistence of enrollments, including the
// atomic seat reservation that guards the capacity invariant.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// ReserveSeat atomically claims one seat in a section for a student. The
// count-and-insert runs in a single serializable transaction anchored on
// the section row lock, so two callers racing for the last seat can
// never both commit. A previously dropped enrollment for the pair is
// reactivated instead of duplicated.
//
// Failure modes: ErrSectionNotFound, ErrSectionUnavailable,
// ErrAlreadyEnrolled, ErrSectionFull, or a retryable serialization error
// (see IsRetryable).
func (r *EnrollmentRepository) ReserveSeat(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var section struct {
		Capacity int                  `db:"capacity"`
		Status   models.SectionStatus `db:"status"`
	}
	if err := tx.GetContext(ctx, &section,
		`SELECT capacity, status FROM sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("lock section: %w", err)
	}
	if section.Status != models.SectionStatusScheduled {
		return nil, ErrSectionUnavailable
	}

	var existing models.Enrollment
	haveExisting := true
	err = tx.GetContext(ctx, &existing,
		`SELECT id, student_id, section_id, status, grade, enrolled_at, dropped_at
         FROM enrollments WHERE student_id = $1 AND section_id = $2`, studentID, sectionID)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("load existing enrollment: %w", err)
		}
		haveExisting = false
	}
	if haveExisting && existing.Status == models.EnrollmentStatusEnrolled {
		return nil, ErrAlreadyEnrolled
	}

	var enrolled int
	if err := tx.GetContext(ctx, &enrolled,
		`SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`,
		sectionID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}
	if enrolled >= section.Capacity {
		return nil, ErrSectionFull
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		StudentID:  studentID,
		SectionID:  sectionID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: now,
	}
	if haveExisting {
		// Re-enroll: reactivate the dropped row, never insert a second one.
		enrollment.ID = existing.ID
		enrollment.Grade = existing.Grade
		if _, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET status = $2, enrolled_at = $3, dropped_at = NULL WHERE id = $1`,
			existing.ID, models.EnrollmentStatusEnrolled, now); err != nil {
			return nil, fmt.Errorf("reactivate enrollment: %w", err)
		}
	} else {
		enrollment.ID = uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO enrollments (id, student_id, section_id, status, enrolled_at)
             VALUES ($1, $2, $3, $4, $5)`,
			enrollment.ID, studentID, sectionID, models.EnrollmentStatusEnrolled, now); err != nil {
			return nil, fmt.Errorf("insert enrollment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}
	return enrollment, nil
}

// Drop transitions an active enrollment to DROPPED. Returns
// ErrNotEnrolled when no active row exists for the pair.
func (r *EnrollmentRepository) Drop(ctx context.Context, studentID, sectionID string) (*time.Time, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = $3, dropped_at = $4
         WHERE student_id = $1 AND section_id = $2 AND status = $5`,
		studentID, sectionID, models.EnrollmentStatusDropped, now, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, fmt.Errorf("drop enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("drop enrollment rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotEnrolled
	}
	return &now, nil
}

// FindDetailByID returns an enrollment with catalog context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.id = $1`, enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByStudent returns a student's enrollments, optionally filtered by
// term and status, newest term first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE e.student_id = $1`, enrollmentDetailColumns, enrollmentDetailJoins)
	args := []interface{}{filter.StudentID}
	if filter.TermID != "" {
		args = append(args, filter.TermID)
		query += fmt.Sprintf(" AND s.term_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND e.status = $%d", len(args))
	}
	query += " ORDER BY t.year DESC, t.name, d.code, c.course_number"

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListEnrolledSections returns the sections a student is actively
// enrolled in for a term, with their meeting times, for conflict checks.
func (r *EnrollmentRepository) ListEnrolledSections(ctx context.Context, studentID, termID string) ([]models.EnrolledSection, error) {
	const query = `SELECT s.id AS section_id, s.section_number, c.id AS course_id, c.course_number,
        c.title AS course_title, d.code AS dept_code
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        JOIN departments d ON d.id = c.dept_id
        WHERE e.student_id = $1 AND s.term_id = $2 AND e.status = $3`

	rows, err := r.db.QueryxContext(ctx, query, studentID, termID, models.EnrollmentStatusEnrolled)
	if err != nil {
		return nil, fmt.Errorf("list enrolled sections: %w", err)
	}
	defer rows.Close()

	var sections []models.EnrolledSection
	ids := make([]string, 0, 8)
	for rows.Next() {
		var sec models.EnrolledSection
		if err := rows.StructScan(&sec); err != nil {
			return nil, fmt.Errorf("scan enrolled section: %w", err)
		}
		sections = append(sections, sec)
		ids = append(ids, sec.SectionID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrolled sections: %w", err)
	}
	if len(sections) == 0 {
		return sections, nil
	}

	meetings, err := meetingTimesFor(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		sections[i].MeetingTimes = meetings[sections[i].SectionID]
	}
	return sections, nil
}

// PassedCourseIDs returns the course IDs the student has a non-dropped
// enrollment in with a passing or still-pending grade.
func (r *EnrollmentRepository) PassedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error) {
	const query = `SELECT DISTINCT s.course_id
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        WHERE e.student_id = $1
        AND e.status IN ($2, $3)
        AND (e.grade IS NULL OR e.grade IN ('A', 'B', 'C', 'D', 'P'))`

	rows, err := r.db.QueryxContext(ctx, query, studentID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("list passed courses: %w", err)
	}
	defer rows.Close()

	passed := make(map[string]bool)
	for rows.Next() {
		var courseID string
		if err := rows.Scan(&courseID); err != nil {
			return nil, fmt.Errorf("scan passed course: %w", err)
		}
		passed[courseID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passed courses: %w", err)
	}
	return passed, nil
}

// CreditLoad sums the credits of a student's active enrollments in a term.
func (r *EnrollmentRepository) CreditLoad(ctx context.Context, studentID, termID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0)
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.student_id = $1 AND s.term_id = $2 AND e.status = $3`

	var total float64
	if err := r.db.GetContext(ctx, &total, query, studentID, termID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("sum credit load: %w", err)
	}
	return total, nil
}
