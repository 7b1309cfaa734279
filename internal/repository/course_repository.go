package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ocrs/registration-api/internal/models"
)

// CourseRepository handles read access to the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns active catalog courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c
JOIN departments d ON d.id = c.dept_id`
	conditions := []string{"c.is_active = TRUE"}
	var args []interface{}

	if filter.DeptID != "" {
		args = append(args, filter.DeptID)
		conditions = append(conditions, fmt.Sprintf("c.dept_id = $%d", len(args)))
	}
	if filter.MinCredits != nil {
		args = append(args, *filter.MinCredits)
		conditions = append(conditions, fmt.Sprintf("c.credits >= $%d", len(args)))
	}
	if filter.MaxCredits != nil {
		args = append(args, *filter.MaxCredits)
		conditions = append(conditions, fmt.Sprintf("c.credits <= $%d", len(args)))
	}
	if filter.Level != "" {
		args = append(args, filter.Level+"%")
		conditions = append(conditions, fmt.Sprintf("c.course_number LIKE $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(c.title ILIKE $%d OR c.course_number ILIKE $%d OR c.description ILIKE $%d OR d.code ILIKE $%d)", n, n, n, n))
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.dept_id, c.course_number, c.title, c.description, c.credits, c.is_active,
        c.created_at, c.updated_at, d.code AS dept_code, d.name AS dept_name,
        (SELECT COUNT(*) FROM sections s WHERE s.course_id = c.id) AS section_count
        %s ORDER BY d.code, c.course_number LIMIT %d OFFSET %d`, base+clause, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course with department context.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.dept_id, c.course_number, c.title, c.description, c.credits, c.is_active,
        c.created_at, c.updated_at, d.code AS dept_code, d.name AS dept_name,
        (SELECT COUNT(*) FROM sections s WHERE s.course_id = c.id) AS section_count
        FROM courses c
        JOIN departments d ON d.id = c.dept_id
        WHERE c.id = $1`
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListPrerequisites returns the prerequisite courses required before
// enrolling in the given course.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	const query = `SELECT c.id AS course_id, c.title, c.course_number, d.code AS dept_code
        FROM course_prerequisites cp
        JOIN courses c ON c.id = cp.prereq_course_id
        JOIN departments d ON d.id = c.dept_id
        WHERE cp.course_id = $1
        ORDER BY d.code, c.course_number`

	var prereqs []models.Prerequisite
	if err := r.db.SelectContext(ctx, &prereqs, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return prereqs, nil
}
