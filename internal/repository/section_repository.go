package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ocrs/registration-api/internal/models"
)

// SectionRepository handles read access to sections and their meeting
// times. The enrollment engine consumes it as its catalog reader.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a bare section row.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, term_id, section_number, instructor, location, capacity, status, created_at, updated_at
        FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindDetailByID returns a section with course, term, seat and waitlist
// counts plus meeting times.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.course_id, s.term_id, s.section_number, s.instructor, s.location,
        s.capacity, s.status, s.created_at, s.updated_at,
        c.title AS course_title, c.course_number, c.credits, d.code AS dept_code, t.name AS term_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ENROLLED') AS enrolled_count,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.section_id = s.id AND w.status = 'ACTIVE') AS waitlist_count
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN departments d ON d.id = c.dept_id
        JOIN terms t ON t.id = s.term_id
        WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}

	meetings, err := meetingTimesFor(ctx, r.db, []string{id})
	if err != nil {
		return nil, err
	}
	detail.MeetingTimes = meetings[id]
	return &detail, nil
}

// ListByCourse returns the sections of a course, optionally scoped to a term.
func (r *SectionRepository) ListByCourse(ctx context.Context, courseID, termID string) ([]models.SectionDetail, error) {
	query := `SELECT s.id, s.course_id, s.term_id, s.section_number, s.instructor, s.location,
        s.capacity, s.status, s.created_at, s.updated_at,
        c.title AS course_title, c.course_number, c.credits, d.code AS dept_code, t.name AS term_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status = 'ENROLLED') AS enrolled_count,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.section_id = s.id AND w.status = 'ACTIVE') AS waitlist_count
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN departments d ON d.id = c.dept_id
        JOIN terms t ON t.id = s.term_id
        WHERE s.course_id = $1`
	args := []interface{}{courseID}
	if termID != "" {
		args = append(args, termID)
		query += fmt.Sprintf(" AND s.term_id = $%d", len(args))
	}
	query += " ORDER BY s.section_number"

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, fmt.Errorf("list course sections: %w", err)
	}
	if len(sections) == 0 {
		return sections, nil
	}

	ids := make([]string, len(sections))
	for i := range sections {
		ids[i] = sections[i].ID
	}
	meetings, err := meetingTimesFor(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		sections[i].MeetingTimes = meetings[sections[i].ID]
	}
	return sections, nil
}

// MeetingTimes returns the weekly meeting intervals of one section.
func (r *SectionRepository) MeetingTimes(ctx context.Context, sectionID string) ([]models.MeetingTime, error) {
	meetings, err := meetingTimesFor(ctx, r.db, []string{sectionID})
	if err != nil {
		return nil, err
	}
	return meetings[sectionID], nil
}

// meetingTimesFor loads meeting times for a batch of sections keyed by
// section ID. Shared with the enrollment repository.
func meetingTimesFor(ctx context.Context, db *sqlx.DB, sectionIDs []string) (map[string][]models.MeetingTime, error) {
	if len(sectionIDs) == 0 {
		return map[string][]models.MeetingTime{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT section_id, day_of_week, start_min, end_min FROM section_meetings WHERE section_id IN (?) ORDER BY day_of_week, start_min`,
		sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build meeting times query: %w", err)
	}
	query = db.Rebind(query)

	var meetings []models.MeetingTime
	if err := db.SelectContext(ctx, &meetings, query, args...); err != nil {
		return nil, fmt.Errorf("list meeting times: %w", err)
	}

	bySection := make(map[string][]models.MeetingTime, len(sectionIDs))
	for _, m := range meetings {
		bySection[m.SectionID] = append(bySection[m.SectionID], m)
	}
	return bySection, nil
}
