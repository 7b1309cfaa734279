package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ocrs/registration-api/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentDetailQuery = `SELECT st.id, st.user_id, st.student_number, st.major, st.enrollment_year,
        st.created_at, st.updated_at, u.email, u.full_name, u.active
        FROM students st
        JOIN users u ON u.id = st.user_id`

// FindByID returns a student profile with account context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, studentDetailQuery+` WHERE st.id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByUserID returns the student profile owned by an account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, studentDetailQuery+` WHERE st.user_id = $1`, userID); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create persists a new student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
		student.UpdatedAt = now
	}
	const query = `INSERT INTO students (id, user_id, student_number, major, enrollment_year, created_at, updated_at)
        VALUES (:id, :user_id, :student_number, :major, :enrollment_year, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}
