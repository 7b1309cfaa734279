package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrs/registration-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func expectSectionLock(mock sqlmock.Sqlmock, sectionID string, capacity int, status models.SectionStatus) {
	mock.ExpectQuery("SELECT capacity, status FROM sections WHERE id = \\$1 FOR UPDATE").
		WithArgs(sectionID).
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "status"}).AddRow(capacity, string(status)))
}

func TestReserveSeatInsertsNewEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, models.SectionStatusScheduled)
	mock.ExpectQuery("SELECT id, student_id, section_id, status, grade, enrolled_at, dropped_at").
		WithArgs("stu-1", "sec-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "stu-1", "sec-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.ReserveSeat(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatSectionFull(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, models.SectionStatusScheduled)
	mock.ExpectQuery("SELECT id, student_id, section_id, status, grade, enrolled_at, dropped_at").
		WithArgs("stu-1", "sec-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	_, err := repo.ReserveSeat(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrSectionFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatReactivatesDroppedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	droppedAt := time.Now().UTC().Add(-time.Hour)
	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, models.SectionStatusScheduled)
	mock.ExpectQuery("SELECT id, student_id, section_id, status, grade, enrolled_at, dropped_at").
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "dropped_at"}).
			AddRow("enr-1", "stu-1", "sec-1", string(models.EnrollmentStatusDropped), nil, droppedAt.Add(-time.Hour), droppedAt))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, enrolled_at = $3, dropped_at = NULL WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enrollment, err := repo.ReserveSeat(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Nil(t, enrollment.DroppedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatAlreadyEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, models.SectionStatusScheduled)
	mock.ExpectQuery("SELECT id, student_id, section_id, status, grade, enrolled_at, dropped_at").
		WithArgs("stu-1", "sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "grade", "enrolled_at", "dropped_at"}).
			AddRow("enr-1", "stu-1", "sec-1", string(models.EnrollmentStatusEnrolled), nil, time.Now(), nil))
	mock.ExpectRollback()

	_, err := repo.ReserveSeat(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatCancelledSection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, "sec-1", 30, models.SectionStatusCancelled)
	mock.ExpectRollback()

	_, err := repo.ReserveSeat(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrSectionUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveSeatUnknownSection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity, status FROM sections WHERE id = \\$1 FOR UPDATE").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ReserveSeat(context.Background(), "stu-1", "missing")
	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropActiveEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status = \\$3, dropped_at = \\$4").
		WithArgs("stu-1", "sec-1", models.EnrollmentStatusDropped, sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	droppedAt, err := repo.Drop(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.NotNil(t, droppedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropWithoutActiveEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET status = \\$3, dropped_at = \\$4").
		WithArgs("stu-1", "sec-1", models.EnrollmentStatusDropped, sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Drop(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrNotEnrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditLoadSumsActiveEnrollments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(c.credits), 0)")).
		WithArgs("stu-1", "term-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(15.0))

	total, err := repo.CreditLoad(context.Background(), "stu-1", "term-1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPassedCourseIDsIncludesNullGrades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT DISTINCT s.course_id").
		WithArgs("stu-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"course_id"}).AddRow("course-0").AddRow("course-1"))

	passed, err := repo.PassedCourseIDs(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, passed["course-0"])
	assert.True(t, passed["course-1"])
	assert.False(t, passed["course-9"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
