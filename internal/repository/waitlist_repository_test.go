package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrs/registration-api/internal/models"
)

func expectWaitlistSectionLock(mock sqlmock.Sqlmock, sectionID string) {
	mock.ExpectQuery("SELECT id FROM sections WHERE id = \\$1 FOR UPDATE").
		WithArgs(sectionID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(sectionID))
}

func TestEnqueueAssignsNextPosition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("stu-1", "sec-1", models.WaitlistStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) FROM waitlist_entries")).
		WithArgs("sec-1", models.WaitlistStatusActive, models.WaitlistStatusPromoted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(2))
	mock.ExpectExec("INSERT INTO waitlist_entries").
		WithArgs(sqlmock.AnyArg(), "stu-1", "sec-1", 3, models.WaitlistStatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.Enqueue(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Position)
	assert.Equal(t, models.WaitlistStatusActive, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// With queue [A:1 PROMOTED, B:2 ACTIVE, C:3 ACTIVE], an enqueue must
// take position 4: the promoted entry still holds position 1, and an
// ACTIVE-only count of 2 would hand out position 3, duplicating C.
func TestEnqueueDuringPromotionTakesPositionAfterPromotedEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("stu-4", "sec-1", models.WaitlistStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(position), 0) FROM waitlist_entries")).
		WithArgs("sec-1", models.WaitlistStatusActive, models.WaitlistStatusPromoted).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec("INSERT INTO waitlist_entries").
		WithArgs(sqlmock.AnyArg(), "stu-4", "sec-1", 4, models.WaitlistStatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.Enqueue(context.Background(), "stu-4", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 4, entry.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueRejectsDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT 1 FROM waitlist_entries").
		WithArgs("stu-1", "sec-1", models.WaitlistStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Enqueue(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrAlreadyWaitlisted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveClosesGap(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT id, student_id, section_id, position, status, added_at").
		WithArgs("stu-1", "sec-1", models.WaitlistStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "position", "status", "added_at"}).
			AddRow("wl-2", "stu-1", "sec-1", 2, string(models.WaitlistStatusActive), time.Now()))
	mock.ExpectExec("UPDATE waitlist_entries SET status = \\$2 WHERE id = \\$1").
		WithArgs("wl-2", models.WaitlistStatusRemoved).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE waitlist_entries w SET position = ranked.new_position").
		WithArgs("sec-1", models.WaitlistStatusActive, models.WaitlistStatusPromoted).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Remove(context.Background(), "stu-1", "sec-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveNotWaitlisted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT id, student_id, section_id, position, status, added_at").
		WithArgs("stu-1", "sec-1", models.WaitlistStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Remove(context.Background(), "stu-1", "sec-1")
	assert.ErrorIs(t, err, ErrNotWaitlisted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Promotion marks the entry PROMOTED but does not renumber; the
// remaining positions only close up when the promotion is finalized.
func TestPromoteLowestKeepsPosition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT id, student_id, section_id, position, status, added_at").
		WithArgs("sec-1", models.WaitlistStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "position", "status", "added_at"}).
			AddRow("wl-1", "stu-2", "sec-1", 1, string(models.WaitlistStatusActive), time.Now()))
	mock.ExpectExec("UPDATE waitlist_entries SET status = \\$2 WHERE id = \\$1").
		WithArgs("wl-1", models.WaitlistStatusPromoted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.PromoteLowest(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, "wl-1", entry.ID)
	assert.Equal(t, 1, entry.Position)
	assert.Equal(t, models.WaitlistStatusPromoted, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPromoteLowestEmptyWaitlist(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectQuery("SELECT id, student_id, section_id, position, status, added_at").
		WithArgs("sec-1", models.WaitlistStatusActive).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.PromoteLowest(context.Background(), "sec-1")
	assert.ErrorIs(t, err, ErrWaitlistEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Finalizing releases the promoted entry's slot before renumbering, so
// the recomputed positions never count the departing student.
func TestFinalizePromotionReleasesSlotAndRenumbers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectBegin()
	expectWaitlistSectionLock(mock, "sec-1")
	mock.ExpectExec("UPDATE waitlist_entries SET position = 0 WHERE id = \\$1").
		WithArgs("wl-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE waitlist_entries w SET position = ranked.new_position").
		WithArgs("sec-1", models.WaitlistStatusActive, models.WaitlistStatusPromoted).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	entry := &models.WaitlistEntry{ID: "wl-1", SectionID: "sec-1", Position: 1}
	require.NoError(t, repo.FinalizePromotion(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevertPromotionRestoresActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectExec("UPDATE waitlist_entries SET status = \\$2 WHERE id = \\$1 AND status = \\$3").
		WithArgs("wl-1", models.WaitlistStatusActive, models.WaitlistStatusPromoted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevertPromotion(context.Background(), "wl-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActivePosition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewWaitlistRepository(db)

	mock.ExpectQuery("SELECT position FROM waitlist_entries").
		WithArgs("stu-1", "sec-1", models.WaitlistStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(4))

	position, err := repo.FindActivePosition(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 4, position)
	assert.NoError(t, mock.ExpectationsWereMet())
}
