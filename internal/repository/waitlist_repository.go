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

// WaitlistRepository maintains per-section FIFO queues. Every mutation
// locks the section row first so position assignment and renumbering
// serialize per section; active positions stay gapless from 1.
type WaitlistRepository struct {
	db *sqlx.DB
}

// NewWaitlistRepository constructs the repository.
func NewWaitlistRepository(db *sqlx.DB) *WaitlistRepository {
	return &WaitlistRepository{db: db}
}

func lockSection(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	var id string
	if err := tx.GetContext(ctx, &id, `SELECT id FROM sections WHERE id = $1 FOR UPDATE`, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return ErrSectionNotFound
		}
		return fmt.Errorf("lock section: %w", err)
	}
	return nil
}

// Enqueue appends a student to a section's waitlist, assigning the next
// position atomically. Returns ErrAlreadyWaitlisted if an active entry
// exists for the pair.
func (r *WaitlistRepository) Enqueue(ctx context.Context, studentID, sectionID string) (*models.WaitlistEntry, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin enqueue tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockSection(ctx, tx, sectionID); err != nil {
		return nil, err
	}

	var existing int
	err = tx.GetContext(ctx, &existing,
		`SELECT 1 FROM waitlist_entries WHERE student_id = $1 AND section_id = $2 AND status = $3 LIMIT 1`,
		studentID, sectionID, models.WaitlistStatusActive)
	if err == nil {
		return nil, ErrAlreadyWaitlisted
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check waitlist entry: %w", err)
	}

	// In-flight promoted entries still hold their position, so the next
	// position comes from the highest held slot, not an ACTIVE-only count.
	var last int
	if err := tx.GetContext(ctx, &last,
		`SELECT COALESCE(MAX(position), 0) FROM waitlist_entries
         WHERE section_id = $1 AND status IN ($2, $3)`,
		sectionID, models.WaitlistStatusActive, models.WaitlistStatusPromoted); err != nil {
		return nil, fmt.Errorf("last waitlist position: %w", err)
	}

	entry := &models.WaitlistEntry{
		ID:        uuid.NewString(),
		StudentID: studentID,
		SectionID: sectionID,
		Position:  last + 1,
		Status:    models.WaitlistStatusActive,
		AddedAt:   time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO waitlist_entries (id, student_id, section_id, position, status, added_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.StudentID, entry.SectionID, entry.Position, entry.Status, entry.AddedAt); err != nil {
		return nil, fmt.Errorf("insert waitlist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue tx: %w", err)
	}
	return entry, nil
}

// Remove marks the student's active entry REMOVED and closes the gap in
// the remaining active positions.
func (r *WaitlistRepository) Remove(ctx context.Context, studentID, sectionID string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin remove tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockSection(ctx, tx, sectionID); err != nil {
		return err
	}

	var entry models.WaitlistEntry
	err = tx.GetContext(ctx, &entry,
		`SELECT id, student_id, section_id, position, status, added_at
         FROM waitlist_entries WHERE student_id = $1 AND section_id = $2 AND status = $3`,
		studentID, sectionID, models.WaitlistStatusActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotWaitlisted
		}
		return fmt.Errorf("load waitlist entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = $2 WHERE id = $1`,
		entry.ID, models.WaitlistStatusRemoved); err != nil {
		return fmt.Errorf("remove waitlist entry: %w", err)
	}
	if err := renumberQueue(ctx, tx, sectionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove tx: %w", err)
	}
	return nil
}

// PromoteLowest marks the lowest-position active entry PROMOTED and
// returns it. The entry keeps its position until the promotion is
// finalized or reverted, so a failed promotion never loses the
// student's place in line. Returns ErrWaitlistEmpty when no active
// entry remains.
func (r *WaitlistRepository) PromoteLowest(ctx context.Context, sectionID string) (*models.WaitlistEntry, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin promote tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockSection(ctx, tx, sectionID); err != nil {
		return nil, err
	}

	var entry models.WaitlistEntry
	err = tx.GetContext(ctx, &entry,
		`SELECT id, student_id, section_id, position, status, added_at
         FROM waitlist_entries WHERE section_id = $1 AND status = $2
         ORDER BY position LIMIT 1`,
		sectionID, models.WaitlistStatusActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrWaitlistEmpty
		}
		return nil, fmt.Errorf("select lowest entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = $2 WHERE id = $1`,
		entry.ID, models.WaitlistStatusPromoted); err != nil {
		return nil, fmt.Errorf("mark promoted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promote tx: %w", err)
	}
	entry.Status = models.WaitlistStatusPromoted
	return &entry, nil
}

// FinalizePromotion takes the promoted entry out of the queue after the
// student's enrollment succeeded and closes up the remaining positions.
// Position zero marks an entry that no longer holds a place in line.
func (r *WaitlistRepository) FinalizePromotion(ctx context.Context, entry *models.WaitlistEntry) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := lockSection(ctx, tx, entry.SectionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries SET position = 0 WHERE id = $1`,
		entry.ID); err != nil {
		return fmt.Errorf("release promoted position: %w", err)
	}
	if err := renumberQueue(ctx, tx, entry.SectionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}
	return nil
}

// RevertPromotion returns a promoted entry to ACTIVE. The entry kept
// its queue position through any renumbering while the promotion was in
// flight, so the student does not lose their place.
func (r *WaitlistRepository) RevertPromotion(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE waitlist_entries SET status = $2 WHERE id = $1 AND status = $3`,
		entryID, models.WaitlistStatusActive, models.WaitlistStatusPromoted); err != nil {
		return fmt.Errorf("revert promotion: %w", err)
	}
	return nil
}

// FindActivePosition returns the student's active position in a
// section's waitlist. sql.ErrNoRows when not waitlisted.
func (r *WaitlistRepository) FindActivePosition(ctx context.Context, studentID, sectionID string) (int, error) {
	var position int
	err := r.db.GetContext(ctx, &position,
		`SELECT position FROM waitlist_entries WHERE student_id = $1 AND section_id = $2 AND status = $3`,
		studentID, sectionID, models.WaitlistStatusActive)
	if err != nil {
		return 0, err
	}
	return position, nil
}

// ListByStudent returns a student's active waitlist entries with course
// context, in arrival order.
func (r *WaitlistRepository) ListByStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error) {
	const query = `SELECT w.id, w.student_id, w.section_id, w.position, w.status, w.added_at,
        s.section_number, s.term_id, c.course_number, c.title AS course_title, d.code AS dept_code
        FROM waitlist_entries w
        JOIN sections s ON s.id = w.section_id
        JOIN courses c ON c.id = s.course_id
        JOIN departments d ON d.id = c.dept_id
        WHERE w.student_id = $1 AND w.status = $2
        ORDER BY w.added_at`

	var entries []models.WaitlistEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, studentID, models.WaitlistStatusActive); err != nil {
		return nil, fmt.Errorf("list student waitlists: %w", err)
	}
	return entries, nil
}

// renumberQueue recomputes gapless positions for every entry still in
// the section's queue, including in-flight promoted entries that hold
// their place. Runs inside the caller's transaction with the section
// lock held; recomputing from scratch stays correct when queue states
// interleave, unlike shifting by one around a vacated slot.
func renumberQueue(ctx context.Context, tx *sqlx.Tx, sectionID string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE waitlist_entries w SET position = ranked.new_position
         FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY position) AS new_position
               FROM waitlist_entries
               WHERE section_id = $1 AND status IN ($2, $3) AND position > 0) ranked
         WHERE w.id = ranked.id AND w.position <> ranked.new_position`,
		sectionID, models.WaitlistStatusActive, models.WaitlistStatusPromoted); err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}
	return nil
}
