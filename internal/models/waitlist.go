package models

import "time"

// WaitlistStatus represents the lifecycle of a waitlist entry.
type WaitlistStatus string

// Possible waitlist entry statuses.
const (
	WaitlistStatusActive   WaitlistStatus = "ACTIVE"
	WaitlistStatusPromoted WaitlistStatus = "PROMOTED"
	WaitlistStatusRemoved  WaitlistStatus = "REMOVED"
)

// WaitlistEntry queues a student for a full section. Active positions
// within a section are gapless, ascending from 1 in arrival order.
type WaitlistEntry struct {
	ID        string         `db:"id" json:"id"`
	StudentID string         `db:"student_id" json:"student_id"`
	SectionID string         `db:"section_id" json:"section_id"`
	Position  int            `db:"position" json:"position"`
	Status    WaitlistStatus `db:"status" json:"status"`
	AddedAt   time.Time      `db:"added_at" json:"added_at"`
}

// WaitlistEntryDetail enriches WaitlistEntry with course context.
type WaitlistEntryDetail struct {
	WaitlistEntry
	SectionNumber string `db:"section_number" json:"section_number"`
	CourseNumber  string `db:"course_number" json:"course_number"`
	CourseTitle   string `db:"course_title" json:"course_title"`
	DeptCode      string `db:"dept_code" json:"dept_code"`
	TermID        string `db:"term_id" json:"term_id"`
}
