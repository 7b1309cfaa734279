package models

import (
	"fmt"
	"time"
)

// SectionStatus represents the lifecycle of a section.
type SectionStatus string

// Possible section statuses.
const (
	SectionStatusScheduled SectionStatus = "SCHEDULED"
	SectionStatusCancelled SectionStatus = "CANCELLED"
	SectionStatusClosed    SectionStatus = "CLOSED"
)

// Section is one scheduled offering of a course within a term. Capacity
// is fixed; the enrolled count is always derived from enrollment rows.
type Section struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	TermID        string        `db:"term_id" json:"term_id"`
	SectionNumber string        `db:"section_number" json:"section_number"`
	Instructor    string        `db:"instructor" json:"instructor"`
	Location      string        `db:"location" json:"location"`
	Capacity      int           `db:"capacity" json:"capacity"`
	Status        SectionStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// MeetingTime is a weekly meeting interval. Start and End are minutes
// from midnight; the interval is half-open, [Start, End).
type MeetingTime struct {
	SectionID string `db:"section_id" json:"-"`
	DayOfWeek string `db:"day_of_week" json:"day_of_week"`
	StartMin  int    `db:"start_min" json:"start_min"`
	EndMin    int    `db:"end_min" json:"end_min"`
}

// Overlaps reports whether two meeting intervals collide. Back-to-back
// meetings (10:00-11:00 then 11:00-12:00) do not.
func (m MeetingTime) Overlaps(other MeetingTime) bool {
	if m.DayOfWeek != other.DayOfWeek {
		return false
	}
	return m.StartMin < other.EndMin && other.StartMin < m.EndMin
}

// TimeRange renders the interval as "10:00-11:30".
func (m MeetingTime) TimeRange() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", m.StartMin/60, m.StartMin%60, m.EndMin/60, m.EndMin%60)
}

// SectionDetail enriches Section with course, term and seat info.
type SectionDetail struct {
	Section
	CourseTitle   string        `db:"course_title" json:"course_title"`
	CourseNumber  string        `db:"course_number" json:"course_number"`
	DeptCode      string        `db:"dept_code" json:"dept_code"`
	Credits       float64       `db:"credits" json:"credits"`
	TermName      string        `db:"term_name" json:"term_name"`
	EnrolledCount int           `db:"enrolled_count" json:"enrolled_count"`
	WaitlistCount int           `db:"waitlist_count" json:"waitlist_count"`
	MeetingTimes  []MeetingTime `json:"meeting_times"`
}

// SeatsAvailable returns remaining capacity, never negative.
func (s *SectionDetail) SeatsAvailable() int {
	free := s.Capacity - s.EnrolledCount
	if free < 0 {
		return 0
	}
	return free
}
