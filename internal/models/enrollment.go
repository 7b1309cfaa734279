package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// PassingGrades are the grades that satisfy a prerequisite. A NULL grade
// also satisfies it: in-progress coursework counts provisionally.
var PassingGrades = map[string]struct{}{
	"A": {}, "B": {}, "C": {}, "D": {}, "P": {},
}

// Enrollment records a student's seat in a section. At most one row per
// (student, section) pair; a dropped row is reactivated on re-enroll.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	SectionID  string           `db:"section_id" json:"section_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt  *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with section, course and term info.
type EnrollmentDetail struct {
	Enrollment
	SectionNumber string  `db:"section_number" json:"section_number"`
	Location      string  `db:"location" json:"location"`
	CourseID      string  `db:"course_id" json:"course_id"`
	CourseNumber  string  `db:"course_number" json:"course_number"`
	CourseTitle   string  `db:"course_title" json:"course_title"`
	Credits       float64 `db:"credits" json:"credits"`
	DeptCode      string  `db:"dept_code" json:"dept_code"`
	TermID        string  `db:"term_id" json:"term_id"`
	TermName      string  `db:"term_name" json:"term_name"`
	Instructor    string  `db:"instructor" json:"instructor"`
}

// EnrolledSection couples an active enrollment with its meeting times,
// for schedule-conflict checks.
type EnrolledSection struct {
	SectionID     string        `json:"section_id"`
	SectionNumber string        `json:"section_number"`
	CourseID      string        `json:"course_id"`
	CourseNumber  string        `json:"course_number"`
	CourseTitle   string        `json:"course_title"`
	DeptCode      string        `json:"dept_code"`
	MeetingTimes  []MeetingTime `json:"meeting_times"`
}

// EnrollmentFilter provides filters for listing a student's enrollments.
type EnrollmentFilter struct {
	StudentID string
	TermID    string
	Status    EnrollmentStatus
}

// Outcomes of a successful Enroll call.
const (
	EnrollOutcomeEnrolled   = "enrolled"
	EnrollOutcomeWaitlisted = "waitlisted"
)

// EnrollmentResult is the success shape returned by the enrollment
// lifecycle. Waitlisting is a deferred success, not an error.
type EnrollmentResult struct {
	Status           string            `json:"status"`
	Enrollment       *EnrollmentDetail `json:"enrollment,omitempty"`
	WaitlistPosition int               `json:"waitlist_position,omitempty"`
}

// DropResult is the success shape returned by Drop.
type DropResult struct {
	Status    string     `json:"status"`
	DroppedAt *time.Time `json:"dropped_at,omitempty"`
}
