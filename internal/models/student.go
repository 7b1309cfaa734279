package models

import "time"

// Student represents a learner's registration profile. Identity is
// immutable; the enrollment set hanging off it is not.
type Student struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	StudentNumber  string    `db:"student_number" json:"student_number"`
	Major          string    `db:"major" json:"major"`
	EnrollmentYear int       `db:"enrollment_year" json:"enrollment_year"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the account row onto the profile.
type StudentDetail struct {
	Student
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
	Active   bool   `db:"active" json:"active"`
}
