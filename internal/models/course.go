package models

import "time"

// Department groups courses under an academic unit.
type Department struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Course is a catalog entry offered through one or more sections.
type Course struct {
	ID           string    `db:"id" json:"id"`
	DeptID       string    `db:"dept_id" json:"dept_id"`
	CourseNumber string    `db:"course_number" json:"course_number"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Credits      float64   `db:"credits" json:"credits"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with department info.
type CourseDetail struct {
	Course
	DeptCode     string `db:"dept_code" json:"dept_code"`
	DeptName     string `db:"dept_name" json:"dept_name"`
	SectionCount int    `db:"section_count" json:"section_count"`
}

// CourseCode renders the catalog code, e.g. "CS 201".
func (c *CourseDetail) CourseCode() string {
	return c.DeptCode + " " + c.CourseNumber
}

// Prerequisite names a course required before enrolling in another.
type Prerequisite struct {
	CourseID     string `db:"course_id" json:"course_id"`
	Title        string `db:"title" json:"title"`
	DeptCode     string `db:"dept_code" json:"dept_code"`
	CourseNumber string `db:"course_number" json:"course_number"`
}

// CourseCode renders the prerequisite's catalog code.
func (p *Prerequisite) CourseCode() string {
	return p.DeptCode + " " + p.CourseNumber
}

// CourseFilter provides filters for catalog listing.
type CourseFilter struct {
	DeptID     string
	MinCredits *float64
	MaxCredits *float64
	Level      string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
