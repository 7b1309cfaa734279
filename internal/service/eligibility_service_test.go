package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrs/registration-api/internal/models"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
)

type mockPrereqReader struct {
	prereqs map[string][]models.Prerequisite
}

func (m *mockPrereqReader) ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	return m.prereqs[courseID], nil
}

type mockRecordReader struct {
	passed     map[string]bool
	enrolled   []models.EnrolledSection
	creditLoad float64
}

func (m *mockRecordReader) PassedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error) {
	return m.passed, nil
}

func (m *mockRecordReader) ListEnrolledSections(ctx context.Context, studentID, termID string) ([]models.EnrolledSection, error) {
	return m.enrolled, nil
}

func (m *mockRecordReader) CreditLoad(ctx context.Context, studentID, termID string) (float64, error) {
	return m.creditLoad, nil
}

func testCourse(id string, credits float64) *models.CourseDetail {
	return &models.CourseDetail{
		Course:   models.Course{ID: id, CourseNumber: "201", Title: "Data Structures", Credits: credits},
		DeptCode: "CS",
	}
}

func testSection(id, termID string, meetings ...models.MeetingTime) *models.SectionDetail {
	return &models.SectionDetail{
		Section:      models.Section{ID: id, TermID: termID, SectionNumber: "001"},
		MeetingTimes: meetings,
	}
}

func TestCheckEligibilityPasses(t *testing.T) {
	svc := NewEligibilityService(
		&mockPrereqReader{prereqs: map[string][]models.Prerequisite{
			"course-1": {{CourseID: "course-0", DeptCode: "CS", CourseNumber: "101"}},
		}},
		&mockRecordReader{passed: map[string]bool{"course-0": true}, creditLoad: 12},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1"))
	assert.NoError(t, err)
}

func TestCheckEligibilityMissingPrerequisite(t *testing.T) {
	svc := NewEligibilityService(
		&mockPrereqReader{prereqs: map[string][]models.Prerequisite{
			"course-1": {{CourseID: "course-0", DeptCode: "CS", CourseNumber: "101"}},
		}},
		&mockRecordReader{passed: map[string]bool{}},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "PREREQUISITES_NOT_MET", appErr.Code)

	details, ok := appErr.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"CS 101"}, details["missing_prerequisites"])
}

func TestCheckEligibilityScheduleConflict(t *testing.T) {
	wanted := models.MeetingTime{DayOfWeek: "MON", StartMin: 600, EndMin: 690}
	svc := NewEligibilityService(
		&mockPrereqReader{},
		&mockRecordReader{
			enrolled: []models.EnrolledSection{{
				SectionID:     "sec-other",
				SectionNumber: "002",
				CourseNumber:  "310",
				CourseTitle:   "Algorithms",
				DeptCode:      "CS",
				MeetingTimes:  []models.MeetingTime{{DayOfWeek: "MON", StartMin: 660, EndMin: 750}},
			}},
		},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1", wanted))
	require.Error(t, err)
	assert.Equal(t, "SCHEDULE_CONFLICT", appErrors.FromError(err).Code)
}

func TestCheckEligibilityBackToBackMeetingsAllowed(t *testing.T) {
	wanted := models.MeetingTime{DayOfWeek: "MON", StartMin: 600, EndMin: 660}
	svc := NewEligibilityService(
		&mockPrereqReader{},
		&mockRecordReader{
			enrolled: []models.EnrolledSection{{
				SectionID:    "sec-other",
				MeetingTimes: []models.MeetingTime{{DayOfWeek: "MON", StartMin: 660, EndMin: 720}},
			}},
			creditLoad: 0,
		},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1", wanted))
	assert.NoError(t, err)
}

func TestCheckEligibilityCreditCeiling(t *testing.T) {
	svc := NewEligibilityService(
		&mockPrereqReader{},
		&mockRecordReader{creditLoad: 16},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "CREDIT_LIMIT_EXCEEDED", appErr.Code)

	detail, ok := appErr.Details.(CreditLimitDetail)
	require.True(t, ok)
	assert.Equal(t, 16.0, detail.CurrentCredits)
	assert.Equal(t, 3.0, detail.CourseCredits)
	assert.Equal(t, 18.0, detail.MaxCredits)
}

func TestCheckEligibilityExactCeilingAllowed(t *testing.T) {
	svc := NewEligibilityService(
		&mockPrereqReader{},
		&mockRecordReader{creditLoad: 15},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1"))
	assert.NoError(t, err)
}

// The rules run in a fixed order, a missing prerequisite wins over a
// schedule conflict even when both apply.
func TestCheckEligibilityRuleOrder(t *testing.T) {
	wanted := models.MeetingTime{DayOfWeek: "MON", StartMin: 600, EndMin: 690}
	svc := NewEligibilityService(
		&mockPrereqReader{prereqs: map[string][]models.Prerequisite{
			"course-1": {{CourseID: "course-0", DeptCode: "CS", CourseNumber: "101"}},
		}},
		&mockRecordReader{
			passed: map[string]bool{},
			enrolled: []models.EnrolledSection{{
				SectionID:    "sec-other",
				MeetingTimes: []models.MeetingTime{{DayOfWeek: "MON", StartMin: 630, EndMin: 720}},
			}},
			creditLoad: 17,
		},
		18, nil,
	)

	err := svc.CheckEligibility(context.Background(), "stu-1", testCourse("course-1", 3), testSection("sec-1", "term-1", wanted))
	require.Error(t, err)
	assert.Equal(t, "PREREQUISITES_NOT_MET", appErrors.FromError(err).Code)
}
