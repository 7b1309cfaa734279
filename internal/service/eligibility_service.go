package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ocrs/registration-api/internal/models"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
)

type prerequisiteReader interface {
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error)
}

type studentRecordReader interface {
	PassedCourseIDs(ctx context.Context, studentID string) (map[string]bool, error)
	ListEnrolledSections(ctx context.Context, studentID, termID string) ([]models.EnrolledSection, error)
	CreditLoad(ctx context.Context, studentID, termID string) (float64, error)
}

// EligibilityService evaluates whether a student may enroll in a
// section: prerequisites, schedule conflicts, then the credit ceiling,
// in that fixed order. The first failure wins so error messages stay
// deterministic.
type EligibilityService struct {
	courses       prerequisiteReader
	records       studentRecordReader
	creditCeiling float64
	logger        *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(courses prerequisiteReader, records studentRecordReader, creditCeiling float64, logger *zap.Logger) *EligibilityService {
	if creditCeiling <= 0 {
		creditCeiling = 18
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{courses: courses, records: records, creditCeiling: creditCeiling, logger: logger}
}

// ScheduleConflictDetail names the colliding section in a conflict verdict.
type ScheduleConflictDetail struct {
	CourseCode    string `json:"course_code"`
	CourseTitle   string `json:"course_title"`
	SectionNumber string `json:"section_number"`
	DayOfWeek     string `json:"day_of_week"`
	TimeRange     string `json:"time_range"`
}

// CreditLimitDetail reports the load arithmetic behind a ceiling verdict.
type CreditLimitDetail struct {
	CurrentCredits float64 `json:"current_credits"`
	CourseCredits  float64 `json:"course_credits"`
	MaxCredits     float64 `json:"max_credits"`
}

// CheckEligibility returns nil when the student may enroll, or a typed
// business failure naming the violated rule. It performs no writes.
func (s *EligibilityService) CheckEligibility(ctx context.Context, studentID string, course *models.CourseDetail, section *models.SectionDetail) error {
	if err := s.checkPrerequisites(ctx, studentID, course); err != nil {
		return err
	}
	if err := s.checkScheduleConflict(ctx, studentID, section); err != nil {
		return err
	}
	return s.checkCreditCeiling(ctx, studentID, course, section.TermID)
}

// A NULL grade counts as passing: a prerequisite still in progress is
// provisionally satisfied. Concurrent-enrollment policy carried over
// from the legacy system, pending product clarification.
func (s *EligibilityService) checkPrerequisites(ctx context.Context, studentID string, course *models.CourseDetail) error {
	prereqs, err := s.courses.ListPrerequisites(ctx, course.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	if len(prereqs) == 0 {
		return nil
	}

	passed, err := s.records.PassedCourseIDs(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course history")
	}

	var missing []string
	for _, p := range prereqs {
		if !passed[p.CourseID] {
			missing = append(missing, p.CourseCode())
		}
	}
	if len(missing) > 0 {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrPrerequisitesNotMet, fmt.Sprintf("missing prerequisites for %s", course.CourseCode())),
			map[string]interface{}{"missing_prerequisites": missing},
		)
	}
	return nil
}

func (s *EligibilityService) checkScheduleConflict(ctx context.Context, studentID string, section *models.SectionDetail) error {
	if len(section.MeetingTimes) == 0 {
		return nil
	}
	enrolled, err := s.records.ListEnrolledSections(ctx, studentID, section.TermID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current schedule")
	}

	for _, existing := range enrolled {
		if existing.SectionID == section.ID {
			continue
		}
		for _, have := range existing.MeetingTimes {
			for _, want := range section.MeetingTimes {
				if have.Overlaps(want) {
					detail := ScheduleConflictDetail{
						CourseCode:    existing.DeptCode + " " + existing.CourseNumber,
						CourseTitle:   existing.CourseTitle,
						SectionNumber: existing.SectionNumber,
						DayOfWeek:     have.DayOfWeek,
						TimeRange:     have.TimeRange(),
					}
					return appErrors.WithDetails(
						appErrors.Clone(appErrors.ErrScheduleConflict,
							fmt.Sprintf("conflicts with %s section %s on %s %s",
								detail.CourseCode, detail.SectionNumber, detail.DayOfWeek, detail.TimeRange)),
						detail,
					)
				}
			}
		}
	}
	return nil
}

func (s *EligibilityService) checkCreditCeiling(ctx context.Context, studentID string, course *models.CourseDetail, termID string) error {
	current, err := s.records.CreditLoad(ctx, studentID, termID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit hours")
	}
	if current+course.Credits > s.creditCeiling {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrCreditLimitExceeded,
				fmt.Sprintf("enrolling would exceed the %.0f credit limit", s.creditCeiling)),
			CreditLimitDetail{CurrentCredits: current, CourseCredits: course.Credits, MaxCredits: s.creditCeiling},
		)
	}
	return nil
}
