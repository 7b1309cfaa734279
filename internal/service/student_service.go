package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ocrs/registration-api/internal/models"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
	"github.com/ocrs/registration-api/pkg/export"
)

// ScheduleFormat identifies a schedule export format.
type ScheduleFormat string

// Supported export formats.
const (
	ScheduleFormatCSV ScheduleFormat = "csv"
	ScheduleFormatPDF ScheduleFormat = "pdf"
)

type studentRepositoryReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type scheduleReader interface {
	ListEnrolledSections(ctx context.Context, studentID, termID string) ([]models.EnrolledSection, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ScheduleExport is a rendered schedule ready to be sent as a download.
type ScheduleExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StudentService serves student profiles and weekly schedules.
type StudentService struct {
	profiles  studentRepositoryReader
	schedules scheduleReader
	logger    *zap.Logger
	csv       csvRenderer
	pdf       pdfRenderer
}

// NewStudentService constructs StudentService.
func NewStudentService(profiles studentRepositoryReader, schedules scheduleReader, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{
		profiles:  profiles,
		schedules: schedules,
		logger:    logger,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
}

// GetStudent returns a student profile.
func (s *StudentService) GetStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.profiles.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetSchedule returns the student's enrolled sections with meeting times.
func (s *StudentService) GetSchedule(ctx context.Context, studentID, termID string) ([]models.EnrolledSection, error) {
	sections, err := s.schedules.ListEnrolledSections(ctx, studentID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return sections, nil
}

// ExportSchedule renders the student's schedule as CSV or PDF.
func (s *StudentService) ExportSchedule(ctx context.Context, studentID, termID string, format ScheduleFormat) (*ScheduleExport, error) {
	sections, err := s.GetSchedule(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}

	dataset := scheduleDataset(sections)
	stamp := time.Now().UTC().Format("20060102")

	switch format {
	case ScheduleFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv schedule")
		}
		return &ScheduleExport{
			Filename:    fmt.Sprintf("schedule_%s.csv", stamp),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case ScheduleFormatPDF:
		data, err := s.pdf.Render(dataset, "Class Schedule")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf schedule")
		}
		return &ScheduleExport{
			Filename:    fmt.Sprintf("schedule_%s.pdf", stamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func scheduleDataset(sections []models.EnrolledSection) export.Dataset {
	rows := make([]export.Row, 0, len(sections))
	for _, section := range sections {
		meetings := make([]string, 0, len(section.MeetingTimes))
		for _, mt := range section.MeetingTimes {
			meetings = append(meetings, mt.DayOfWeek+" "+mt.TimeRange())
		}
		rows = append(rows, export.Row{
			Course:  section.DeptCode + " " + section.CourseNumber,
			Title:   section.CourseTitle,
			Section: section.SectionNumber,
			Meets:   strings.Join(meetings, "; "),
		})
	}
	return export.Dataset{Rows: rows}
}
