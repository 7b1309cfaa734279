package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ocrs/registration-api/internal/models"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
)

type catalogCourseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ListPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error)
}

type catalogDepartmentRepository interface {
	List(ctx context.Context) ([]models.Department, error)
}

type catalogTermRepository interface {
	List(ctx context.Context) ([]models.Term, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type catalogSectionRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	ListByCourse(ctx context.Context, courseID, termID string) ([]models.SectionDetail, error)
}

// CourseListResult bundles a catalog page with its pagination metadata.
type CourseListResult struct {
	Courses    []models.CourseDetail `json:"courses"`
	Pagination models.Pagination     `json:"pagination"`
}

// CourseWithPrerequisites is the detail payload for a single course.
type CourseWithPrerequisites struct {
	models.CourseDetail
	Prerequisites []models.Prerequisite `json:"prerequisites"`
}

// CatalogService serves the read-mostly course catalog: departments,
// terms, courses and sections. Section reads carry live seat counts so
// they are cached with a short TTL only.
type CatalogService struct {
	courses     catalogCourseRepository
	departments catalogDepartmentRepository
	terms       catalogTermRepository
	sections    catalogSectionRepository
	cache       *CacheService
	logger      *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(
	courses catalogCourseRepository,
	departments catalogDepartmentRepository,
	terms catalogTermRepository,
	sections catalogSectionRepository,
	cache *CacheService,
	logger *zap.Logger,
) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		courses:     courses,
		departments: departments,
		terms:       terms,
		sections:    sections,
		cache:       cache,
		logger:      logger,
	}
}

// ListCourses returns a filtered catalog page.
func (s *CatalogService) ListCourses(ctx context.Context, filter models.CourseFilter) (*CourseListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	cacheKey := courseListCacheKey(filter)
	var cached CourseListResult
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	courses, total, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	result := &CourseListResult{
		Courses: courses,
		Pagination: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}
	_ = s.cache.Set(ctx, cacheKey, result, 0)
	return result, nil
}

// GetCourse returns a course with its prerequisite chain.
func (s *CatalogService) GetCourse(ctx context.Context, id string) (*CourseWithPrerequisites, error) {
	cacheKey := "catalog:course:" + id
	var cached CourseWithPrerequisites
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	prereqs, err := s.courses.ListPrerequisites(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}

	result := &CourseWithPrerequisites{CourseDetail: *course, Prerequisites: prereqs}
	_ = s.cache.Set(ctx, cacheKey, result, 0)
	return result, nil
}

// ListDepartments returns all departments.
func (s *CatalogService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	cacheKey := "catalog:departments"
	var cached []models.Department
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	_ = s.cache.Set(ctx, cacheKey, departments, 0)
	return departments, nil
}

// ListTerms returns all academic terms.
func (s *CatalogService) ListTerms(ctx context.Context) ([]models.Term, error) {
	cacheKey := "catalog:terms"
	var cached []models.Term
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	terms, err := s.terms.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	_ = s.cache.Set(ctx, cacheKey, terms, 0)
	return terms, nil
}

// ListCoursePrerequisites returns the courses required before enrolling
// in the given course.
func (s *CatalogService) ListCoursePrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	prereqs, err := s.courses.ListPrerequisites(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return prereqs, nil
}

// ListSections returns sections for a course, optionally filtered by term.
func (s *CatalogService) ListSections(ctx context.Context, courseID, termID string) ([]models.SectionDetail, error) {
	sections, err := s.sections.ListByCourse(ctx, courseID, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	return sections, nil
}

// GetSection returns one section with seat counts and meeting times.
func (s *CatalogService) GetSection(ctx context.Context, id string) (*models.SectionDetail, error) {
	cacheKey := "catalog:section:" + id
	var cached models.SectionDetail
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	section, err := s.sections.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	// Short TTL: enrolled_count goes stale as soon as someone enrolls,
	// writes invalidate the key on top of it.
	_ = s.cache.Set(ctx, cacheKey, section, 0)
	return section, nil
}

func courseListCacheKey(filter models.CourseFilter) string {
	parts := []string{
		"catalog:courses",
		filter.DeptID,
		filter.Level,
		filter.Search,
		filter.SortBy,
		filter.SortOrder,
		fmt.Sprintf("%d:%d", filter.Page, filter.PageSize),
	}
	if filter.MinCredits != nil {
		parts = append(parts, fmt.Sprintf("min%.1f", *filter.MinCredits))
	}
	if filter.MaxCredits != nil {
		parts = append(parts, fmt.Sprintf("max%.1f", *filter.MaxCredits))
	}
	return strings.Join(parts, ":")
}
