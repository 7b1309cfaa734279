package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ocrs/registration-api/internal/models"
	"github.com/ocrs/registration-api/internal/repository"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
	"github.com/ocrs/registration-api/pkg/jobs"
)

type enrollmentStore interface {
	ReserveSeat(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error)
	Drop(ctx context.Context, studentID, sectionID string) (*time.Time, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
}

type waitlistStore interface {
	Enqueue(ctx context.Context, studentID, sectionID string) (*models.WaitlistEntry, error)
	Remove(ctx context.Context, studentID, sectionID string) error
	PromoteLowest(ctx context.Context, sectionID string) (*models.WaitlistEntry, error)
	FinalizePromotion(ctx context.Context, entry *models.WaitlistEntry) error
	RevertPromotion(ctx context.Context, entryID string) error
	FindActivePosition(ctx context.Context, studentID, sectionID string) (int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error)
}

type sectionReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

type eligibilityChecker interface {
	CheckEligibility(ctx context.Context, studentID string, course *models.CourseDetail, section *models.SectionDetail) error
}

type availabilityInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type engineMetrics interface {
	ObserveEnrollOutcome(outcome string)
	ObserveReserveRetry()
	ObservePromotion(result string)
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

// EnrollmentConfig tunes the lifecycle controller.
type EnrollmentConfig struct {
	ReserveAttempts int
	WaitlistEnabled bool
}

// EnrollmentService is the enrollment lifecycle controller. It combines
// the eligibility checker, the atomic seat reservation and the waitlist
// into the enroll/drop/re-enroll state machine. All writes to
// enrollments and waitlist entries go through here.
type EnrollmentService struct {
	repo        enrollmentStore
	waitlist    waitlistStore
	sections    sectionReader
	courses     courseReader
	eligibility eligibilityChecker
	cache       availabilityInvalidator
	metrics     engineMetrics
	promotions  *jobs.Queue
	config      EnrollmentConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(
	repo enrollmentStore,
	waitlist waitlistStore,
	sections sectionReader,
	courses courseReader,
	eligibility eligibilityChecker,
	cache availabilityInvalidator,
	metrics engineMetrics,
	config EnrollmentConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if config.ReserveAttempts <= 0 {
		config.ReserveAttempts = 3
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:        repo,
		waitlist:    waitlist,
		sections:    sections,
		courses:     courses,
		eligibility: eligibility,
		cache:       cache,
		metrics:     metrics,
		config:      config,
		validator:   validate,
		logger:      logger,
	}
}

// StartPromotionWorkers wires the background queue that runs waitlist
// promotions after drops. Without it promotions run inline.
func (s *EnrollmentService) StartPromotionWorkers(ctx context.Context, cfg jobs.QueueConfig) {
	s.promotions = jobs.NewQueue("waitlist-promotions", func(ctx context.Context, task jobs.Task) error {
		sectionID, _ := task.Payload.(string)
		if sectionID == "" {
			return nil
		}
		return s.PromoteNext(ctx, sectionID)
	}, cfg)
	s.promotions.Start(ctx)
}

// StopPromotionWorkers drains the promotion queue.
func (s *EnrollmentService) StopPromotionWorkers() {
	if s.promotions != nil {
		s.promotions.Stop()
	}
}

// Enroll runs the full enrollment state machine for a (student, section)
// pair. Eligibility failures return unchanged with no side effect; a
// full section falls through to the waitlist when enabled, which is a
// deferred success, not an error.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	section, err := s.sections.FindDetailByID(ctx, req.SectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "section not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if err := s.eligibility.CheckEligibility(ctx, req.StudentID, course, section); err != nil {
		s.observeOutcome(appErrors.FromError(err).Code)
		return nil, err
	}

	enrollment, err := s.reserveWithRetry(ctx, req.StudentID, req.SectionID)
	if err == nil {
		s.invalidateAvailability(req.SectionID)
		s.observeOutcome(models.EnrollOutcomeEnrolled)
		detail, derr := s.repo.FindDetailByID(ctx, enrollment.ID)
		if derr != nil {
			// The seat is committed; failing here would make the
			// student retry into ALREADY_ENROLLED. Degrade to the
			// bare enrollment row instead.
			s.logger.Warn("failed to load enrollment detail after reservation",
				zap.String("enrollment_id", enrollment.ID), zap.Error(derr))
			detail = &models.EnrollmentDetail{Enrollment: *enrollment}
		}
		return &models.EnrollmentResult{Status: models.EnrollOutcomeEnrolled, Enrollment: detail}, nil
	}

	if errors.Is(err, repository.ErrSectionFull) {
		if !s.config.WaitlistEnabled {
			s.observeOutcome(appErrors.ErrSectionFull.Code)
			return nil, appErrors.ErrSectionFull
		}
		entry, werr := s.waitlist.Enqueue(ctx, req.StudentID, req.SectionID)
		if werr != nil {
			if errors.Is(werr, repository.ErrAlreadyWaitlisted) {
				s.observeOutcome(appErrors.ErrAlreadyWaitlisted.Code)
				return nil, appErrors.ErrAlreadyWaitlisted
			}
			return nil, appErrors.Wrap(werr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join waitlist")
		}
		s.observeOutcome(models.EnrollOutcomeWaitlisted)
		return &models.EnrollmentResult{Status: models.EnrollOutcomeWaitlisted, WaitlistPosition: entry.Position}, nil
	}

	appErr := s.mapReserveError(err)
	s.observeOutcome(appErr.Code)
	return nil, appErr
}

// Drop withdraws a student from a section and triggers a waitlist
// promotion follow-up. The promotion is best effort; its failure never
// fails the drop, which has already committed.
func (s *EnrollmentService) Drop(ctx context.Context, studentID, sectionID string) (*models.DropResult, error) {
	droppedAt, err := s.repo.Drop(ctx, studentID, sectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	s.invalidateAvailability(sectionID)

	if s.promotions != nil {
		if qerr := s.promotions.Enqueue(jobs.Task{Type: "promote", Payload: sectionID}); qerr != nil {
			s.logger.Warn("failed to queue waitlist promotion", zap.String("section_id", sectionID), zap.Error(qerr))
		}
	} else if perr := s.PromoteNext(ctx, sectionID); perr != nil {
		s.logger.Warn("waitlist promotion failed after drop", zap.String("section_id", sectionID), zap.Error(perr))
	}

	return &models.DropResult{Status: "dropped", DroppedAt: droppedAt}, nil
}

// PromoteNext attempts to convert the lowest-position waitlist entry of
// a section into an enrollment. Promotion re-runs eligibility and the
// capacity reservation: it is a privileged retry, not a guaranteed
// outcome. On failure the entry reverts to ACTIVE at its original
// position and the next freed seat will retry.
func (s *EnrollmentService) PromoteNext(ctx context.Context, sectionID string) error {
	entry, err := s.waitlist.PromoteLowest(ctx, sectionID)
	if err != nil {
		if errors.Is(err, repository.ErrWaitlistEmpty) {
			return nil
		}
		return fmt.Errorf("select promotion candidate: %w", err)
	}

	if err := s.enrollPromoted(ctx, entry); err != nil {
		s.observePromotion("reverted")
		if rerr := s.waitlist.RevertPromotion(ctx, entry.ID); rerr != nil {
			s.logger.Error("failed to revert promotion, entry stuck in PROMOTED",
				zap.String("entry_id", entry.ID), zap.Error(rerr))
			return rerr
		}
		s.logger.Info("waitlist promotion declined",
			zap.String("section_id", sectionID),
			zap.String("student_id", entry.StudentID),
			zap.String("reason", appErrors.FromError(err).Code))
		return nil
	}

	if err := s.waitlist.FinalizePromotion(ctx, entry); err != nil {
		return fmt.Errorf("finalize promotion: %w", err)
	}
	s.invalidateAvailability(sectionID)
	s.observePromotion("promoted")
	s.logger.Info("waitlist promotion succeeded",
		zap.String("section_id", sectionID),
		zap.String("student_id", entry.StudentID))
	return nil
}

func (s *EnrollmentService) enrollPromoted(ctx context.Context, entry *models.WaitlistEntry) error {
	section, err := s.sections.FindDetailByID(ctx, entry.SectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	course, err := s.courses.FindByID(ctx, section.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.eligibility.CheckEligibility(ctx, entry.StudentID, course, section); err != nil {
		return err
	}
	_, err = s.reserveWithRetry(ctx, entry.StudentID, entry.SectionID)
	if err != nil && errors.Is(err, repository.ErrAlreadyEnrolled) {
		// The student got a seat through another path; the entry is
		// finalized rather than left queued for a seat they hold.
		return nil
	}
	if err != nil {
		return s.mapReserveError(err)
	}
	return nil
}

// GetWaitlistPosition returns the student's active waitlist position.
func (s *EnrollmentService) GetWaitlistPosition(ctx context.Context, studentID, sectionID string) (int, error) {
	position, err := s.waitlist.FindActivePosition(ctx, studentID, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "not on the waitlist for this section")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist position")
	}
	return position, nil
}

// CancelWaitlist withdraws a student's active waitlist entry.
func (s *EnrollmentService) CancelWaitlist(ctx context.Context, studentID, sectionID string) error {
	if err := s.waitlist.Remove(ctx, studentID, sectionID); err != nil {
		if errors.Is(err, repository.ErrNotWaitlisted) {
			return appErrors.Clone(appErrors.ErrNotFound, "not on the waitlist for this section")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave waitlist")
	}
	return nil
}

// ListStudentEnrollments returns a student's enrollments.
func (s *EnrollmentService) ListStudentEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}

// ListStudentWaitlists returns a student's active waitlist entries.
func (s *EnrollmentService) ListStudentWaitlists(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error) {
	entries, err := s.waitlist.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list waitlists")
	}
	return entries, nil
}

// reserveWithRetry runs the atomic seat reservation, transparently
// retrying serialization conflicts up to the configured bound. Once the
// reservation commits it stands even if the caller's context is
// cancelled before the response is delivered; only a compensating Drop
// releases the seat.
func (s *EnrollmentService) reserveWithRetry(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	var lastErr error
	for attempt := 1; attempt <= s.config.ReserveAttempts; attempt++ {
		enrollment, err := s.repo.ReserveSeat(ctx, studentID, sectionID)
		if err == nil {
			return enrollment, nil
		}
		if !repository.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.ObserveReserveRetry()
		}
		s.logger.Debug("seat reservation lost serialization race, retrying",
			zap.String("section_id", sectionID), zap.Int("attempt", attempt))
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrEnrollmentFailed.Code, appErrors.ErrEnrollmentFailed.Status, appErrors.ErrEnrollmentFailed.Message)
}

func (s *EnrollmentService) mapReserveError(err error) *appErrors.Error {
	switch {
	case errors.Is(err, repository.ErrSectionNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "section not found")
	case errors.Is(err, repository.ErrSectionUnavailable):
		return appErrors.ErrSectionUnavailable
	case errors.Is(err, repository.ErrSectionFull):
		return appErrors.ErrSectionFull
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		return appErrors.ErrAlreadyEnrolled
	default:
		return appErrors.FromError(err)
	}
}

func (s *EnrollmentService) invalidateAvailability(sectionID string) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.DeleteByPattern(ctx, "catalog:section:"+sectionID+"*"); err != nil {
		s.logger.Warn("failed to invalidate section cache", zap.String("section_id", sectionID), zap.Error(err))
	}
}

func (s *EnrollmentService) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveEnrollOutcome(outcome)
	}
}

func (s *EnrollmentService) observePromotion(result string) {
	if s.metrics != nil {
		s.metrics.ObservePromotion(result)
	}
}
