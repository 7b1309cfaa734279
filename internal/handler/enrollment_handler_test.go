package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrs/registration-api/internal/middleware"
	"github.com/ocrs/registration-api/internal/models"
	"github.com/ocrs/registration-api/internal/repository"
	"github.com/ocrs/registration-api/internal/service"
)

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeEnrollmentStore struct {
	reserveErr error
	dropErr    error
	detail     *models.EnrollmentDetail
}

func (f *fakeEnrollmentStore) ReserveSeat(ctx context.Context, studentID, sectionID string) (*models.Enrollment, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return &models.Enrollment{ID: "enr-1", StudentID: studentID, SectionID: sectionID, Status: models.EnrollmentStatusEnrolled}, nil
}

func (f *fakeEnrollmentStore) Drop(ctx context.Context, studentID, sectionID string) (*time.Time, error) {
	if f.dropErr != nil {
		return nil, f.dropErr
	}
	now := time.Now()
	return &now, nil
}

func (f *fakeEnrollmentStore) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	return f.detail, nil
}

func (f *fakeEnrollmentStore) ListByStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type fakeWaitlistStore struct {
	position int
}

func (f *fakeWaitlistStore) Enqueue(ctx context.Context, studentID, sectionID string) (*models.WaitlistEntry, error) {
	return &models.WaitlistEntry{ID: "wl-1", StudentID: studentID, SectionID: sectionID, Position: f.position}, nil
}

func (f *fakeWaitlistStore) Remove(ctx context.Context, studentID, sectionID string) error {
	return nil
}

func (f *fakeWaitlistStore) PromoteLowest(ctx context.Context, sectionID string) (*models.WaitlistEntry, error) {
	return nil, repository.ErrWaitlistEmpty
}

func (f *fakeWaitlistStore) FinalizePromotion(ctx context.Context, entry *models.WaitlistEntry) error {
	return nil
}

func (f *fakeWaitlistStore) RevertPromotion(ctx context.Context, entryID string) error {
	return nil
}

func (f *fakeWaitlistStore) FindActivePosition(ctx context.Context, studentID, sectionID string) (int, error) {
	return f.position, nil
}

func (f *fakeWaitlistStore) ListByStudent(ctx context.Context, studentID string) ([]models.WaitlistEntryDetail, error) {
	return nil, nil
}

type fakeSectionReader struct {
	section *models.SectionDetail
}

func (f *fakeSectionReader) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	return f.section, nil
}

type fakeCourseReader struct {
	course *models.CourseDetail
}

func (f *fakeCourseReader) FindByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	return f.course, nil
}

type fakeEligibility struct {
	err error
}

func (f *fakeEligibility) CheckEligibility(ctx context.Context, studentID string, course *models.CourseDetail, section *models.SectionDetail) error {
	return f.err
}

func newHandlerFixture(t *testing.T) (*EnrollmentHandler, *fakeEnrollmentStore) {
	t.Helper()

	section := &models.SectionDetail{}
	section.ID = "sec-1"
	section.CourseID = "course-1"
	section.Capacity = 30
	section.Status = models.SectionStatusScheduled

	course := &models.CourseDetail{}
	course.ID = "course-1"
	course.Credits = 3

	detail := &models.EnrollmentDetail{}
	detail.ID = "enr-1"
	detail.Status = models.EnrollmentStatusEnrolled

	store := &fakeEnrollmentStore{detail: detail}
	svc := service.NewEnrollmentService(
		store,
		&fakeWaitlistStore{position: 2},
		&fakeSectionReader{section: section},
		&fakeCourseReader{course: course},
		&fakeEligibility{},
		nil,
		nil,
		service.EnrollmentConfig{WaitlistEnabled: true},
		nil,
		nil,
	)
	return NewEnrollmentHandler(svc), store
}

func performEnroll(t *testing.T, h *EnrollmentHandler, claims *models.JWTClaims, body string) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/enrollments", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}

	h.Enroll(c)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestEnrollStudentUsesOwnRecord(t *testing.T) {
	h, _ := newHandlerFixture(t)
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}

	rec, envelope := performEnroll(t, h, claims, `{"section_id":"sec-1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, envelope.Error)

	var result models.EnrollmentResult
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	assert.Equal(t, models.EnrollOutcomeEnrolled, result.Status)
	require.NotNil(t, result.Enrollment)
	assert.Equal(t, "enr-1", result.Enrollment.ID)
}

func TestEnrollRejectsMissingClaims(t *testing.T) {
	h, _ := newHandlerFixture(t)

	rec, envelope := performEnroll(t, h, nil, `{"section_id":"sec-1"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "UNAUTHORIZED", envelope.Error.Code)
}

func TestEnrollStudentCannotActOnAnother(t *testing.T) {
	h, _ := newHandlerFixture(t)
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}

	rec, envelope := performEnroll(t, h, claims, `{"section_id":"sec-1","student_id":"stu-2"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "FORBIDDEN", envelope.Error.Code)
}

func TestEnrollStaffRequiresStudentID(t *testing.T) {
	h, _ := newHandlerFixture(t)
	claims := &models.JWTClaims{UserID: "u-2", Role: models.RoleAdmin}

	rec, envelope := performEnroll(t, h, claims, `{"section_id":"sec-1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestEnrollRejectsMalformedPayload(t *testing.T) {
	h, _ := newHandlerFixture(t)
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}

	rec, envelope := performEnroll(t, h, claims, `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, envelope.Error)
}

func TestEnrollFullSectionReportsWaitlistPosition(t *testing.T) {
	h, store := newHandlerFixture(t)
	store.reserveErr = repository.ErrSectionFull
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}

	rec, envelope := performEnroll(t, h, claims, `{"section_id":"sec-1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var result models.EnrollmentResult
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	assert.Equal(t, models.EnrollOutcomeWaitlisted, result.Status)
	assert.Equal(t, 2, result.WaitlistPosition)
}

func TestDropReturnsDroppedStatus(t *testing.T) {
	h, _ := newHandlerFixture(t)
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/api/v1/enrollments/sections/sec-1", nil)
	c.Params = gin.Params{{Key: "sectionId", Value: "sec-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"})

	h.Drop(c)

	assert.Equal(t, http.StatusOK, rec.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var result models.DropResult
	require.NoError(t, json.Unmarshal(envelope.Data, &result))
	assert.Equal(t, "dropped", result.Status)
	assert.NotNil(t, result.DroppedAt)
}
