package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocrs/registration-api/internal/models"
	"github.com/ocrs/registration-api/internal/service"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
	"github.com/ocrs/registration-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

type enrollPayload struct {
	SectionID string `json:"section_id" binding:"required"`
	StudentID string `json:"student_id"`
}

// resolveStudent picks the acting student. Students always act on their
// own record; staff may act on behalf of another student.
func (h *EnrollmentHandler) resolveStudent(c *gin.Context, requested string) (string, *appErrors.Error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role == models.RoleStudent {
		if claims.StudentID == "" {
			return "", appErrors.Clone(appErrors.ErrForbidden, "no student profile linked to this account")
		}
		if requested != "" && requested != claims.StudentID {
			return "", appErrors.Clone(appErrors.ErrForbidden, "cannot act on another student's record")
		}
		return claims.StudentID, nil
	}
	if requested == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	return requested, nil
}

// Enroll godoc
// @Summary Enroll in a section
// @Description Runs eligibility checks and reserves a seat, falling through to the waitlist when the section is full
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body enrollPayload true "Enroll payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var payload enrollPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enroll payload"))
		return
	}

	studentID, appErr := h.resolveStudent(c, payload.StudentID)
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	result, err := h.enrollments.Enroll(c.Request.Context(), service.EnrollRequest{
		StudentID: studentID,
		SectionID: payload.SectionID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusCreated, result, nil)
}

// Drop godoc
// @Summary Drop an enrollment
// @Description Withdraws the student from the section and triggers a waitlist promotion
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/sections/{sectionId} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Query("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	result, err := h.enrollments.Drop(c.Request.Context(), studentID, c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// WaitlistPosition godoc
// @Summary Current waitlist position
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/sections/{sectionId}/waitlist-position [get]
func (h *EnrollmentHandler) WaitlistPosition(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Query("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	position, err := h.enrollments.GetWaitlistPosition(c.Request.Context(), studentID, c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"section_id": c.Param("sectionId"), "position": position}, nil)
}

// CancelWaitlist godoc
// @Summary Leave a waitlist
// @Description Removes the student's active waitlist entry, positions behind it close up
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param sectionId path string true "Section ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/sections/{sectionId}/waitlist [delete]
func (h *EnrollmentHandler) CancelWaitlist(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Query("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	if err := h.enrollments.CancelWaitlist(c.Request.Context(), studentID, c.Param("sectionId")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// List godoc
// @Summary List own enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Query("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	filter := models.EnrollmentFilter{
		StudentID: studentID,
		TermID:    c.Query("termId"),
		Status:    models.EnrollmentStatus(c.Query("status")),
	}
	enrollments, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollments, nil)
}

// Waitlists godoc
// @Summary List own active waitlist entries
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /waitlists [get]
func (h *EnrollmentHandler) Waitlists(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Query("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	entries, err := h.enrollments.ListStudentWaitlists(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}

// ListForStudent godoc
// @Summary List a student's enrollments
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/enrollments [get]
func (h *EnrollmentHandler) ListForStudent(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Param("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	filter := models.EnrollmentFilter{
		StudentID: studentID,
		TermID:    c.Query("termId"),
		Status:    models.EnrollmentStatus(c.Query("status")),
	}
	enrollments, err := h.enrollments.ListStudentEnrollments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, enrollments, nil)
}

// WaitlistsForStudent godoc
// @Summary List a student's active waitlist entries
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/waitlists [get]
func (h *EnrollmentHandler) WaitlistsForStudent(c *gin.Context) {
	studentID, appErr := h.resolveStudent(c, c.Param("studentId"))
	if appErr != nil {
		response.Error(c, appErr)
		return
	}

	entries, err := h.enrollments.ListStudentWaitlists(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, nil)
}
