package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocrs/registration-api/internal/service"
	appErrors "github.com/ocrs/registration-api/pkg/errors"
	"github.com/ocrs/registration-api/pkg/response"
)

// StudentHandler exposes student profile and schedule endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// Get godoc
// @Summary Student profile
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{studentId} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.GetStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Schedule godoc
// @Summary Weekly schedule
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param termId query string false "Filter by term"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/schedule [get]
func (h *StudentHandler) Schedule(c *gin.Context) {
	schedule, err := h.students.GetSchedule(c.Request.Context(), c.Param("studentId"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// ExportSchedule godoc
// @Summary Download schedule as CSV or PDF
// @Tags Students
// @Produce octet-stream
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param termId query string false "Filter by term"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /students/{studentId}/schedule/export [get]
func (h *StudentHandler) ExportSchedule(c *gin.Context) {
	format := service.ScheduleFormat(c.DefaultQuery("format", "csv"))

	result, err := h.students.ExportSchedule(c.Request.Context(), c.Param("studentId"), c.Query("termId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
