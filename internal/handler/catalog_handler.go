package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ocrs/registration-api/internal/models"
	"github.com/ocrs/registration-api/internal/service"
	"github.com/ocrs/registration-api/pkg/response"
)

// CatalogHandler exposes the course catalog endpoints.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCourses godoc
// @Summary List catalog courses
// @Tags Catalog
// @Produce json
// @Param deptId query string false "Filter by department"
// @Param level query string false "Course level prefix, e.g. 200"
// @Param search query string false "Search title and description"
// @Param minCredits query number false "Minimum credits"
// @Param maxCredits query number false "Maximum credits"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	var filter models.CourseFilter
	filter.DeptID = c.Query("deptId")
	filter.Level = c.Query("level")
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("minCredits"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MinCredits = &v
		}
	}
	if raw := c.Query("maxCredits"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filter.MaxCredits = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	result, err := h.catalog.ListCourses(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result.Courses, &result.Pagination)
}

// GetCourse godoc
// @Summary Course detail with prerequisites
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CatalogHandler) GetCourse(c *gin.Context) {
	course, err := h.catalog.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// ListPrerequisites godoc
// @Summary List prerequisites of a course
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/prerequisites [get]
func (h *CatalogHandler) ListPrerequisites(c *gin.Context) {
	prereqs, err := h.catalog.ListCoursePrerequisites(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prereqs, nil)
}

// ListSections godoc
// @Summary List sections of a course
// @Tags Catalog
// @Produce json
// @Param id path string true "Course ID"
// @Param termId query string false "Filter by term"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/sections [get]
func (h *CatalogHandler) ListSections(c *gin.Context) {
	sections, err := h.catalog.ListSections(c.Request.Context(), c.Param("id"), c.Query("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sections, nil)
}

// GetSection godoc
// @Summary Section detail with seat availability
// @Tags Catalog
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id} [get]
func (h *CatalogHandler) GetSection(c *gin.Context) {
	section, err := h.catalog.GetSection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, section, nil)
}

// ListDepartments godoc
// @Summary List departments
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *CatalogHandler) ListDepartments(c *gin.Context) {
	departments, err := h.catalog.ListDepartments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// ListTerms godoc
// @Summary List academic terms
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /terms [get]
func (h *CatalogHandler) ListTerms(c *gin.Context) {
	terms, err := h.catalog.ListTerms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, nil)
}
