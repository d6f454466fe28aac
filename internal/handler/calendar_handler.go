package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type calendarService interface {
	ListYears(ctx context.Context) ([]models.AcademicYear, error)
	GetYear(ctx context.Context, id string) (*models.AcademicYear, error)
	GetActiveYear(ctx context.Context) (*models.AcademicYear, error)
	CreateYear(ctx context.Context, req dto.CreateYearRequest) (*models.AcademicYear, error)
	CheckCreateYear(ctx context.Context, req dto.CreateYearRequest) (*dto.ViolationReport, error)
	UpdateYear(ctx context.Context, id string, req dto.UpdateYearRequest) (*models.AcademicYear, error)
	CheckUpdateYear(ctx context.Context, id string, req dto.UpdateYearRequest) (*dto.ViolationReport, error)
	DeleteYear(ctx context.Context, id string) error

	ListTerms(ctx context.Context, yearID string) ([]models.Term, error)
	GetTerm(ctx context.Context, yearID, termID string) (*models.Term, error)
	CreateTerm(ctx context.Context, yearID string, req dto.CreateTermRequest) (*models.Term, error)
	CheckCreateTerm(ctx context.Context, yearID string, req dto.CreateTermRequest) (*dto.ViolationReport, error)
	UpdateTerm(ctx context.Context, yearID, termID string, req dto.UpdateTermRequest) (*models.Term, error)
	CheckUpdateTerm(ctx context.Context, yearID, termID string, req dto.UpdateTermRequest) (*dto.ViolationReport, error)
	DeleteTerm(ctx context.Context, yearID, termID string) error
}

// CalendarHandler exposes academic year and term endpoints.
type CalendarHandler struct {
	service calendarService
}

// NewCalendarHandler constructs a calendar handler.
func NewCalendarHandler(svc calendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

func dryRun(c *gin.Context) bool {
	value, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	return err == nil && value
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// ListYears godoc
// @Summary List academic years
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /years [get]
func (h *CalendarHandler) ListYears(c *gin.Context) {
	years, err := h.service.ListYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// GetActiveYear godoc
// @Summary Get the active academic year
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /years/active [get]
func (h *CalendarHandler) GetActiveYear(c *gin.Context) {
	year, err := h.service.GetActiveYear(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// GetYear godoc
// @Summary Get academic year
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /years/{id} [get]
func (h *CalendarHandler) GetYear(c *gin.Context) {
	year, err := h.service.GetYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// CreateYear godoc
// @Summary Create academic year
// @Description With dry_run=true the payload is checked against every calendar rule and nothing is written.
// @Tags Calendar
// @Accept json
// @Produce json
// @Param dry_run query bool false "Only report violations"
// @Param payload body dto.CreateYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /years [post]
func (h *CalendarHandler) CreateYear(c *gin.Context) {
	var req dto.CreateYearRequest
	if !bindJSON(c, &req) {
		return
	}
	if dryRun(c) {
		report, err := h.service.CheckCreateYear(c.Request.Context(), req)
		h.respondReport(c, report, err)
		return
	}
	year, err := h.service.CreateYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, year.ID)
	response.Created(c, year)
}

// UpdateYear godoc
// @Summary Update academic year
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param dry_run query bool false "Only report violations"
// @Param payload body dto.UpdateYearRequest true "Academic year patch"
// @Success 200 {object} response.Envelope
// @Router /years/{id} [patch]
func (h *CalendarHandler) UpdateYear(c *gin.Context) {
	var req dto.UpdateYearRequest
	if !bindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if dryRun(c) {
		report, err := h.service.CheckUpdateYear(c.Request.Context(), id, req)
		h.respondReport(c, report, err)
		return
	}
	year, err := h.service.UpdateYear(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, id)
	response.JSON(c, http.StatusOK, year, nil)
}

// DeleteYear godoc
// @Summary Delete academic year
// @Tags Calendar
// @Param id path string true "Academic year ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /years/{id} [delete]
func (h *CalendarHandler) DeleteYear(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteYear(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, id)
	response.NoContent(c)
}

// ListTerms godoc
// @Summary List terms of an academic year
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /years/{id}/terms [get]
func (h *CalendarHandler) ListTerms(c *gin.Context) {
	terms, err := h.service.ListTerms(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, nil)
}

// GetTerm godoc
// @Summary Get term
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Router /years/{id}/terms/{termId} [get]
func (h *CalendarHandler) GetTerm(c *gin.Context) {
	term, err := h.service.GetTerm(c.Request.Context(), c.Param("id"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, term, nil)
}

// CreateTerm godoc
// @Summary Create term
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param dry_run query bool false "Only report violations"
// @Param payload body dto.CreateTermRequest true "Term payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /years/{id}/terms [post]
func (h *CalendarHandler) CreateTerm(c *gin.Context) {
	var req dto.CreateTermRequest
	if !bindJSON(c, &req) {
		return
	}
	yearID := c.Param("id")
	if dryRun(c) {
		report, err := h.service.CheckCreateTerm(c.Request.Context(), yearID, req)
		h.respondReport(c, report, err)
		return
	}
	term, err := h.service.CreateTerm(c.Request.Context(), yearID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, term.ID)
	response.Created(c, term)
}

// UpdateTerm godoc
// @Summary Update term
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param termId path string true "Term ID"
// @Param dry_run query bool false "Only report violations"
// @Param payload body dto.UpdateTermRequest true "Term patch"
// @Success 200 {object} response.Envelope
// @Router /years/{id}/terms/{termId} [patch]
func (h *CalendarHandler) UpdateTerm(c *gin.Context) {
	var req dto.UpdateTermRequest
	if !bindJSON(c, &req) {
		return
	}
	yearID, termID := c.Param("id"), c.Param("termId")
	if dryRun(c) {
		report, err := h.service.CheckUpdateTerm(c.Request.Context(), yearID, termID, req)
		h.respondReport(c, report, err)
		return
	}
	term, err := h.service.UpdateTerm(c.Request.Context(), yearID, termID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, termID)
	response.JSON(c, http.StatusOK, term, nil)
}

// DeleteTerm godoc
// @Summary Delete term
// @Tags Calendar
// @Param id path string true "Academic year ID"
// @Param termId path string true "Term ID"
// @Success 204
// @Router /years/{id}/terms/{termId} [delete]
func (h *CalendarHandler) DeleteTerm(c *gin.Context) {
	termID := c.Param("termId")
	if err := h.service.DeleteTerm(c.Request.Context(), c.Param("id"), termID); err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, termID)
	response.NoContent(c)
}

func (h *CalendarHandler) respondReport(c *gin.Context, report *dto.ViolationReport, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, map[string]interface{}{"dry_run": true})
}
