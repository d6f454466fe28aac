package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type admissionService interface {
	Submit(ctx context.Context, req dto.SubmitAdmissionRequest) (*dto.AdmissionReceipt, error)
	Approve(ctx context.Context, id, actorID string) (*models.AdmissionDetail, error)
	Reject(ctx context.Context, id, actorID string) (*models.AdmissionDetail, error)
	Get(ctx context.Context, id string) (*models.AdmissionDetail, error)
	List(ctx context.Context, query dto.AdmissionQuery) ([]models.AdmissionDetail, *models.Pagination, error)
	PlacementOptions(ctx context.Context, yearID string) (*dto.PlacementOptions, error)
}

// AdmissionHandler exposes submission and review endpoints.
type AdmissionHandler struct {
	service admissionService
}

// NewAdmissionHandler constructs an admission handler.
func NewAdmissionHandler(svc admissionService) *AdmissionHandler {
	return &AdmissionHandler{service: svc}
}

// Submit godoc
// @Summary Submit an admission form
// @Description Consumes the voucher reserved by the session token. The temporary password is returned once.
// @Tags Admission
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAdmissionRequest true "Admission form"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	var req dto.SubmitAdmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	receipt, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// List godoc
// @Summary List admissions
// @Tags Admissions
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param class_id query string false "Class"
// @Param academic_year_id query string false "Academic year"
// @Param term_id query string false "Term"
// @Param search query string false "Student name or voucher number"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	query := dto.AdmissionQuery{
		Status:         models.AdmissionStatus(strings.ToUpper(c.Query("status"))),
		ClassID:        c.Query("class_id"),
		AcademicYearID: c.Query("academic_year_id"),
		TermID:         c.Query("term_id"),
		Search:         c.Query("search"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.PageSize = size
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get admission
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Approve godoc
// @Summary Approve admission
// @Description Idempotent: approving an approved admission returns it unchanged.
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	id := c.Param("id")
	item, err := h.service.Approve(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, id)
	response.JSON(c, http.StatusOK, item, nil)
}

// Reject godoc
// @Summary Reject admission
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	item, err := h.service.Reject(c.Request.Context(), id, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, id)
	response.JSON(c, http.StatusOK, item, nil)
}

// PlacementOptions godoc
// @Summary Placement choices for an academic year
// @Tags Admission
// @Produce json
// @Param yearId path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /admission-options/{yearId} [get]
func (h *AdmissionHandler) PlacementOptions(c *gin.Context) {
	options, err := h.service.PlacementOptions(c.Request.Context(), c.Param("yearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}
