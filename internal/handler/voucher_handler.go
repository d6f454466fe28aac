package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/export"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

type voucherService interface {
	Generate(ctx context.Context, req dto.GenerateVouchersRequest) ([]models.IssuedVoucher, error)
	Verify(ctx context.Context, req dto.VerifyVoucherRequest) (*dto.VerifyVoucherResponse, error)
	Release(ctx context.Context, id string) (*models.EVoucher, error)
	Revoke(ctx context.Context, id string) (*models.EVoucher, error)
	Cleanup(ctx context.Context) (*dto.CleanupResult, error)
	List(ctx context.Context, filter models.VoucherFilter) ([]models.EVoucher, *models.Pagination, error)
}

type sessionChecker interface {
	Check(ctx context.Context, token string) (*dto.SessionCheckResponse, error)
}

// VoucherHandler exposes the voucher ledger and the public verification endpoints.
type VoucherHandler struct {
	service  voucherService
	sessions sessionChecker
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
}

// NewVoucherHandler constructs a voucher handler.
func NewVoucherHandler(svc voucherService, sessions sessionChecker) *VoucherHandler {
	return &VoucherHandler{
		service:  svc,
		sessions: sessions,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
	}
}

// Generate godoc
// @Summary Generate a voucher batch
// @Description PINs are returned in this response only. format=csv or format=pdf renders printable cards.
// @Tags Vouchers
// @Accept json
// @Produce json,text/csv,application/pdf
// @Param format query string false "json (default), csv or pdf"
// @Param payload body dto.GenerateVouchersRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /vouchers [post]
func (h *VoucherHandler) Generate(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" && format != "pdf" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, csv or pdf"))
		return
	}
	var req dto.GenerateVouchersRequest
	if !bindJSON(c, &req) {
		return
	}
	issued, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, req.AcademicYearID)

	switch format {
	case "csv":
		payload, err := h.csv.Render(voucherCards(issued))
		if err != nil {
			response.Error(c, err)
			return
		}
		h.attachment(c, "text/csv", "csv", payload)
	case "pdf":
		payload, err := h.pdf.RenderCards(voucherCards(issued), "Admission e-voucher")
		if err != nil {
			response.Error(c, err)
			return
		}
		h.attachment(c, "application/pdf", "pdf", payload)
	default:
		response.JSON(c, http.StatusCreated, issued, nil, map[string]interface{}{"count": len(issued)})
	}
}

func (h *VoucherHandler) attachment(c *gin.Context, contentType, ext string, payload []byte) {
	filename := fmt.Sprintf("vouchers-%s.%s", time.Now().UTC().Format("20060102-150405"), ext)
	response.Attachment(c, http.StatusCreated, filename, contentType, payload)
}

func voucherCards(issued []models.IssuedVoucher) export.Dataset {
	data := export.Dataset{Headers: []string{"Voucher", "PIN", "Expires"}}
	for _, v := range issued {
		data.Rows = append(data.Rows, map[string]string{
			"Voucher": v.VoucherNumber,
			"PIN":     v.PIN,
			"Expires": v.ExpiresAt.UTC().Format("2006-01-02 15:04"),
		})
	}
	return data
}

// List godoc
// @Summary List vouchers
// @Tags Vouchers
// @Produce json
// @Param academic_year_id query string false "Academic year"
// @Param status query string false "UNUSED, RESERVED, USED, EXPIRED or REVOKED"
// @Param search query string false "Voucher number fragment"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /vouchers [get]
func (h *VoucherHandler) List(c *gin.Context) {
	filter := models.VoucherFilter{
		AcademicYearID: c.Query("academic_year_id"),
		Status:         models.VoucherStatus(strings.ToUpper(c.Query("status"))),
		Search:         c.Query("search"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	vouchers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vouchers, pagination)
}

// Release godoc
// @Summary Release a reserved voucher
// @Tags Vouchers
// @Produce json
// @Param id path string true "Voucher ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vouchers/{id}/release [post]
func (h *VoucherHandler) Release(c *gin.Context) {
	voucher, err := h.service.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, voucher.ID)
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Revoke godoc
// @Summary Revoke a voucher
// @Tags Vouchers
// @Produce json
// @Param id path string true "Voucher ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vouchers/{id}/revoke [post]
func (h *VoucherHandler) Revoke(c *gin.Context) {
	voucher, err := h.service.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	setAuditResource(c, voucher.ID)
	response.JSON(c, http.StatusOK, voucher, nil)
}

// Cleanup godoc
// @Summary Release stale reservations and expire overdue vouchers
// @Tags Vouchers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /voucher-reservations/cleanup [delete]
func (h *VoucherHandler) Cleanup(c *gin.Context) {
	result, err := h.service.Cleanup(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Verify godoc
// @Summary Verify a voucher number and PIN
// @Description A valid pair reserves the voucher and returns an admission session token.
// @Tags Admission
// @Accept json
// @Produce json
// @Param payload body dto.VerifyVoucherRequest true "Voucher credentials"
// @Success 200 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /verify-voucher [post]
func (h *VoucherHandler) Verify(c *gin.Context) {
	var req dto.VerifyVoucherRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.Verify(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckSession godoc
// @Summary Check an admission session token
// @Tags Admission
// @Produce json
// @Param token path string true "Admission session token"
// @Success 200 {object} response.Envelope
// @Router /check-session/{token} [get]
func (h *VoucherHandler) CheckSession(c *gin.Context) {
	result, err := h.sessions.Check(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
