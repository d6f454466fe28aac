package server

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/middleware"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admission-api/pkg/middleware/requestid"
)

// Handlers bundles the HTTP handlers mounted by the router.
type Handlers struct {
	Calendar  *handler.CalendarHandler
	Vouchers  *handler.VoucherHandler
	Admission *handler.AdmissionHandler
	Metrics   *handler.MetricsHandler
}

// RouterDeps carries the middleware collaborators.
type RouterDeps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Tokens  middleware.TokenValidator
	Audit   middleware.AuditWriter
	Metrics *service.MetricsService
}

// NewRouter builds the gin engine with every admission route mounted under the API prefix.
func NewRouter(deps RouterDeps, h Handlers) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Applicant-facing endpoints are authenticated by voucher credentials or session tokens.
	api.POST("/verify-voucher", h.Vouchers.Verify)
	api.GET("/check-session/:token", h.Vouchers.CheckSession)
	api.POST("/admissions", h.Admission.Submit)
	api.GET("/admission-options/:yearId", h.Admission.PlacementOptions)

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, resource)
	}

	staff := api.Group("")
	staff.Use(middleware.JWT(deps.Tokens))
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	years := staff.Group("/years")
	years.GET("", h.Calendar.ListYears)
	years.GET("/active", h.Calendar.GetActiveYear)
	years.GET("/:id", h.Calendar.GetYear)
	years.POST("", audit(models.AuditActionYearWrite, "academic_year"), h.Calendar.CreateYear)
	years.PATCH("/:id", audit(models.AuditActionYearWrite, "academic_year"), h.Calendar.UpdateYear)
	years.DELETE("/:id", audit(models.AuditActionYearWrite, "academic_year"), h.Calendar.DeleteYear)
	years.GET("/:id/terms", h.Calendar.ListTerms)
	years.GET("/:id/terms/:termId", h.Calendar.GetTerm)
	years.POST("/:id/terms", audit(models.AuditActionTermWrite, "term"), h.Calendar.CreateTerm)
	years.PATCH("/:id/terms/:termId", audit(models.AuditActionTermWrite, "term"), h.Calendar.UpdateTerm)
	years.DELETE("/:id/terms/:termId", audit(models.AuditActionTermWrite, "term"), h.Calendar.DeleteTerm)

	staff.GET("/vouchers", h.Vouchers.List)
	staff.POST("/vouchers", audit(models.AuditActionVoucherGenerate, "voucher_batch"), h.Vouchers.Generate)
	staff.POST("/vouchers/:id/release", audit(models.AuditActionVoucherRelease, "voucher"), h.Vouchers.Release)
	staff.POST("/vouchers/:id/revoke", audit(models.AuditActionVoucherRevoke, "voucher"), h.Vouchers.Revoke)
	staff.DELETE("/voucher-reservations/cleanup", audit(models.AuditActionVoucherCleanup, "voucher"), h.Vouchers.Cleanup)

	staff.GET("/admissions", h.Admission.List)
	staff.GET("/admissions/:id", h.Admission.Get)
	staff.POST("/admissions/:id/approve", audit(models.AuditActionAdmissionApprove, "admission"), h.Admission.Approve)
	staff.POST("/admissions/:id/reject", audit(models.AuditActionAdmissionReject, "admission"), h.Admission.Reject)

	return r
}
