package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/handler"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type stubTokens struct{}

func (stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "admin":
		return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, nil
	case "teacher":
		return &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}, nil
	}
	return nil, appErrors.ErrUnauthorized
}

type stubAudit struct{ actions []string }

func (s *stubAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}

type stubVouchers struct{}

func (stubVouchers) Generate(context.Context, dto.GenerateVouchersRequest) ([]models.IssuedVoucher, error) {
	return nil, nil
}

func (stubVouchers) Verify(context.Context, dto.VerifyVoucherRequest) (*dto.VerifyVoucherResponse, error) {
	return &dto.VerifyVoucherResponse{Valid: false, Reason: models.ReasonNotFound}, nil
}

func (stubVouchers) Release(context.Context, string) (*models.EVoucher, error) { return nil, nil }

func (stubVouchers) Revoke(_ context.Context, id string) (*models.EVoucher, error) {
	return &models.EVoucher{ID: id, Status: models.VoucherRevoked}, nil
}

func (stubVouchers) Cleanup(context.Context) (*dto.CleanupResult, error) {
	return &dto.CleanupResult{}, nil
}

func (stubVouchers) List(context.Context, models.VoucherFilter) ([]models.EVoucher, *models.Pagination, error) {
	return nil, &models.Pagination{}, nil
}

type stubSessions struct{}

func (stubSessions) Check(context.Context, string) (*dto.SessionCheckResponse, error) {
	return &dto.SessionCheckResponse{Valid: false, Reason: dto.SessionInvalidToken}, nil
}

func newTestRouter(audit *stubAudit) http.Handler {
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	return NewRouter(RouterDeps{
		Config:  cfg,
		Logger:  zap.NewNop(),
		Tokens:  stubTokens{},
		Audit:   audit,
		Metrics: service.NewMetricsService(),
	}, Handlers{
		Calendar:  handler.NewCalendarHandler(nil),
		Vouchers:  handler.NewVoucherHandler(stubVouchers{}, stubSessions{}),
		Admission: handler.NewAdmissionHandler(nil),
		Metrics:   handler.NewMetricsHandler(nil, nil),
	})
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterHealth(t *testing.T) {
	w := do(newTestRouter(&stubAudit{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouterPublicSessionCheck(t *testing.T) {
	w := do(newTestRouter(&stubAudit{}), http.MethodGet, "/api/v1/check-session/whatever", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "InvalidToken")
}

func TestRouterStaffRoutesRequireAdmin(t *testing.T) {
	r := newTestRouter(&stubAudit{})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/vouchers", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/years", "bogus").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/admissions", "teacher").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/vouchers", "admin").Code)
}

func TestRouterAuditsStaffMutations(t *testing.T) {
	audit := &stubAudit{}
	r := newTestRouter(audit)

	w := do(r, http.MethodPost, "/api/v1/vouchers/v-1/revoke", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{models.AuditActionVoucherRevoke}, audit.actions)
}
