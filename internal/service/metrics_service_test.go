package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceRecordsLedgerActivity(t *testing.T) {
	m := NewMetricsService()

	m.RecordVerification("ok")
	m.RecordVerification("ok")
	m.RecordVerification("InvalidPIN")
	m.RecordGenerated(50)
	m.RecordCleanup(2, 3)
	m.RecordAdmissionTransition("APPROVED")
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/vouchers/verify", http.StatusOK, 20*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.voucherVerifications.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.voucherVerifications.WithLabelValues("InvalidPIN")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.vouchersGenerated))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.reaperReleased))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.reaperExpired))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.admissionTransitions.WithLabelValues("APPROVED")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "voucher_verifications_total"))
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.RecordVerification("ok")
		m.RecordGenerated(1)
		m.RecordCleanup(1, 1)
		m.RecordAdmissionTransition("PENDING")
		m.RecordCacheOperation(true, time.Millisecond)
		m.ObserveCacheWrite(time.Millisecond)
		m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
