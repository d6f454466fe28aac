package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the admission gateway.
type MetricsService struct {
	registry             *prometheus.Registry
	handler              http.Handler
	requestDuration      *prometheus.HistogramVec
	requestTotal         *prometheus.CounterVec
	cacheLatency         prometheus.Observer
	cacheWrite           prometheus.Observer
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
	voucherVerifications *prometheus.CounterVec
	vouchersGenerated    prometheus.Counter
	reaperReleased       prometheus.Counter
	reaperExpired        prometheus.Counter
	admissionTransitions *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	voucherVerifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_verifications_total",
		Help: "Voucher verification attempts by outcome",
	}, []string{"outcome"})

	vouchersGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_generated_total",
		Help: "Total e-vouchers issued",
	})

	reaperReleased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "voucher_reservations_released_total",
		Help: "Stale voucher reservations released by cleanup",
	})

	reaperExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_expired_total",
		Help: "Vouchers marked expired by cleanup",
	})

	admissionTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_transitions_total",
		Help: "Admission state transitions",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		voucherVerifications, vouchersGenerated, reaperReleased, reaperExpired, admissionTransitions, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		cacheLatency:         cacheLatency,
		cacheWrite:           cacheWrite,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
		voucherVerifications: voucherVerifications,
		vouchersGenerated:    vouchersGenerated,
		reaperReleased:       reaperReleased,
		reaperExpired:        reaperExpired,
		admissionTransitions: admissionTransitions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordVerification counts a verification attempt; outcome is "ok" or the failure reason.
func (m *MetricsService) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.voucherVerifications.WithLabelValues(outcome).Inc()
}

// RecordGenerated counts issued vouchers.
func (m *MetricsService) RecordGenerated(count int) {
	if m == nil {
		return
	}
	m.vouchersGenerated.Add(float64(count))
}

// RecordCleanup counts reservations released and vouchers expired in one sweep.
func (m *MetricsService) RecordCleanup(released, expired int64) {
	if m == nil {
		return
	}
	m.reaperReleased.Add(float64(released))
	m.reaperExpired.Add(float64(expired))
}

// RecordAdmissionTransition counts admissions entering status.
func (m *MetricsService) RecordAdmissionTransition(status string) {
	if m == nil {
		return
	}
	m.admissionTransitions.WithLabelValues(status).Inc()
}
