package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments repository operations.
type Metrics struct {
	requests *prometheus.CounterVec
	denials  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates and registers repository metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_repository_requests_total",
			Help: "Repository operations by entity, operation and outcome",
		}, []string{"entity", "operation", "status"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_permission_denials_total",
			Help: "Permission denials by entity and action",
		}, []string{"entity", "action"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strata_repository_operation_seconds",
			Help:    "Repository operation latency by entity and operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity", "operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.denials, m.duration)
	}
	return m
}

func (m *Metrics) observe(entity, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.requests.WithLabelValues(entity, operation, status).Inc()
	m.duration.WithLabelValues(entity, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) denied(entity, action string) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(entity, action).Inc()
}
