package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observe("documents", "find", time.Now(), nil)
	m.observe("documents", "find", time.Now(), errors.New("boom"))
	m.denied("documents", "read")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("documents", "find", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("documents", "find", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.denials.WithLabelValues("documents", "read")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.observe("documents", "find", time.Now(), nil)
	m.denied("documents", "read")
}
