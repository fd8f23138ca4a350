package generate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records image service calls
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers generation metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qrlabel_generation_requests_total",
			Help: "Label image generations by mode and result.",
		}, []string{"mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qrlabel_generation_duration_seconds",
			Help:    "Time spent generating label images.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *Metrics) observe(mode string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.requests.WithLabelValues(mode, result).Inc()
	m.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
