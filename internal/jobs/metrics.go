package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	queued    prometheus.Gauge
	running   prometheus.Gauge
	duration  prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ethmodel",
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Simulation jobs submitted, by outcome of the submission.",
		}, []string{"result"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ethmodel",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Simulation jobs finished, by final status.",
		}, []string{"status"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ethmodel",
			Subsystem: "jobs",
			Name:      "queued",
			Help:      "Jobs waiting for a worker.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ethmodel",
			Subsystem: "jobs",
			Name:      "running",
			Help:      "Jobs currently executing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ethmodel",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Wall time of finished jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

func (m *metrics) register(r prometheus.Registerer) {
	if r == nil {
		return
	}
	r.MustRegister(m.submitted, m.finished, m.queued, m.running, m.duration)
}
