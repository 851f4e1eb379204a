package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Conversions        prometheus.Counter
	ConversionFailures prometheus.Counter
	Refines            prometheus.Counter
	RefineFailures     prometheus.Counter
	ChatTurns          *prometheus.CounterVec
	Exports            *prometheus.CounterVec
	DriveUploads       prometheus.Counter
	HistoryRecords     prometheus.Counter
	AIRequests         *prometheus.CounterVec
	AIDuration         *prometheus.HistogramVec
}

var (
	once   sync.Once
	global *Metrics
)

// New builds an unregistered set, for tests and custom registries.
func New() *Metrics {
	return &Metrics{
		Conversions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "conversions_total",
			Help:      "Total documents converted into forms",
		}),
		ConversionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "conversion_failures_total",
			Help:      "Total document conversions that failed",
		}),
		Refines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "refines_total",
			Help:      "Total successful form refinements",
		}),
		RefineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "refine_failures_total",
			Help:      "Total form refinements that failed",
		}),
		ChatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "chat_turns_total",
			Help:      "Total chat turns by surface",
		}, []string{"surface"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "exports_total",
			Help:      "Total artifacts exported by format",
		}, []string{"format"}),
		DriveUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "drive_uploads_total",
			Help:      "Total files uploaded to cloud storage",
		}),
		HistoryRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "history_records_total",
			Help:      "Total forms recorded into history",
		}),
		AIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formgenie",
			Name:      "ai_requests_total",
			Help:      "Total model requests by operation and outcome",
		}, []string{"op", "outcome"}),
		AIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "formgenie",
			Name:      "ai_request_duration_seconds",
			Help:      "Model request latency by operation",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"op"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Conversions, m.ConversionFailures, m.Refines, m.RefineFailures, m.ChatTurns,
		m.Exports, m.DriveUploads, m.HistoryRecords, m.AIRequests, m.AIDuration,
	}
}

func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.collectors()...)
}

func (m *Metrics) ObserveAI(op string, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AIRequests.WithLabelValues(op, outcome).Inc()
	m.AIDuration.WithLabelValues(op).Observe(took.Seconds())
}

func Global() *Metrics {
	once.Do(func() {
		global = New()
		global.MustRegister(prometheus.DefaultRegisterer)
	})
	return global
}
