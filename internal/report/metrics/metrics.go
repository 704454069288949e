package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the validation pipeline. All methods
// are nil-safe so wiring metrics stays optional in tests.
type Metrics struct {
	// Records validated per phase
	RecordsValidated *prometheus.CounterVec

	// Findings emitted by phase and severity
	Findings *prometheus.CounterVec

	// Phase wall-clock duration
	PhaseDuration *prometheus.HistogramVec

	// Runs finished by outcome
	Runs *prometheus.CounterVec

	// Runs currently in flight
	ActiveRuns prometheus.Gauge
}

// New creates a Metrics instance with all pipeline metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "repval_records_validated_total",
			Help: "Total records evaluated per validation phase",
		}, []string{"phase"}),

		Findings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "repval_findings_total",
			Help: "Total validation findings by phase and severity",
		}, []string{"phase", "severity"}),

		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repval_phase_duration_seconds",
			Help:    "Wall-clock duration of each pipeline phase",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),

		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "repval_runs_total",
			Help: "Total report runs by terminal outcome",
		}, []string{"outcome"}),

		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "repval_active_runs",
			Help: "Report runs currently executing",
		}),
	}
}

func (m *Metrics) AddRecords(phase string, n int) {
	if m != nil {
		m.RecordsValidated.WithLabelValues(phase).Add(float64(n))
	}
}

func (m *Metrics) IncrementFinding(phase, severity string) {
	if m != nil {
		m.Findings.WithLabelValues(phase, severity).Inc()
	}
}

func (m *Metrics) ObservePhaseDuration(phase string, d time.Duration) {
	if m != nil {
		m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) RunStarted() {
	if m != nil {
		m.ActiveRuns.Inc()
	}
}

func (m *Metrics) RunFinished() {
	if m != nil {
		m.ActiveRuns.Dec()
	}
}
