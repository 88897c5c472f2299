package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions       *prometheus.CounterVec
	riskRejections  *prometheus.CounterVec
	executions      *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	loopLatency     *prometheus.HistogramVec
	treasuryBalance prometheus.Gauge
	moodRaw         prometheus.Gauge
	moodZ           prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodtreasury_decisions_total",
				Help: "Total number of policy decisions by action",
			},
			[]string{"action"},
		),
		riskRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodtreasury_risk_rejections_total",
				Help: "Total number of risk gate rejections by check",
			},
			[]string{"check"},
		),
		executions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodtreasury_executions_total",
				Help: "Total number of execution outcomes by status",
			},
			[]string{"status"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moodtreasury_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		loopLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "moodtreasury_loop_iteration_duration_seconds",
				Help:    "Duration of periodic loop iterations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"loop"},
		),
		treasuryBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "moodtreasury_treasury_balance",
			Help: "Last observed treasury balance",
		}),
		moodRaw: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "moodtreasury_mood_raw_score",
			Help: "Latest aggregated raw sentiment score",
		}),
		moodZ: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "moodtreasury_mood_z_score",
			Help: "Latest sentiment z-score",
		}),
	}
}

// RecordDecision counts a policy decision by action.
func (r *Recorder) RecordDecision(action string) {
	r.decisions.WithLabelValues(action).Inc()
}

// RecordRiskRejection counts a risk gate rejection by failing check.
func (r *Recorder) RecordRiskRejection(check string) {
	r.riskRejections.WithLabelValues(check).Inc()
}

// RecordExecutionOutcome counts a terminal execution status.
func (r *Recorder) RecordExecutionOutcome(status string) {
	r.executions.WithLabelValues(status).Inc()
}

// RecordLoopIteration records a loop iteration duration in seconds.
func (r *Recorder) RecordLoopIteration(loop string, seconds float64) {
	r.loopLatency.WithLabelValues(loop).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordTreasuryBalance records the last observed treasury balance.
func (r *Recorder) RecordTreasuryBalance(balance float64) {
	r.treasuryBalance.Set(balance)
}

// RecordMood records the latest aggregated sentiment readings.
func (r *Recorder) RecordMood(raw, z float64) {
	r.moodRaw.Set(raw)
	r.moodZ.Set(z)
}
