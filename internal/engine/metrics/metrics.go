package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the inheritance engine.
type Metrics struct {
	// Batch run outcomes by status
	RunsTotal *prometheus.CounterVec

	// Users evaluated per run
	UsersEvaluated prometheus.Counter

	// Plans flipped dormant -> triggered
	PlansTriggered prometheus.Counter

	// Triggers parked behind death-certificate verification
	TriggersAwaiting prometheus.Counter

	// Vault disposition outcomes by category and outcome
	VaultActions *prometheus.CounterVec

	// Full batch run latency
	RunDuration prometheus.Histogram
}

// New creates a Metrics instance with all engine metrics registered.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_engine_runs_total",
			Help: "Total batch runs by status",
		}, []string{"status"}), // status: "success", "partial", "skipped"

		UsersEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_engine_users_evaluated_total",
			Help: "Total users evaluated by the batch runner",
		}),

		PlansTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_engine_plans_triggered_total",
			Help: "Total inheritance plans flipped to triggered",
		}),

		TriggersAwaiting: promauto.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_engine_triggers_awaiting_total",
			Help: "Total triggers parked awaiting death-certificate verification",
		}),

		VaultActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_engine_vault_actions_total",
			Help: "Total vault disposition attempts by category and outcome",
		}, []string{"category", "outcome"}), // outcome: "success", "skipped", "failed"

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "heirloom_engine_run_duration_seconds",
			Help:    "Duration of a full batch run across all candidate users",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// IncrementRun records a batch run outcome.
func (m *Metrics) IncrementRun(status string) {
	if m != nil {
		m.RunsTotal.WithLabelValues(status).Inc()
	}
}

// AddUsersEvaluated records how many users a run evaluated.
func (m *Metrics) AddUsersEvaluated(n int) {
	if m != nil {
		m.UsersEvaluated.Add(float64(n))
	}
}

// AddPlansTriggered records plans flipped during a run.
func (m *Metrics) AddPlansTriggered(n int) {
	if m != nil {
		m.PlansTriggered.Add(float64(n))
	}
}

// AddTriggersAwaiting records triggers parked for verification.
func (m *Metrics) AddTriggersAwaiting(n int) {
	if m != nil {
		m.TriggersAwaiting.Add(float64(n))
	}
}

// IncrementVaultAction records one disposition attempt.
func (m *Metrics) IncrementVaultAction(category, outcome string) {
	if m != nil {
		m.VaultActions.WithLabelValues(category, outcome).Inc()
	}
}

// ObserveRunDuration records the total run duration.
func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}
