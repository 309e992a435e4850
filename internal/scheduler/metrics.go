package scheduler

import (
	"time"

	"trade-settlement-go/internal/settlement"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records sweep activity.
type Metrics struct {
	sweeps     *prometheus.CounterVec
	trades     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	leaseSkips prometheus.Counter
}

// NewMetrics registers the sweep collectors with reg. A nil reg keeps them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "sweeps_total",
			Help:      "Resolution sweeps run, by trigger and result.",
		}, []string{"trigger", "result"}),
		trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "trades_total",
			Help:      "Due trades handled by sweeps, by disposition.",
		}, []string{"disposition"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a resolution sweep.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		leaseSkips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "lease_skips_total",
			Help:      "Timer ticks skipped because another replica held the sweep lease.",
		}),
	}
}

func (m *Metrics) observe(trigger Trigger, res settlement.SweepResult, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweeps.WithLabelValues(string(trigger), result).Inc()
	m.duration.WithLabelValues(string(trigger)).Observe(elapsed.Seconds())

	m.trades.WithLabelValues("examined").Add(float64(res.Examined))
	m.trades.WithLabelValues("resolved").Add(float64(res.Resolved))
	m.trades.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.trades.WithLabelValues("failed").Add(float64(res.Failed))
	m.trades.WithLabelValues("credit_skipped").Add(float64(res.CreditSkipped))
}
