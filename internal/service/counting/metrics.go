package counting

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the workflow counters exported on /metrics.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	Discrepancies  prometheus.Counter
	StatusChanges  *prometheus.CounterVec
	Synced         *prometheus.CounterVec
	RestrictedMode prometheus.Gauge
	PendingWrites  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcount_submissions_total",
				Help: "Audit entries saved, by destination",
			},
			[]string{"destination"},
		),
		Discrepancies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockcount_significant_discrepancies_total",
				Help: "Audit entries saved with a significant variance",
			},
		),
		StatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcount_location_status_changes_total",
				Help: "Location status transitions, by new status",
			},
			[]string{"status"},
		),
		Synced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcount_pending_sync_total",
				Help: "Locally queued writes replayed against the primary store, by result",
			},
			[]string{"result"},
		),
		RestrictedMode: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockcount_restricted_mode",
				Help: "1 while some collections are served from the local cache",
			},
		),
		PendingWrites: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockcount_pending_writes",
				Help: "Writes waiting in the local store",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Submissions, m.Discrepancies, m.StatusChanges, m.Synced, m.RestrictedMode, m.PendingWrites)
	}
	return m
}
