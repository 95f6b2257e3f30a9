package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts dispatch attempts by result (dispatched, failed, config_error).
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_dispatch_total",
			Help: "Outbound call dispatch attempts by result",
		},
		[]string{"result"},
	)

	// CampaignSkips counts campaigns passed over during a tick.
	CampaignSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_skips_total",
			Help: "Campaigns skipped by the scheduler by reason",
		},
		[]string{"reason"},
	)

	// CampaignTransitions counts lifecycle changes by target status.
	CampaignTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_transitions_total",
			Help: "Campaign execution status transitions",
		},
		[]string{"to"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "campaign_scheduler_tick_duration_seconds",
			Help: "Duration of one scheduler tick in seconds",
			Buckets: []float64{
				0.01,  // 10ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
	)

	CallEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_call_events_total",
			Help: "Provider call events applied, by reported status",
		},
		[]string{"status", "result"},
	)

	Outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_call_outcomes_total",
			Help: "Call outcome classifications recorded",
		},
		[]string{"outcome"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telephony_request_duration_seconds",
			Help:    "Duration of voice provider API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

// RecordDispatch records the result of one dispatch attempt
func RecordDispatch(result string) {
	DispatchTotal.WithLabelValues(result).Inc()
}

// RecordSkip records why a campaign was passed over this tick
func RecordSkip(reason string) {
	CampaignSkips.WithLabelValues(reason).Inc()
}

func RecordTransition(to string) {
	CampaignTransitions.WithLabelValues(to).Inc()
}

func RecordTickDuration(seconds float64) {
	TickDuration.Observe(seconds)
}

func RecordCallEvent(status, result string) {
	CallEvents.WithLabelValues(status, result).Inc()
}

func RecordOutcome(outcome string) {
	Outcomes.WithLabelValues(outcome).Inc()
}

func RecordProviderRequest(operation, status string, seconds float64) {
	ProviderRequestDuration.WithLabelValues(operation, status).Observe(seconds)
}
