package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(callbacksTotal, wizardTransitions, enrichmentPolls, enrichmentPollAttempts)
}

var (
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_callbacks_total",
			Help: "Worker callbacks by outcome (success/error/malformed/unknown_job/rejected).",
		},
		[]string{"outcome"},
	)

	wizardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_wizard_transitions_total",
			Help: "Wizard step transitions by source step and result.",
		},
		[]string{"step", "result"},
	)

	enrichmentPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_enrichment_polls_total",
			Help: "Resolved enrichment polls by outcome (success/error).",
		},
		[]string{"outcome"},
	)

	enrichmentPollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "onboard_enrichment_poll_attempts",
			Help:    "Status checks made before an enrichment poll resolved.",
			Buckets: []float64{1, 2, 5, 10, 20, 30},
		},
	)
)

// CallbackReceived counts one callback outcome.
func CallbackReceived(outcome string) { callbacksTotal.WithLabelValues(outcome).Inc() }

// WizardTransition counts a step submit result (advanced/invalid/failed).
func WizardTransition(step, result string) { wizardTransitions.WithLabelValues(step, result).Inc() }

// EnrichmentPolled records a resolved enrichment poll.
func EnrichmentPolled(outcome string, attempts int) {
	enrichmentPolls.WithLabelValues(outcome).Inc()
	enrichmentPollAttempts.Observe(float64(attempts))
}
