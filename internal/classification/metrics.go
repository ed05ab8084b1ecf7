package classification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClassificationsTotal counts outcomes by method (embedding, llm) and
	// outcome (matched, new_initiative).
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "classification",
			Name:      "outcomes_total",
			Help:      "Classification outcomes by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// VerifierFailuresTotal counts verifier errors that fell back to the
	// secondary embedding threshold.
	VerifierFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "classification",
			Name:      "verifier_failures_total",
			Help:      "Verifier calls that failed and fell back to embedding similarity",
		},
	)
)
