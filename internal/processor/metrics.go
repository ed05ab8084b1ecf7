package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts Process calls by result (processed, skipped, failed).
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "processor",
			Name:      "signals_total",
			Help:      "Signal processing attempts by result",
		},
		[]string{"result"},
	)

	// ProcessingDuration tracks end-to-end processing time of claimed signals.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "processor",
			Name:      "duration_seconds",
			Help:      "Duration of extraction, embedding and persistence for one signal",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)
