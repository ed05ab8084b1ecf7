package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ExtractionsTotal.
const (
	outcomeExtracted = "extracted"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// ExtractionsTotal counts Extract calls by outcome.
var ExtractionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signald",
		Subsystem: "extraction",
		Name:      "runs_total",
		Help:      "Field extraction runs by outcome (extracted, skipped, failed)",
	},
	[]string{"outcome"},
)
