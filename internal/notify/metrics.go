package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsSent counts created notifications by priority.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications created",
		},
		[]string{"priority"},
	)

	// NotificationsSuppressed counts filter rejections by reason.
	NotificationsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "notify",
			Name:      "suppressed_total",
			Help:      "Total number of notifications suppressed by the threshold filter",
		},
		[]string{"reason"},
	)
)
