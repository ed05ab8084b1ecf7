package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultEnqueued  = "enqueued"
	resultRejected  = "rejected"
	resultSucceeded = "succeeded"
	resultFailed    = "failed"
)

var (
	// TasksTotal counts tasks by queue and result.
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signald",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "Total number of queue tasks by result",
		},
		[]string{"queue", "result"},
	)

	// TaskDuration tracks handler run time.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signald",
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "Duration of queue task handlers",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"queue"},
	)
)
