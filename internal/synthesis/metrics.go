package synthesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClustersFound counts clusters returned by FindClusters.
var ClustersFound = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "signald",
	Subsystem: "synthesis",
	Name:      "clusters_found_total",
	Help:      "Total number of clusters returned by synthesis runs",
})
