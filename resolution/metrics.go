package resolution

import "github.com/prometheus/client_golang/prometheus"

var resolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trustledger",
	Subsystem: "resolution",
	Name:      "disputes_resolved_total",
	Help:      "Total terminal transitions by outcome and path.",
}, []string{"outcome", "path"}) // outcome: "resolved"/"rejected"; path: "resolve"/"finalize"

func init() {
	prometheus.MustRegister(resolvedTotal)
}
