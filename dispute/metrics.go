package dispute

import "github.com/prometheus/client_golang/prometheus"

var filedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "trustledger",
	Subsystem: "dispute",
	Name:      "filed_total",
	Help:      "Total disputes filed.",
})

func init() {
	prometheus.MustRegister(filedTotal)
}
