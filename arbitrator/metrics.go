package arbitrator

import "github.com/prometheus/client_golang/prometheus"

var registrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "trustledger",
	Subsystem: "arbitrator",
	Name:      "registrations_total",
	Help:      "Total successful arbitrator registrations.",
})

func init() {
	prometheus.MustRegister(registrationsTotal)
}
