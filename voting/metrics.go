package voting

import "github.com/prometheus/client_golang/prometheus"

var (
	votesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trustledger",
		Subsystem: "voting",
		Name:      "votes_total",
		Help:      "Total votes cast by side.",
	}, []string{"side"}) // "complainant", "respondent"

	stakeEscrowed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trustledger",
		Subsystem: "voting",
		Name:      "stake_escrowed_total",
		Help:      "Cumulative stake moved into escrow, in micro-units.",
	})
)

func init() {
	prometheus.MustRegister(votesTotal, stakeEscrowed)
}
