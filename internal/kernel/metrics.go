package kernel

import "github.com/prometheus/client_golang/prometheus"

var (
	containerDumps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bbkernel",
			Subsystem: "container",
			Name:      "dumps_total",
			Help:      "Total number of compiled containers written to disk",
		},
	)

	containerRestores = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bbkernel",
			Subsystem: "container",
			Name:      "restores_total",
			Help:      "Total number of boots restored from a container dump",
		},
	)

	sequenceOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bbkernel",
			Subsystem: "sequence",
			Name:      "operations_total",
			Help:      "Sequencer operations by kind and outcome",
		},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(containerDumps, containerRestores, sequenceOps)
}

func observeSequence(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	sequenceOps.WithLabelValues(op, status).Inc()
}
