package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters exposed on /metrics.
var (
	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistencia_batches_total",
		Help: "Attendance batches processed, by outcome (ok, empty, error).",
	}, []string{"outcome"})

	ObservationsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asistencia_observaciones_omitidas_total",
		Help: "Observations dropped during batch validation.",
	})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistencia_logins_total",
		Help: "Login attempts, by outcome (ok, rejected, error).",
	}, []string{"outcome"})

	Recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asistencia_recuperaciones_total",
		Help: "Password recoveries, by outcome (ok, unknown, error).",
	}, []string{"outcome"})
)
