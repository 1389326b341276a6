package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagasStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_started_total",
		Help: "Total number of sagas started",
	})

	sagaStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_steps_total",
		Help: "Total number of saga step executions by step and outcome",
	}, []string{"step", "outcome"})

	sagaCompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_compensations_total",
		Help: "Total number of compensation runs by outcome",
	}, []string{"outcome"})

	sagaRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_retries_total",
		Help: "Total number of saga retry attempts",
	})

	sagaQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_dispatch_queue_depth",
		Help: "Number of step executions waiting in the dispatch queue",
	})
)
