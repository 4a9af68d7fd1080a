package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsProcessed tracks finished rows by terminal status
	RowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_rows_processed_total",
			Help: "Total number of rows that reached a terminal status",
		},
		[]string{"status"},
	)

	// RetriesTotal tracks retry attempts by the error kind that triggered them
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"error_type"},
	)

	// InvocationsTotal tracks remote calls by result
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executor_invocations_total",
			Help: "Total number of remote workflow invocations",
		},
		[]string{"result"},
	)

	// InvocationLatency tracks remote call latency
	InvocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "executor_invocation_latency_seconds",
			Help:    "Remote workflow invocation latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"result"},
	)

	// BatchAborted counts batches stopped by a fatal error
	BatchAborted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "executor_batch_aborted_total",
			Help: "Total number of batches aborted by a fatal error",
		},
	)

	// LedgerSize tracks ids left in the failure ledger after a run
	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "executor_ledger_size",
			Help: "Number of row ids pending retry in the failure ledger",
		},
	)
)
