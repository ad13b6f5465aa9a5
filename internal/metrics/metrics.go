package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RowsRead tracks rows delivered to callers per table
	RowsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_rows_read_total",
			Help: "Total number of rows delivered by scans",
		},
		[]string{"table"},
	)

	// ChunksParsed tracks wire chunks fed through the parser
	ChunksParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_chunks_parsed_total",
			Help: "Total number of cell chunks parsed",
		},
		[]string{"table"},
	)

	// ScanRetries tracks scan attempts that were retried after a failure
	ScanRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_scan_retries_total",
			Help: "Total number of scan attempts retried",
		},
		[]string{"table"},
	)

	// MutationEntries tracks per-entry batch write outcomes
	MutationEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_mutation_entries_total",
			Help: "Total number of batch mutation entries by final outcome",
		},
		[]string{"table", "result"},
	)

	// ApplyAttempts tracks batch write RPC attempts
	ApplyAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_apply_attempts_total",
			Help: "Total number of batch mutation RPC attempts",
		},
		[]string{"table"},
	)

	// DeadLetters tracks permanently failed entries recorded for replay
	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowstream_dead_letters_total",
			Help: "Total number of failed mutation entries recorded",
		},
		[]string{"table"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rowstream_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
