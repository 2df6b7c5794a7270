// Package metrics defines the Prometheus collectors for the objio transfer
// engine.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for transfer size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// Engine state.
var (
	// TransfersInFlight tracks transfers currently holding a concurrency slot.
	TransfersInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objio_transfers_in_flight",
			Help: "Transfers currently in flight",
		},
	)

	// TransfersQueued tracks admitted transfers waiting for a slot.
	TransfersQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "objio_transfers_queued",
			Help: "Transfers waiting for a concurrency slot",
		},
	)
)

// Transfer outcomes.
var (
	// TransferAttemptsTotal counts every round trip handed to a transport,
	// retries included.
	TransferAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objio_transfer_attempts_total",
			Help: "Transport round trips started",
		},
		[]string{"method"},
	)

	// TransferRetriesTotal counts resubmissions by reason (status code or
	// "timeout").
	TransferRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objio_transfer_retries_total",
			Help: "Transfers resubmitted after a retryable failure",
		},
		[]string{"reason"},
	)

	// TransfersCompletedTotal counts finalized requests by kind
	// ("download", "upload") and outcome ("success", "error", "cancelled").
	TransfersCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objio_transfers_completed_total",
			Help: "Requests finalized by the engine",
		},
		[]string{"kind", "outcome"},
	)

	// TransferBytesTotal counts payload bytes by direction ("sent",
	// "received").
	TransferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "objio_transfer_bytes_total",
			Help: "Payload bytes moved",
		},
		[]string{"direction"},
	)

	// TransferDuration observes the latency of a single attempt.
	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objio_transfer_duration_seconds",
			Help:    "Latency of one transport round trip",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// TransferSize observes the body size of completed downloads.
	TransferSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "objio_transfer_size_bytes",
			Help:    "Body size of completed transfers",
			Buckets: sizeBuckets,
		},
		[]string{"method"},
	)
)

// Register registers every collector with the default Prometheus
// registry. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			TransfersInFlight,
			TransfersQueued,
			TransferAttemptsTotal,
			TransferRetriesTotal,
			TransfersCompletedTotal,
			TransferBytesTotal,
			TransferDuration,
			TransferSize,
		)
	})
}

// RetryReason returns the label used for a retry caused by status, or
// "timeout" when status is not an HTTP code.
func RetryReason(status int) string {
	if status <= 0 {
		return "timeout"
	}
	return strconv.Itoa(status)
}
