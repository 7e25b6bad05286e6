package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks logical requests by final outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of logical requests by outcome",
		},
		[]string{"backend", "outcome"},
	)

	// DispatchesTotal tracks network attempts by status class
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dispatches_total",
			Help: "Total number of dispatched attempts by status class",
		},
		[]string{"backend", "class"},
	)

	// RetriesTotal tracks re-dispatches after a retryable failure
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"backend"},
	)

	// DispatchLatency tracks single attempt latency
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_dispatch_latency_seconds",
			Help:    "Attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_state",
			Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		},
		[]string{"backend"},
	)

	// BreakerTransitions tracks breaker state changes
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_transitions_total",
			Help: "Total number of circuit breaker transitions",
		},
		[]string{"backend", "from", "to"},
	)

	// RejectedTotal tracks attempts refused while the circuit was open
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_rejected_total",
			Help: "Total number of attempts rejected by an open circuit",
		},
		[]string{"backend"},
	)

	// QueueDepth tracks requests waiting for connectivity
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_offline_queue_depth",
			Help: "Number of requests waiting in the offline queue",
		},
		[]string{"backend"},
	)

	// NetworkOnline is 1 when the backend is considered reachable
	NetworkOnline = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_network_online",
			Help: "Network status (1=online, 0=offline)",
		},
		[]string{"backend"},
	)

	// TokenClears tracks credentials dropped after a 401
	TokenClears = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_token_clears_total",
			Help: "Total number of credentials cleared after rejection",
		},
		[]string{"backend"},
	)
)
