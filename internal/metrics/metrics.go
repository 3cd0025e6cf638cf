package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DepositsTotal counts accepted deposits per pool.
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadowpool_deposits_total",
		Help: "Total number of accepted deposits",
	}, []string{"pool"})

	// WithdrawalsTotal counts completed withdrawals per pool.
	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadowpool_withdrawals_total",
		Help: "Total number of completed withdrawals",
	}, []string{"pool"})

	// RejectionsTotal counts rejected operations by operation and reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadowpool_rejections_total",
		Help: "Total number of rejected operations",
	}, []string{"op", "reason"})

	// PoolLeafCount tracks the accumulator leaf count per pool.
	PoolLeafCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shadowpool_pool_leaf_count",
		Help: "Current number of leaves in the pool accumulator",
	}, []string{"pool"})

	// StuckPayoutsTotal counts withdrawals whose funds release failed after
	// the nullifier was consumed.
	StuckPayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shadowpool_stuck_payouts_total",
		Help: "Total number of stuck payouts recorded",
	}, []string{"pool", "kind"})

	// NATSConnectionStatus is 1 while the NATS connection is up.
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shadowpool_nats_connection_status",
		Help: "NATS connection status (1 = connected, 0 = disconnected)",
	})

	// ProofVerificationDuration observes Groth16 verification latency.
	ProofVerificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shadowpool_proof_verification_duration_seconds",
		Help:    "Time spent verifying withdrawal proofs",
		Buckets: prometheus.DefBuckets,
	})
)
