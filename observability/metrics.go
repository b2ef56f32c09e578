package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics
)

// SettlementMetrics wraps collectors tracking settlement engine activity.
type SettlementMetrics struct {
	streamsStarted  prometheus.Counter
	donations       prometheus.Counter
	donationVolume  prometheus.Counter
	settlements     *prometheus.CounterVec
	rewardsCreated  prometheus.Counter
	rewardsClaimed  prometheus.Counter
	disputesOpened  prometheus.Counter
	disputesClosed  prometheus.Counter
	operationErrors *prometheus.CounterVec
}

// Settlement exposes the lazily-initialised metrics registry for the
// settlement daemon.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			streamsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "streams_started_total",
				Help:      "Total streams opened on the platform.",
			}),
			donations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "donations_total",
				Help:      "Total accepted donation events.",
			}),
			donationVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "donation_volume_units_total",
				Help:      "Cumulative donated amount in base units.",
			}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "settlements_total",
				Help:      "Total terminal stream settlements segmented by path.",
			}, []string{"path"}),
			rewardsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "rewards_created_total",
				Help:      "Total viewer reward records created at settlement.",
			}),
			rewardsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "rewards_claimed_total",
				Help:      "Total viewer rewards redeemed.",
			}),
			disputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "disputes_opened_total",
				Help:      "Total disputes opened against settled streams.",
			}),
			disputesClosed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "disputes_resolved_total",
				Help:      "Total disputes resolved by the operator.",
			}),
			operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vibestream",
				Subsystem: "settlement",
				Name:      "operation_errors_total",
				Help:      "Failed engine operations segmented by operation name.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			settlementRegistry.streamsStarted,
			settlementRegistry.donations,
			settlementRegistry.donationVolume,
			settlementRegistry.settlements,
			settlementRegistry.rewardsCreated,
			settlementRegistry.rewardsClaimed,
			settlementRegistry.disputesOpened,
			settlementRegistry.disputesClosed,
			settlementRegistry.operationErrors,
		)
	})
	return settlementRegistry
}

// StreamStarted records a stream opening.
func (m *SettlementMetrics) StreamStarted() {
	if m == nil {
		return
	}
	m.streamsStarted.Inc()
}

// DonationAccepted records one donation of the supplied amount.
func (m *SettlementMetrics) DonationAccepted(amount float64) {
	if m == nil {
		return
	}
	m.donations.Inc()
	if amount > 0 {
		m.donationVolume.Add(amount)
	}
}

// StreamSettled records a terminal settlement via "signed" or "timeout".
func (m *SettlementMetrics) StreamSettled(path string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(path).Inc()
}

// RewardCreated records one reward record created at settlement.
func (m *SettlementMetrics) RewardCreated() {
	if m == nil {
		return
	}
	m.rewardsCreated.Inc()
}

// RewardClaimed records one redeemed reward.
func (m *SettlementMetrics) RewardClaimed() {
	if m == nil {
		return
	}
	m.rewardsClaimed.Inc()
}

// DisputeOpened records a newly opened dispute.
func (m *SettlementMetrics) DisputeOpened() {
	if m == nil {
		return
	}
	m.disputesOpened.Inc()
}

// DisputeResolved records a resolved dispute.
func (m *SettlementMetrics) DisputeResolved() {
	if m == nil {
		return
	}
	m.disputesClosed.Inc()
}

// OperationFailed records a failed engine operation.
func (m *SettlementMetrics) OperationFailed(operation string) {
	if m == nil {
		return
	}
	m.operationErrors.WithLabelValues(operation).Inc()
}
