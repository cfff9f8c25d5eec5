package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FarmMetrics exposes the reward farm's accounting to Prometheus.
type FarmMetrics struct {
	operations     *prometheus.CounterVec
	totalStaked    prometheus.Gauge
	rewardRate     prometheus.Gauge
	rewardPerToken prometheus.Gauge
	periodFinish   prometheus.Gauge
	rewardsPaid    prometheus.Counter
	rewardsFunded  prometheus.Counter
}

var (
	farmOnce     sync.Once
	farmRegistry *FarmMetrics
)

// Farm returns the process-wide farm metrics registered with the default
// Prometheus registerer.
func Farm() *FarmMetrics {
	farmOnce.Do(func() {
		farmRegistry = NewFarmMetrics(prometheus.DefaultRegisterer)
	})
	return farmRegistry
}

// NewFarmMetrics builds the farm collectors and registers them with reg. A nil
// registerer leaves the collectors unregistered.
func NewFarmMetrics(reg prometheus.Registerer) *FarmMetrics {
	m := &FarmMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "operations_total",
			Help:      "Farm operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "total_staked",
			Help:      "Staked asset currently held by the farm.",
		}),
		rewardRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "reward_rate",
			Help:      "Reward asset released per second during the active period.",
		}),
		rewardPerToken: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "reward_per_token_stored",
			Help:      "Cumulative scaled reward per staked unit at the last settlement.",
		}),
		periodFinish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "period_finish_seconds",
			Help:      "Unix time at which the current reward period ends.",
		}),
		rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "rewards_paid_total",
			Help:      "Reward asset transferred to stakers.",
		}),
		rewardsFunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "farm",
			Name:      "rewards_funded_total",
			Help:      "Reward asset committed through reward notifications.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.operations,
			m.totalStaked,
			m.rewardRate,
			m.rewardPerToken,
			m.periodFinish,
			m.rewardsPaid,
			m.rewardsFunded,
		)
	}
	return m
}

// ObserveOperation counts an operation outcome.
func (m *FarmMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// SetAccumulator publishes the accumulator snapshot after a commit.
func (m *FarmMetrics) SetAccumulator(totalStaked, rewardRate, rewardPerToken *big.Int, periodFinish uint64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(toFloat(totalStaked))
	m.rewardRate.Set(toFloat(rewardRate))
	m.rewardPerToken.Set(toFloat(rewardPerToken))
	m.periodFinish.Set(float64(periodFinish))
}

// AddRewardsPaid accumulates a payout.
func (m *FarmMetrics) AddRewardsPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(toFloat(amount))
}

// AddRewardsFunded accumulates a reward notification.
func (m *FarmMetrics) AddRewardsFunded(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsFunded.Add(toFloat(amount))
}

func toFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
