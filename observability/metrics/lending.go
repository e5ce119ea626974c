package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	borrows                 *prometheus.CounterVec
	repays                  prometheus.Counter
	liquidations            *prometheus.CounterVec
	rewards                 prometheus.Counter
	oracleRegistrationSkips prometheus.Counter
	totalBorrow             prometheus.Gauge
	totalSuppliedLiquidity  prometheus.Gauge
	utilization             prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			borrows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_borrows_total",
				Help: "Count of successful borrows by collateral tier.",
			}, []string{"tier"}),
			repays: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_repays_total",
				Help: "Count of successful repayments.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of liquidated positions by collateral tier.",
			}, []string{"tier"}),
			rewards: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_liquidity_rewards_total",
				Help: "Count of liquidity incentive payouts.",
			}),
			oracleRegistrationSkips: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lending_oracle_registration_skips_total",
				Help: "Count of asset listings whose oracle registration was skipped.",
			}),
			totalBorrow: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_total_borrow",
				Help: "Outstanding borrowed principal in quote base units.",
			}),
			totalSuppliedLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_total_supplied_liquidity",
				Help: "Supplied liquidity in quote base units.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_utilization",
				Help: "Pool utilisation as a ratio between zero and one.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.borrows,
			lendingRegistry.repays,
			lendingRegistry.liquidations,
			lendingRegistry.rewards,
			lendingRegistry.oracleRegistrationSkips,
			lendingRegistry.totalBorrow,
			lendingRegistry.totalSuppliedLiquidity,
			lendingRegistry.utilization,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) IncBorrow(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.borrows.WithLabelValues(tier).Inc()
}

func (m *LendingMetrics) IncRepay() {
	if m == nil {
		return
	}
	m.repays.Inc()
}

func (m *LendingMetrics) IncLiquidation(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "unknown"
	}
	m.liquidations.WithLabelValues(tier).Inc()
}

func (m *LendingMetrics) IncReward() {
	if m == nil {
		return
	}
	m.rewards.Inc()
}

func (m *LendingMetrics) IncOracleRegistrationSkip() {
	if m == nil {
		return
	}
	m.oracleRegistrationSkips.Inc()
}

func (m *LendingMetrics) SetAggregates(totalBorrow, totalSupplied, utilization float64) {
	if m == nil {
		return
	}
	m.totalBorrow.Set(totalBorrow)
	m.totalSuppliedLiquidity.Set(totalSupplied)
	m.utilization.Set(utilization)
}
