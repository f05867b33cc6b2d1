// Package metrics exposes Prometheus collectors for auction activity.
// A nil *Metrics is valid; every method is a no-op on a nil receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Bid outcome label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDiscarded = "discarded"
)

// Metrics holds the collectors shared by the market and the runner.
type Metrics struct {
	bids          *prometheus.CounterVec
	rounds        prometheus.Counter
	overDemand    prometheus.Counter
	runs          *prometheus.CounterVec
	revenue       prometheus.Gauge
	activeMarkets prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep registrations isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bids: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "bids_total",
			Help:      "Bids submitted to the market, by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "rounds_resolved_total",
			Help:      "Rounds resolved while the market was active.",
		}),
		overDemand: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "over_demand_total",
			Help:      "Item resolutions that hit over-demand and raised the price.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "runs_total",
			Help:      "Simulation runs, by how they ended.",
		}, []string{"result"}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "revenue",
			Help:      "Sum of item prices after the latest resolution.",
		}),
		activeMarkets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "market_active",
			Help:      "1 while the market accepts bids, 0 once it has converged.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bids, m.rounds, m.overDemand, m.runs, m.revenue, m.activeMarkets)
	}
	return m
}

// BidAccepted counts an accepted bid.
func (m *Metrics) BidAccepted() {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(OutcomeAccepted).Inc()
}

// BidDiscarded counts a bid dropped because the market was inactive.
func (m *Metrics) BidDiscarded() {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(OutcomeDiscarded).Inc()
}

// RoundResolved records one resolution and the revenue it left behind.
func (m *Metrics) RoundResolved(overDemanded int, revenue float64) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.overDemand.Add(float64(overDemanded))
	m.revenue.Set(revenue)
}

// MarketActive sets the market activity gauge.
func (m *Metrics) MarketActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.activeMarkets.Set(1)
	} else {
		m.activeMarkets.Set(0)
	}
}

// RunFinished counts a completed run. result is "converged" or "round_cap".
func (m *Metrics) RunFinished(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}
