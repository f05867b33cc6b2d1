package engine

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/talgya/clock-auction/internal/market"
)

// RoundStat is recorded after every resolution.
type RoundStat struct {
	Round    int     `json:"round"`
	BidCount int     `json:"bid_count"`
	Revenue  float64 `json:"revenue"` // sum of all item prices after the round
}

// BidRecord is one bid an agent produced.
type BidRecord struct {
	Round   int     `json:"round"`
	AgentID string  `json:"agent_id"`
	ItemID  string  `json:"item_id"`
	Amount  float64 `json:"amount"`
}

// EquilibriumRoundStat is the analyzer's verdict on the state a round left behind.
type EquilibriumRoundStat struct {
	Round             int     `json:"round"`
	IsNashEquilibrium bool    `json:"is_nash_equilibrium"`
	ImprovableCount   int     `json:"improvable_count"`
	ParetoRatio       float64 `json:"pareto_ratio"`
	SocialWelfare     float64 `json:"social_welfare"`
}

// AllocationLine is one item of the terminal allocation.
type AllocationLine struct {
	ItemID string          `json:"item_id"`
	Winner string          `json:"winner,omitempty"`
	Price  decimal.Decimal `json:"price"`
}

// Allocation is the terminal item → winner → price summary.
type Allocation struct {
	Items        []AllocationLine `json:"items"`
	TotalRevenue decimal.Decimal  `json:"total_revenue"`
}

// Report is everything one run produced.
type Report struct {
	Scenario    string                 `json:"scenario"`
	Converged   bool                   `json:"converged"` // false when the round cap stopped the run
	Final       market.State           `json:"final"`
	Rounds      []RoundStat            `json:"rounds"`
	Bids        []BidRecord            `json:"bids"`
	Equilibrium []EquilibriumRoundStat `json:"equilibrium"`
	Allocation  Allocation             `json:"allocation"`
}

// Allocate summarizes st. Prices are summed as decimals so the total matches
// the per-item figures exactly.
func Allocate(st market.State) Allocation {
	a := Allocation{
		Items:        make([]AllocationLine, 0, len(st.Items)),
		TotalRevenue: decimal.Zero,
	}
	for _, it := range st.Items {
		price := decimal.NewFromFloat(it.Price)
		a.Items = append(a.Items, AllocationLine{ItemID: it.ID, Winner: it.Winner, Price: price})
		a.TotalRevenue = a.TotalRevenue.Add(price)
	}
	return a
}

func logAllocation(a Allocation) {
	for _, line := range a.Items {
		winner := line.Winner
		if winner == "" {
			winner = "none"
		}
		slog.Info("final allocation", "item", line.ItemID, "winner", winner, "price", line.Price.StringFixed(2))
	}
	slog.Info("total revenue", "revenue", a.TotalRevenue.StringFixed(2))
}
