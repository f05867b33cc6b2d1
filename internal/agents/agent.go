// Package agents provides bidding agents: private valuations, budgets, and
// the strategy each agent bids by.
package agents

import (
	"encoding/json"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/clock-auction/internal/market"
)

// Valuations maps item id to the value an agent places on it. Missing ids are worth 0.
type Valuations map[string]float64

// Value returns the valuation for itemID, 0 when absent.
func (v Valuations) Value(itemID string) float64 {
	return v[itemID]
}

// Total sums all positive valuations.
func (v Valuations) Total() float64 {
	total := 0.0
	for _, val := range v {
		if val > 0 {
			total += val
		}
	}
	return total
}

// Budget caps how much an agent may have committed at once. Unlimited skips the check.
type Budget float64

// Unlimited is the sentinel for an agent without a spending cap.
const Unlimited Budget = -1

// NewBudget converts a configured limit; anything <= 0 means unlimited.
func NewBudget(limit float64) Budget {
	if limit <= 0 {
		return Unlimited
	}
	return Budget(limit)
}

// IsUnlimited reports whether the budget is the unlimited sentinel.
func (b Budget) IsUnlimited() bool {
	return b < 0
}

// Allows reports whether total commitment stays within the budget.
func (b Budget) Allows(total float64) bool {
	return b.IsUnlimited() || total <= float64(b)
}

// MarshalJSON encodes an unlimited budget as null.
func (b Budget) MarshalJSON() ([]byte, error) {
	if b.IsUnlimited() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(b))
}

// Agent binds an identity, a fixed valuation table, a budget and a strategy.
type Agent struct {
	id         string
	valuations Valuations
	budget     Budget
	strategy   Strategy
}

// NewAgent creates an agent. The valuation table is copied and never changes afterwards.
func NewAgent(id string, strategy Strategy, vals Valuations, budget Budget) *Agent {
	a := &Agent{
		id:         id,
		valuations: maps.Clone(vals),
		budget:     budget,
		strategy:   strategy,
	}
	if a.valuations == nil {
		a.valuations = Valuations{}
	}
	slog.Debug("agent initialized", "agent", id, "strategy", strategy, "budget", float64(budget))
	return a
}

// IDFromName derives an agent id from a configured name. Names that already
// contain an underscore are used as-is; others get a short random suffix so
// that several agents configured with the same name stay distinct.
func IDFromName(name string) string {
	if strings.Contains(name, "_") {
		return name
	}
	return name + "_" + uuid.NewString()[:4]
}

// ID returns the agent's identity.
func (a *Agent) ID() string { return a.id }

// Strategy returns the strategy the agent bids by.
func (a *Agent) Strategy() Strategy { return a.strategy }

// Budget returns the agent's spending cap.
func (a *Agent) Budget() Budget { return a.budget }

// Valuations returns a copy of the agent's private valuation table.
func (a *Agent) Valuations() Valuations {
	return maps.Clone(a.valuations)
}

// Decide asks the agent's strategy for a bid against st. Agents never bid
// into an inactive market. This is the only decision path: live bidding and
// equilibrium probing both go through it.
func (a *Agent) Decide(st market.State) (market.Bid, bool) {
	if !st.Active {
		return market.Bid{}, false
	}
	return a.strategy.Decide(st, a.valuations, a.id, a.budget)
}
