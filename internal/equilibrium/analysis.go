// Package equilibrium evaluates an auction outcome: per-agent payoffs, a
// one-shot best-response probe for Nash equilibrium, and social welfare
// against a greedy zero-price benchmark.
package equilibrium

import (
	"log/slog"
	"maps"
	"math"
	"slices"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/market"
)

// WelfareTolerance is the absolute gap under which current welfare counts as optimal.
const WelfareTolerance = 0.01

// Decider is anything that can produce a bid for a snapshot. *agents.Agent satisfies it.
type Decider interface {
	ID() string
	Decide(st market.State) (market.Bid, bool)
}

// AgentPayoff is what an agent ends up with under the current allocation.
type AgentPayoff struct {
	AgentID        string  `json:"agent_id"`
	TotalValuation float64 `json:"total_valuation"`
	TotalPaid      float64 `json:"total_paid"`
	Utility        float64 `json:"utility"`
	ItemsWon       int     `json:"items_won"`
}

// NashResult reports whether any agent's own strategy would strictly improve on its payoff.
type NashResult struct {
	IsEquilibrium    bool                   `json:"is_equilibrium"`
	ImprovableAgents []string               `json:"improvable_agents"`
	Payoffs          map[string]AgentPayoff `json:"payoffs"`
}

// ParetoResult compares realized welfare with the greedy optimum.
type ParetoResult struct {
	IsOptimal      bool                   `json:"is_optimal"`
	CurrentWelfare float64                `json:"current_welfare"`
	OptimalWelfare float64                `json:"optimal_welfare"`
	Ratio          float64                `json:"ratio"`
	NoDemand       bool                   `json:"no_demand"` // nobody values anything; Ratio is 0 by convention
	Payoffs        map[string]AgentPayoff `json:"payoffs"`
}

// CalculatePayoffs sums, for every agent in vals, the valuation and price of
// the items it currently wins. Winning a priced item the agent does not value
// is logged as an inconsistent configuration but does not alter the result.
func CalculatePayoffs(st market.State, vals map[string]agents.Valuations) map[string]AgentPayoff {
	payoffs := make(map[string]AgentPayoff, len(vals))

	for agentID, v := range vals {
		p := AgentPayoff{AgentID: agentID}
		for _, it := range st.Items {
			if it.Winner != agentID {
				continue
			}
			val := v.Value(it.ID)
			if val == 0 && it.Price > 0 {
				slog.Warn("inconsistent valuation: agent won an item it does not value",
					"agent", agentID, "item", it.ID, "price", it.Price)
			}
			p.TotalValuation += val
			p.TotalPaid += it.Price
			p.ItemsWon++
		}
		p.Utility = p.TotalValuation - p.TotalPaid
		payoffs[agentID] = p
	}
	return payoffs
}

// CheckNashEquilibrium probes each agent with its own decision function
// against the frozen snapshot. An agent is improvable when winning the bid
// it would place, at the bid amount, plus what it keeps of its other
// holdings, is strictly better than its current utility. Agents without a
// valuation entry are skipped.
//
// The probe asks whether anyone would deviate from the allocation, so it runs
// as if the market still took bids even when st is inactive. It is a one-shot
// probe under each agent's strategy, not a search over every possible
// deviation.
func CheckNashEquilibrium(st market.State, vals map[string]agents.Valuations, deciders []Decider) NashResult {
	payoffs := CalculatePayoffs(st, vals)
	improvable := []string{}

	probe := st
	probe.Active = true

	for _, d := range deciders {
		id := d.ID()
		current, ok := payoffs[id]
		if !ok {
			continue
		}
		bid, ok := d.Decide(probe)
		if !ok {
			continue
		}
		if alternativeUtility(st, vals[id], id, bid) > current.Utility && !slices.Contains(improvable, id) {
			improvable = append(improvable, id)
		}
	}

	return NashResult{
		IsEquilibrium:    len(improvable) == 0,
		ImprovableAgents: improvable,
		Payoffs:          payoffs,
	}
}

func alternativeUtility(st market.State, v agents.Valuations, agentID string, bid market.Bid) float64 {
	utility := v.Value(bid.ItemID) - bid.Amount
	for _, it := range st.Items {
		if it.Winner == agentID && it.ID != bid.ItemID {
			utility += v.Value(it.ID) - it.Price
		}
	}
	return utility
}

// CalculateParetoEfficiency compares the sum of all agents' utilities with
// OptimalWelfare.
//
// Ratio is current/optimal clamped to [0,1]. When no agent values any item
// the optimum is 0, Ratio is 0 and NoDemand is set; IsOptimal still follows
// the tolerance rule, so an empty allocation there is reported optimal.
func CalculateParetoEfficiency(st market.State, vals map[string]agents.Valuations) ParetoResult {
	payoffs := CalculatePayoffs(st, vals)

	current := 0.0
	for _, p := range payoffs {
		current += p.Utility
	}
	optimal := OptimalWelfare(st, vals)

	res := ParetoResult{
		IsOptimal:      math.Abs(current-optimal) < WelfareTolerance,
		CurrentWelfare: current,
		OptimalWelfare: optimal,
		Payoffs:        payoffs,
	}
	if optimal > 0 {
		res.Ratio = min(max(current/optimal, 0), 1)
	} else {
		res.NoDemand = true
	}
	return res
}

// OptimalWelfare is the greedy benchmark: every item goes to the agent valuing
// it most, at zero price. Items nobody values positively contribute nothing.
// Agents are visited in id order, so ties go to the lowest id.
func OptimalWelfare(st market.State, vals map[string]agents.Valuations) float64 {
	ids := slices.Sorted(maps.Keys(vals))

	total := 0.0
	for _, it := range st.Items {
		best := 0.0
		for _, id := range ids {
			if v := vals[id].Value(it.ID); v > best {
				best = v
			}
		}
		total += best
	}
	return total
}
