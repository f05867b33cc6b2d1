package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/talgya/clock-auction/internal/market"
)

// ErrUnknownStrategy is returned when a strategy name does not match any known kind.
var ErrUnknownStrategy = errors.New("unknown bidding strategy")

// Strategy identifies one of the five bidding rules. Every rule is a pure
// function of the snapshot, the agent's valuations and its budget; none
// keeps memory across rounds.
type Strategy uint8

const (
	StrategyMyopic   Strategy = iota // best immediate surplus
	StrategyBudget                   // myopic within a spending cap
	StrategySniper                   // waits, then myopic
	StrategyBundle                   // all-or-nothing over valued items
	StrategyFlexible                 // any one valued item will do
)

// sniperWaitRounds is how many rounds a sniper sits out before bidding.
const sniperWaitRounds = 3

var strategyNames = map[Strategy]string{
	StrategyMyopic:   "MYOPIC",
	StrategyBudget:   "BUDGET",
	StrategySniper:   "SNIPER",
	StrategyBundle:   "BUNDLE",
	StrategyFlexible: "FLEXIBLE",
}

// Strategies lists every known strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{StrategyMyopic, StrategyBudget, StrategySniper, StrategyBundle, StrategyFlexible}
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", uint8(s))
}

// MarshalText encodes the strategy as its name.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStrategy maps a case-insensitive name to a Strategy. An empty name
// selects MYOPIC. BUDGET_CONSTRAINED is accepted as an alias of BUDGET.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "MYOPIC":
		return StrategyMyopic, nil
	case "BUDGET", "BUDGET_CONSTRAINED":
		return StrategyBudget, nil
	case "SNIPER":
		return StrategySniper, nil
	case "BUNDLE":
		return StrategyBundle, nil
	case "FLEXIBLE":
		return StrategyFlexible, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Decide routes to the rule for s. ok is false when the agent sits the round out.
func (s Strategy) Decide(st market.State, vals Valuations, agentID string, budget Budget) (bid market.Bid, ok bool) {
	switch s {
	case StrategyBudget:
		return decideBudget(st, vals, agentID, budget)
	case StrategySniper:
		return decideSniper(st, vals, agentID)
	case StrategyBundle:
		return decideBundle(st, vals, agentID)
	case StrategyFlexible:
		return decideFlexible(st, vals, agentID)
	default:
		return decideMyopic(st, vals, agentID)
	}
}

// decideMyopic bids the ask on the item with the largest positive surplus
// among those the agent does not already hold. Ties keep the earlier slot.
func decideMyopic(st market.State, vals Valuations, agentID string) (market.Bid, bool) {
	return bestSurplus(st, vals, agentID, func(float64) bool { return true })
}

// decideBudget is myopic, but skips any item whose ask would push current
// exposure (prices of held items) over the budget.
func decideBudget(st market.State, vals Valuations, agentID string, budget Budget) (market.Bid, bool) {
	exposure := 0.0
	for _, it := range st.HeldBy(agentID) {
		exposure += it.Price
	}
	return bestSurplus(st, vals, agentID, func(ask float64) bool {
		return budget.Allows(exposure + ask)
	})
}

func decideSniper(st market.State, vals Valuations, agentID string) (market.Bid, bool) {
	if st.Round < sniperWaitRounds {
		return market.Bid{}, false
	}
	return decideMyopic(st, vals, agentID)
}

func bestSurplus(st market.State, vals Valuations, agentID string, affordable func(ask float64) bool) (market.Bid, bool) {
	var best market.Bid
	found := false
	top := 0.0

	for _, it := range st.Items {
		if it.Winner == agentID {
			continue
		}
		ask := st.Ask(it)
		if !affordable(ask) {
			continue
		}
		surplus := vals.Value(it.ID) - ask
		if surplus > 0 && (!found || surplus > top) {
			best = market.Bid{AgentID: agentID, ItemID: it.ID, Amount: ask}
			top = surplus
			found = true
		}
	}
	return best, found
}

// decideBundle treats every positively valued item as one complementary
// bundle. The bundle costs the prices of held members plus the asks of the
// rest; when that exceeds the bundle's value the agent withdraws, otherwise
// it bids on the first member it is losing.
func decideBundle(st market.State, vals Valuations, agentID string) (market.Bid, bool) {
	value, cost := 0.0, 0.0
	var target *market.Item

	for i, it := range st.Items {
		v := vals.Value(it.ID)
		if v <= 0 {
			continue
		}
		value += v
		if it.Winner == agentID {
			cost += it.Price
			continue
		}
		cost += st.Ask(it)
		if target == nil {
			target = &st.Items[i]
		}
	}

	if cost > value || target == nil {
		return market.Bid{}, false
	}
	return market.Bid{AgentID: agentID, ItemID: target.ID, Amount: st.Ask(*target)}, true
}

// decideFlexible treats valued items as substitutes: holding any one of them
// satisfies the agent; otherwise it bids on the cheapest profitable ask.
func decideFlexible(st market.State, vals Valuations, agentID string) (market.Bid, bool) {
	for _, it := range st.Items {
		if it.Winner == agentID && vals.Value(it.ID) > 0 {
			return market.Bid{}, false
		}
	}

	var best market.Bid
	found := false

	for _, it := range st.Items {
		v := vals.Value(it.ID)
		if v <= 0 {
			continue
		}
		ask := st.Ask(it)
		if v-ask <= 0 {
			continue
		}
		if !found || ask < best.Amount {
			best = market.Bid{AgentID: agentID, ItemID: it.ID, Amount: ask}
			found = true
		}
	}
	return best, found
}
