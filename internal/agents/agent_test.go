package agents

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clock-auction/internal/market"
)

func TestIDFromName(t *testing.T) {
	assert.Equal(t, "Production_DB_Master", IDFromName("Production_DB_Master"))

	id := IDFromName("NetAgent")
	require.True(t, strings.HasPrefix(id, "NetAgent_"))
	assert.Len(t, id, len("NetAgent_")+4)
	assert.NotEqual(t, id, IDFromName("NetAgent"), "suffix should be random")
}

func TestBudget(t *testing.T) {
	assert.True(t, NewBudget(0).IsUnlimited())
	assert.True(t, NewBudget(-1).IsUnlimited())
	assert.False(t, NewBudget(15).IsUnlimited())

	assert.True(t, Unlimited.Allows(1e12))
	assert.True(t, NewBudget(15).Allows(15))
	assert.False(t, NewBudget(15).Allows(15.01))

	data, err := json.Marshal(map[string]Budget{"a": Unlimited, "b": 15})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":15}`, string(data))
}

func TestAgent_ValuationsAreIsolated(t *testing.T) {
	vals := Valuations{"SLOT_1": 10}
	a := NewAgent("a_1", StrategyMyopic, vals, Unlimited)

	vals["SLOT_1"] = 0
	assert.Equal(t, 10.0, a.Valuations().Value("SLOT_1"))

	got := a.Valuations()
	got["SLOT_1"] = 99
	assert.Equal(t, 10.0, a.Valuations().Value("SLOT_1"))
	assert.Zero(t, a.Valuations().Value("SLOT_2"), "missing valuation is zero")
}

func TestAgent_NilValuations(t *testing.T) {
	a := NewAgent("a_1", StrategyFlexible, nil, Unlimited)
	st := market.State{Items: []market.Item{{ID: "SLOT_1"}}, Active: true, Increment: 1}
	_, ok := a.Decide(st)
	assert.False(t, ok)
}

func TestAgent_NoBidIntoInactiveMarket(t *testing.T) {
	a := NewAgent("a_1", StrategyMyopic, Valuations{"SLOT_1": 10}, Unlimited)
	st := market.State{Items: []market.Item{{ID: "SLOT_1"}}, Active: false, Increment: 1}
	_, ok := a.Decide(st)
	assert.False(t, ok)

	st.Active = true
	bid, ok := a.Decide(st)
	require.True(t, ok)
	assert.Equal(t, market.Bid{AgentID: "a_1", ItemID: "SLOT_1", Amount: 1}, bid)
}

func TestValuations_Total(t *testing.T) {
	assert.Equal(t, 15.0, Valuations{"a": 10, "b": 5, "c": -3, "d": 0}.Total())
	assert.Zero(t, Valuations(nil).Total())
}
