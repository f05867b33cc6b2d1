package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clock-auction/internal/market"
)

// state builds an active snapshot from (price, winner) pairs for SLOT_1..n.
func state(round int, inc float64, items ...market.Item) market.State {
	for i := range items {
		items[i].ID = market.SlotID(i + 1)
	}
	return market.State{Items: items, Active: true, Round: round, Increment: inc}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  Strategy
	}{
		{"MYOPIC", StrategyMyopic},
		{"myopic", StrategyMyopic},
		{"", StrategyMyopic},
		{"Budget", StrategyBudget},
		{"budget_constrained", StrategyBudget},
		{"SNIPER", StrategySniper},
		{"bundle", StrategyBundle},
		{" FLEXIBLE ", StrategyFlexible},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseStrategy("GREEDY")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestStrategy_StringRoundTrip(t *testing.T) {
	for _, s := range Strategies() {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
}

func TestMyopic(t *testing.T) {
	tests := []struct {
		name     string
		st       market.State
		vals     Valuations
		wantItem string
		wantAmt  float64
		wantBid  bool
	}{
		{
			name:     "picks largest surplus",
			st:       state(0, 1, market.Item{Price: 0}, market.Item{Price: 2}),
			vals:     Valuations{"SLOT_1": 5, "SLOT_2": 10},
			wantItem: "SLOT_2", wantAmt: 3, wantBid: true,
		},
		{
			name:     "tie keeps earlier slot",
			st:       state(0, 1, market.Item{Price: 1}, market.Item{Price: 1}),
			vals:     Valuations{"SLOT_1": 6, "SLOT_2": 6},
			wantItem: "SLOT_1", wantAmt: 2, wantBid: true,
		},
		{
			name:     "skips held item",
			st:       state(0, 1, market.Item{Price: 1, Winner: "me"}, market.Item{Price: 4}),
			vals:     Valuations{"SLOT_1": 50, "SLOT_2": 8},
			wantItem: "SLOT_2", wantAmt: 5, wantBid: true,
		},
		{
			name:    "zero surplus is not enough",
			st:      state(0, 1, market.Item{Price: 4}),
			vals:    Valuations{"SLOT_1": 5},
			wantBid: false,
		},
		{
			name:    "no valuations",
			st:      state(0, 1, market.Item{}, market.Item{}),
			vals:    Valuations{},
			wantBid: false,
		},
		{
			name:     "uses market increment",
			st:       state(0, 2.5, market.Item{Price: 1}),
			vals:     Valuations{"SLOT_1": 10},
			wantItem: "SLOT_1", wantAmt: 3.5, wantBid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bid, ok := StrategyMyopic.Decide(tt.st, tt.vals, "me", Unlimited)
			require.Equal(t, tt.wantBid, ok)
			if ok {
				assert.Equal(t, market.Bid{AgentID: "me", ItemID: tt.wantItem, Amount: tt.wantAmt}, bid)
			}
		})
	}
}

func TestBudgetConstrained(t *testing.T) {
	st := state(0, 1,
		market.Item{Price: 6, Winner: "me"},
		market.Item{Price: 9},
		market.Item{Price: 2},
	)
	vals := Valuations{"SLOT_1": 10, "SLOT_2": 30, "SLOT_3": 5}

	t.Run("excludes unaffordable best", func(t *testing.T) {
		// exposure 6; SLOT_2 ask 10 -> 16 > 12, SLOT_3 ask 3 -> 9 ok
		bid, ok := StrategyBudget.Decide(st, vals, "me", NewBudget(12))
		require.True(t, ok)
		assert.Equal(t, "SLOT_3", bid.ItemID)
		assert.Equal(t, 3.0, bid.Amount)
	})

	t.Run("exact budget is allowed", func(t *testing.T) {
		bid, ok := StrategyBudget.Decide(st, vals, "me", NewBudget(16))
		require.True(t, ok)
		assert.Equal(t, "SLOT_2", bid.ItemID)
	})

	t.Run("nothing affordable", func(t *testing.T) {
		_, ok := StrategyBudget.Decide(st, vals, "me", NewBudget(7))
		assert.False(t, ok)
	})

	t.Run("unlimited matches myopic", func(t *testing.T) {
		got, ok := StrategyBudget.Decide(st, vals, "me", Unlimited)
		require.True(t, ok)
		want, _ := StrategyMyopic.Decide(st, vals, "me", Unlimited)
		assert.Equal(t, want, got)
	})
}

func TestSniper(t *testing.T) {
	vals := Valuations{"SLOT_1": 10}
	for round := 0; round < 3; round++ {
		_, ok := StrategySniper.Decide(state(round, 1, market.Item{}), vals, "me", Unlimited)
		assert.False(t, ok, "round %d", round)
	}

	bid, ok := StrategySniper.Decide(state(3, 1, market.Item{Price: 2}), vals, "me", Unlimited)
	require.True(t, ok)
	assert.Equal(t, 3.0, bid.Amount)
}

func TestBundle(t *testing.T) {
	vals := Valuations{"SLOT_1": 25, "SLOT_2": 25}

	t.Run("bids on first losing member", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 10, Winner: "me"}, market.Item{Price: 12, Winner: "x"}, market.Item{})
		bid, ok := StrategyBundle.Decide(st, vals, "me", Unlimited)
		require.True(t, ok)
		assert.Equal(t, market.Bid{AgentID: "me", ItemID: "SLOT_2", Amount: 13}, bid)
	})

	t.Run("member may be individually unprofitable", func(t *testing.T) {
		// cost 10 + 30 = 40 <= 50 even though SLOT_2 alone is worth 25
		st := state(0, 1, market.Item{Price: 10, Winner: "me"}, market.Item{Price: 29})
		bid, ok := StrategyBundle.Decide(st, vals, "me", Unlimited)
		require.True(t, ok)
		assert.Equal(t, 30.0, bid.Amount)
	})

	t.Run("withdraws when bundle too expensive", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 20, Winner: "me"}, market.Item{Price: 30})
		_, ok := StrategyBundle.Decide(st, vals, "me", Unlimited)
		assert.False(t, ok)
	})

	t.Run("holding whole bundle", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 5, Winner: "me"}, market.Item{Price: 5, Winner: "me"})
		_, ok := StrategyBundle.Decide(st, vals, "me", Unlimited)
		assert.False(t, ok)
	})

	t.Run("no valued items", func(t *testing.T) {
		_, ok := StrategyBundle.Decide(state(0, 1, market.Item{}), Valuations{}, "me", Unlimited)
		assert.False(t, ok)
	})
}

func TestFlexible(t *testing.T) {
	vals := Valuations{"SLOT_1": 30, "SLOT_2": 30, "SLOT_3": 0}

	t.Run("satisfied when holding a valued item", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 1}, market.Item{Price: 20, Winner: "me"})
		_, ok := StrategyFlexible.Decide(st, vals, "me", Unlimited)
		assert.False(t, ok)
	})

	t.Run("holding an unvalued item does not satisfy", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 4}, market.Item{Price: 2}, market.Item{Price: 0, Winner: "me"})
		bid, ok := StrategyFlexible.Decide(st, vals, "me", Unlimited)
		require.True(t, ok)
		assert.Equal(t, "SLOT_2", bid.ItemID)
		assert.Equal(t, 3.0, bid.Amount)
	})

	t.Run("tie on ask keeps earlier slot", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 2}, market.Item{Price: 2})
		bid, ok := StrategyFlexible.Decide(st, vals, "me", Unlimited)
		require.True(t, ok)
		assert.Equal(t, "SLOT_1", bid.ItemID)
	})

	t.Run("no profitable ask", func(t *testing.T) {
		st := state(0, 1, market.Item{Price: 29}, market.Item{Price: 40})
		_, ok := StrategyFlexible.Decide(st, vals, "me", Unlimited)
		assert.False(t, ok)
	})
}

func TestStrategies_ArePure(t *testing.T) {
	st := state(4, 1, market.Item{Price: 3}, market.Item{Price: 1, Winner: "other"})
	vals := Valuations{"SLOT_1": 12, "SLOT_2": 9}
	for _, s := range Strategies() {
		first, ok1 := s.Decide(st, vals, "me", NewBudget(20))
		second, ok2 := s.Decide(st, vals, "me", NewBudget(20))
		assert.Equal(t, ok1, ok2, s.String())
		assert.Equal(t, first, second, s.String())
	}
}
