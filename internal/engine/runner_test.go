package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/logging"
	"github.com/talgya/clock-auction/internal/market"
	"github.com/talgya/clock-auction/internal/metrics"
	"github.com/talgya/clock-auction/internal/scenario"
	"github.com/talgya/clock-auction/internal/valuation"
)

// scriptedOracle hands out fixed tables in the order agents are built.
type scriptedOracle struct {
	mu     sync.Mutex
	tables []agents.Valuations
	next   int
}

func (o *scriptedOracle) Generate(valuation.Profile, int, int) agents.Valuations {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := o.tables[o.next%len(o.tables)]
	o.next++
	return v
}

func script(tables ...agents.Valuations) *scriptedOracle {
	return &scriptedOracle{tables: tables}
}

func twoBidders() scenario.Scenario {
	return scenario.Scenario{
		Name: "two bidders", SlotCount: 3, MaxRounds: 100, Increment: 1,
		Agents: []scenario.AgentSpec{
			{Name: "A_1", Strategy: "MYOPIC"},
			{Name: "B_1", Strategy: "MYOPIC"},
		},
	}
}

func twoBidderOracle() *scriptedOracle {
	return script(agents.Valuations{"SLOT_1": 20}, agents.Valuations{"SLOT_1": 15})
}

func TestRunScenario_ContestedSlot(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRunner(market.New(nil), nil, twoBidderOracle(), metrics.New(reg))

	rep, err := r.RunScenario(twoBidders())
	require.NoError(t, err)

	assert.True(t, rep.Converged)
	assert.False(t, rep.Final.Active)
	require.Len(t, rep.Rounds, 16)

	// rounds 1-14: both bid, price climbs by the increment
	for i := 0; i < 14; i++ {
		assert.Equal(t, RoundStat{Round: i + 1, BidCount: 2, Revenue: float64(i + 1)}, rep.Rounds[i])
	}
	// round 15: B's ask of 15 leaves no surplus, A takes it
	assert.Equal(t, RoundStat{Round: 15, BidCount: 1, Revenue: 15}, rep.Rounds[14])
	assert.Equal(t, RoundStat{Round: 16, BidCount: 0, Revenue: 15}, rep.Rounds[15])

	slot1, ok := rep.Final.Item("SLOT_1")
	require.True(t, ok)
	assert.Equal(t, "A_1", slot1.Winner)
	assert.Equal(t, 15.0, slot1.Price)

	assert.Len(t, rep.Bids, 29)
	assert.Equal(t, BidRecord{Round: 15, AgentID: "A_1", ItemID: "SLOT_1", Amount: 15}, rep.Bids[28])

	require.Len(t, rep.Equilibrium, 16)
	last := rep.Equilibrium[15]
	assert.True(t, last.IsNashEquilibrium)
	assert.Zero(t, last.ImprovableCount)
	assert.Equal(t, 5.0, last.SocialWelfare)
	assert.InDelta(t, 0.25, last.ParetoRatio, 1e-9)

	assert.True(t, decimal.NewFromInt(15).Equal(rep.Allocation.TotalRevenue))
	assert.Len(t, rep.Allocation.Items, 3)

	count, err := testutil.GatherAndCount(reg, "auction_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunScenario_PricesNeverDecrease(t *testing.T) {
	r := NewRunner(market.New(nil), nil, valuation.NewGenerator(11), nil)
	s := scenario.Preloaded()[1]

	rep, err := r.RunScenario(s)
	require.NoError(t, err)
	for i := 1; i < len(rep.Rounds); i++ {
		assert.GreaterOrEqual(t, rep.Rounds[i].Revenue, rep.Rounds[i-1].Revenue)
	}
	for _, eq := range rep.Equilibrium {
		assert.GreaterOrEqual(t, eq.ParetoRatio, 0.0)
		assert.LessOrEqual(t, eq.ParetoRatio, 1.0)
	}
}

func TestRunScenario_SingleAgentSingleItem(t *testing.T) {
	r := NewRunner(market.New(nil), nil, script(agents.Valuations{"SLOT_1": 10}), nil)

	rep, err := r.RunScenario(scenario.Scenario{
		Name: "solo", SlotCount: 1, MaxRounds: 10, Increment: 1,
		Agents: []scenario.AgentSpec{{Name: "Solo_Agent"}},
	})
	require.NoError(t, err)

	require.Len(t, rep.Rounds, 2)
	assert.Equal(t, 1, rep.Rounds[0].BidCount)
	assert.Equal(t, 0, rep.Rounds[1].BidCount)
	assert.True(t, rep.Converged)
	assert.Equal(t, market.Item{ID: "SLOT_1", Price: 1, Winner: "Solo_Agent"}, rep.Final.Items[0])
	assert.True(t, rep.Equilibrium[0].IsNashEquilibrium)
}

func TestRunScenario_RoundCap(t *testing.T) {
	r := NewRunner(market.New(nil), nil, twoBidderOracle(), nil)
	s := twoBidders()
	s.MaxRounds = 5

	rep, err := r.RunScenario(s)
	require.NoError(t, err)
	assert.False(t, rep.Converged)
	assert.True(t, rep.Final.Active)
	assert.Equal(t, 5, rep.Final.Round)
	assert.Len(t, rep.Rounds, 5)
}

func TestRunScenario_ConfigErrors(t *testing.T) {
	r := NewRunner(market.New(nil), nil, twoBidderOracle(), nil)
	_, err := r.RunScenario(twoBidders())
	require.NoError(t, err)

	tests := map[string]func(*scenario.Scenario){
		"no slots":         func(s *scenario.Scenario) { s.SlotCount = 0 },
		"no rounds":        func(s *scenario.Scenario) { s.MaxRounds = -1 },
		"no increment":     func(s *scenario.Scenario) { s.Increment = 0 },
		"unknown strategy": func(s *scenario.Scenario) { s.Agents[0].Strategy = "GREEDY" },
		"unknown profile":  func(s *scenario.Scenario) { s.Agents[1].Profile = "MEDIUM" },
		"duplicate agent":  func(s *scenario.Scenario) { s.Agents[1].Name = s.Agents[0].Name },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := twoBidders()
			mutate(&s)
			_, err := r.RunScenario(s)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			rep, err := r.Results()
			require.NoError(t, err)
			assert.Len(t, rep.Rounds, 16, "previous history is kept")
			assert.False(t, r.Busy())
		})
	}
}

func TestRunScenario_ClearsHistory(t *testing.T) {
	oracle := script(
		agents.Valuations{"SLOT_1": 20}, agents.Valuations{"SLOT_1": 15},
		agents.Valuations{"SLOT_1": 10},
	)
	r := NewRunner(market.New(nil), nil, oracle, nil)

	_, err := r.RunScenario(twoBidders())
	require.NoError(t, err)

	_, err = r.RunScenario(scenario.Scenario{
		Name: "solo", SlotCount: 1, MaxRounds: 10, Increment: 1,
		Agents: []scenario.AgentSpec{{Name: "Solo_Agent"}},
	})
	require.NoError(t, err)

	rep, err := r.Results()
	require.NoError(t, err)
	assert.Equal(t, "solo", rep.Scenario)
	assert.Len(t, rep.Rounds, 2)
	assert.Len(t, rep.Bids, 1)
}

func TestRunStored(t *testing.T) {
	ctx := context.Background()
	store := scenario.NewMemoryStore()
	created, err := store.Create(ctx, twoBidders())
	require.NoError(t, err)

	r := NewRunner(market.New(nil), store, twoBidderOracle(), nil)

	_, err = r.RunStored(ctx, 12345)
	assert.ErrorIs(t, err, scenario.ErrNotFound)
	_, err = r.Results()
	assert.ErrorIs(t, err, ErrNoRun, "a missing scenario starts nothing")

	rep, err := r.RunStored(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "two bidders", rep.Scenario)
	assert.True(t, rep.Converged)
}

func TestStartStored_RejectsConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	store := scenario.NewMemoryStore()
	created, err := store.Create(ctx, twoBidders())
	require.NoError(t, err)

	r := NewRunner(market.New(nil), store, twoBidderOracle(), nil)
	r.RoundDelay = 10 * time.Millisecond

	require.NoError(t, r.StartStored(ctx, created.ID))
	assert.True(t, r.Busy())

	assert.ErrorIs(t, r.StartStored(ctx, created.ID), ErrRunInProgress)
	_, err = r.RunScenario(twoBidders())
	assert.ErrorIs(t, err, ErrRunInProgress)

	r.Wait()
	assert.False(t, r.Busy())

	rep, err := r.Results()
	require.NoError(t, err)
	assert.Len(t, rep.Rounds, 16)

	assert.ErrorIs(t, r.StartStored(ctx, 424242), scenario.ErrNotFound)
	assert.False(t, r.Busy(), "failed start releases the guard")
}

func TestManualMarket(t *testing.T) {
	ctx := context.Background()
	store := scenario.NewMemoryStore()
	created, err := store.Create(ctx, twoBidders())
	require.NoError(t, err)

	r := NewRunner(market.New(nil), store, twoBidderOracle(), nil)
	r.RoundDelay = 10 * time.Millisecond

	st, err := r.InitMarket(2, 1)
	require.NoError(t, err)
	assert.True(t, st.Active)
	assert.Len(t, st.Items, 2)
	_, err = r.InitMarket(0, 1)
	assert.ErrorIs(t, err, market.ErrInvalidConfig)
	assert.False(t, r.Busy(), "failed init releases the guard")

	res, st, err := r.ResolveMarket()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Round)
	assert.False(t, st.Active, "a round without bids closes the market")

	require.NoError(t, r.StartStored(ctx, created.ID))
	_, err = r.InitMarket(5, 1)
	assert.ErrorIs(t, err, ErrRunInProgress)
	_, _, err = r.ResolveMarket()
	assert.ErrorIs(t, err, ErrRunInProgress)
	r.Wait()

	rep, err := r.Results()
	require.NoError(t, err)
	assert.Len(t, rep.Rounds, 16, "manual calls did not disturb the run")
	assert.Len(t, r.Market().State().Items, 3)
}

func TestAnalysis(t *testing.T) {
	r := NewRunner(market.New(nil), nil, twoBidderOracle(), nil)

	_, err := r.Nash()
	assert.ErrorIs(t, err, ErrNoRun)
	_, err = r.Pareto()
	assert.ErrorIs(t, err, ErrNoRun)

	_, err = r.RunScenario(twoBidders())
	require.NoError(t, err)

	nash, err := r.Nash()
	require.NoError(t, err)
	assert.True(t, nash.IsEquilibrium)
	assert.Equal(t, 5.0, nash.Payoffs["A_1"].Utility)

	pareto, err := r.Pareto()
	require.NoError(t, err)
	assert.Equal(t, 20.0, pareto.OptimalWelfare)

	st := r.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 16, st.Round)
	assert.Equal(t, "two bidders", st.Scenario)
}

func TestRunScenario_Trace(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(market.New(nil), nil, twoBidderOracle(), nil)
	r.Trace = logging.NewRoundTracer(dir)
	require.NotNil(t, r.Trace)

	_, err := r.RunScenario(twoBidders())
	require.NoError(t, err)
	r.Trace.Close()

	data, err := os.ReadFile(filepath.Join(dir, "rounds.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 16)
	assert.Contains(t, lines[15], `"terminated":true`)
}
