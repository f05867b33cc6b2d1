// Package scenariotest holds the behavior every scenario.Store must share,
// run by each backend's tests.
package scenariotest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clock-auction/internal/scenario"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) scenario.Store) {
	ctx := context.Background()

	t.Run("seeded", func(t *testing.T) {
		st := newStore(t)
		list, err := st.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "General Purpose Cloud", list[0].Name)
		assert.Equal(t, "HPC Cluster Congestion", list[1].Name)
		assert.Equal(t, "Mixed Workload Optimization", list[2].Name)

		mixed, err := st.Get(ctx, 3)
		require.NoError(t, err)
		require.Len(t, mixed.Agents, 3)
		assert.Equal(t, "Dev_Test_Env", mixed.Agents[2].Name)
		assert.Equal(t, 15.0, mixed.Agents[2].Budget)

		cloud, err := st.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, cloud.Agents[3].TargetSlot)
	})

	t.Run("create get update delete", func(t *testing.T) {
		st := newStore(t)
		created, err := st.Create(ctx, scenario.Scenario{
			Name: "edge", SlotCount: 2, MaxRounds: 10,
			Agents: []scenario.AgentSpec{{Name: "a_1", Strategy: "MYOPIC", Profile: "RICH", TargetSlot: -1}},
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, created.ID, int64(100))
		assert.Equal(t, scenario.DefaultIncrement, created.Increment)
		require.Len(t, created.Agents, 1)
		assert.NotZero(t, created.Agents[0].ID)

		got, err := st.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)

		got.Name = "edge-2"
		got.Increment = 2.5
		got.Agents = nil
		updated, err := st.Update(ctx, got)
		require.NoError(t, err)
		assert.Equal(t, "edge-2", updated.Name)
		assert.Equal(t, 2.5, updated.Increment)
		assert.Len(t, updated.Agents, 1, "update keeps the roster")

		require.NoError(t, st.Delete(ctx, created.ID))
		_, err = st.Get(ctx, created.ID)
		assert.ErrorIs(t, err, scenario.ErrNotFound)
		assert.ErrorIs(t, st.Delete(ctx, created.ID), scenario.ErrNotFound)
	})

	t.Run("preloaded are protected", func(t *testing.T) {
		st := newStore(t)
		for id := int64(1); id <= 3; id++ {
			assert.ErrorIs(t, st.Delete(ctx, id), scenario.ErrProtected)
		}
		list, err := st.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})

	t.Run("validation", func(t *testing.T) {
		st := newStore(t)
		bad := []scenario.Scenario{
			{Name: "", SlotCount: 1, MaxRounds: 1},
			{Name: "x", SlotCount: 0, MaxRounds: 1},
			{Name: "x", SlotCount: 1, MaxRounds: 0},
			{Name: "x", SlotCount: 1, MaxRounds: 1, Agents: []scenario.AgentSpec{{Name: "a", Strategy: "GREEDY"}}},
			{Name: "x", SlotCount: 1, MaxRounds: 1, Agents: []scenario.AgentSpec{{Name: "a", Profile: "MEDIUM"}}},
		}
		for _, s := range bad {
			_, err := st.Create(ctx, s)
			assert.ErrorIs(t, err, scenario.ErrInvalid, "%+v", s)
		}

		_, err := st.Update(ctx, scenario.Scenario{ID: 9999, Name: "x", SlotCount: 1, MaxRounds: 1})
		assert.ErrorIs(t, err, scenario.ErrNotFound)
	})

	t.Run("agents", func(t *testing.T) {
		st := newStore(t)
		added, err := st.AddAgent(ctx, 2, scenario.AgentSpec{
			Name: "Late_Joiner", Strategy: "flexible", Profile: "random", TargetSlot: -1, Budget: 40,
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, added.ID, int64(1000))

		list, err := st.ListAgents(ctx, 2)
		require.NoError(t, err)
		require.Len(t, list, 5)
		assert.Equal(t, added, list[4])

		require.NoError(t, st.DeleteAgent(ctx, 2, added.ID))
		list, err = st.ListAgents(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, list, 4)

		assert.ErrorIs(t, st.DeleteAgent(ctx, 2, added.ID), scenario.ErrNotFound)
		assert.ErrorIs(t, st.DeleteAgent(ctx, 9999, 1), scenario.ErrNotFound)
		_, err = st.ListAgents(ctx, 9999)
		assert.ErrorIs(t, err, scenario.ErrNotFound)
		_, err = st.AddAgent(ctx, 9999, scenario.AgentSpec{Name: "x"})
		assert.ErrorIs(t, err, scenario.ErrNotFound)
		_, err = st.AddAgent(ctx, 2, scenario.AgentSpec{Name: "x", Strategy: "nope"})
		assert.ErrorIs(t, err, scenario.ErrInvalid)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		st := newStore(t)
		s, err := st.Get(ctx, 1)
		require.NoError(t, err)
		s.Agents[0].Name = "mutated"

		again, err := st.Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Production_DB_Master", again.Agents[0].Name)
	})
}
