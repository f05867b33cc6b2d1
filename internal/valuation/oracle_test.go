package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/market"
)

func TestParseProfile(t *testing.T) {
	for p, name := range profileNames {
		got, err := ParseProfile(name)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParseProfile(" bundle_pair ")
	require.NoError(t, err)
	assert.Equal(t, ProfileBundlePair, got)

	got, err = ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, ProfileDefault, got)

	_, err = ParseProfile("MEDIUM")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func inRange(t *testing.T, vals agents.Valuations, slotCount int, lo, hi float64) {
	t.Helper()
	for id, v := range vals {
		_, ok := slotIndex(id, slotCount)
		assert.True(t, ok, "unexpected key %s", id)
		assert.GreaterOrEqual(t, v, lo, id)
		assert.Less(t, v, hi, id)
	}
}

func slotIndex(id string, slotCount int) (int, bool) {
	for i := 1; i <= slotCount; i++ {
		if market.SlotID(i) == id {
			return i, true
		}
	}
	return 0, false
}

func TestGenerate_Ranges(t *testing.T) {
	g := NewGenerator(42)
	for range 50 {
		inRange(t, g.Generate(ProfileRich, 8, -1), 8, 30, 50)
		inRange(t, g.Generate(ProfilePoor, 8, -1), 8, 5, 15)
		inRange(t, g.Generate(ProfileRandom, 8, -1), 8, 10, 30)
		inRange(t, g.Generate(ProfileDefault, 8, -1), 8, 10, 30)
	}
}

func TestGenerate_RandomNeverEmpty(t *testing.T) {
	g := NewGenerator(7)
	for range 200 {
		assert.NotEmpty(t, g.Generate(ProfileRandom, 1, -1))
	}
}

func TestGenerate_Focused(t *testing.T) {
	g := NewGenerator(1)
	assert.Equal(t, agents.Valuations{"SLOT_3": 100}, g.Generate(ProfileFocused, 5, 3))

	for range 20 {
		vals := g.Generate(ProfileFocused, 5, 9)
		require.Len(t, vals, 1)
		inRange(t, vals, 5, 100, 100.1)
	}
}

func TestGenerate_Pairs(t *testing.T) {
	g := NewGenerator(1)
	assert.Equal(t, agents.Valuations{"SLOT_1": 25, "SLOT_2": 25}, g.Generate(ProfileBundlePair, 5, -1))
	assert.Equal(t, agents.Valuations{"SLOT_1": 30, "SLOT_2": 30}, g.Generate(ProfileFlexiblePair, 5, -1))
}

func TestGenerate_SeedIsDeterministic(t *testing.T) {
	a, b := NewGenerator(99), NewGenerator(99)
	for _, p := range []Profile{ProfileRich, ProfilePoor, ProfileRandom, ProfileDefault, ProfileFocused} {
		assert.Equal(t, a.Generate(p, 10, -1), b.Generate(p, 10, -1), p.String())
	}
}

func TestGenerate_NoSlots(t *testing.T) {
	assert.Empty(t, NewGenerator(3).Generate(ProfileFocused, 0, 1))
}
