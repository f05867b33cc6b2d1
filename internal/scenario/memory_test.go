package scenario_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/clock-auction/internal/scenario"
	"github.com/talgya/clock-auction/internal/scenario/scenariotest"
)

func TestMemoryStore(t *testing.T) {
	scenariotest.Run(t, func(*testing.T) scenario.Store { return scenario.NewMemoryStore() })
}

func TestPreloadedAreValid(t *testing.T) {
	for _, s := range scenario.Preloaded() {
		assert.NoError(t, s.Validate(), s.Name)
		assert.True(t, scenario.IsProtected(s.ID))
	}
	assert.False(t, scenario.IsProtected(100))
	assert.False(t, scenario.IsProtected(0))
}
