// Package valuation generates private valuation tables for agents from named
// profile kinds. Tables are sparse: a slot that is absent is worth 0.
package valuation

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/market"
)

// ErrUnknownProfile is returned for a profile name outside the known set.
var ErrUnknownProfile = errors.New("unknown valuation profile")

// Profile is a named recipe for drawing a valuation table.
type Profile uint8

const (
	ProfileDefault      Profile = iota // ~40% of slots at 10-30
	ProfileRich                        // half the slots at 30-50
	ProfilePoor                        // half the slots at 5-15
	ProfileFocused                     // one slot at 100
	ProfileBundlePair                  // SLOT_1 and SLOT_2 at 25 each
	ProfileFlexiblePair                // SLOT_1 and SLOT_2 at 30 each
	ProfileRandom                      // half the slots at 10-30, never empty
)

var profileNames = map[Profile]string{
	ProfileDefault:      "DEFAULT",
	ProfileRich:         "RICH",
	ProfilePoor:         "POOR",
	ProfileFocused:      "FOCUSED",
	ProfileBundlePair:   "BUNDLE_PAIR",
	ProfileFlexiblePair: "FLEXIBLE_PAIR",
	ProfileRandom:       "RANDOM",
}

func (p Profile) String() string {
	if name, ok := profileNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Profile(%d)", uint8(p))
}

// ParseProfile maps a case-insensitive name to a Profile. An empty name or
// DEFAULT selects the fallback profile.
func ParseProfile(name string) (Profile, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "" {
		return ProfileDefault, nil
	}
	for p, n := range profileNames {
		if n == upper {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// Oracle produces a valuation table for a profile. targetSlot is a 1-based
// hint used by FOCUSED; values outside 1..slotCount mean "pick one".
type Oracle interface {
	Generate(p Profile, slotCount, targetSlot int) agents.Valuations
}

// Generator is the default Oracle, backed by a seeded PCG source. Safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator. A zero seed draws a random one.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate implements Oracle.
func (g *Generator) Generate(p Profile, slotCount, targetSlot int) agents.Valuations {
	g.mu.Lock()
	defer g.mu.Unlock()

	vals := agents.Valuations{}
	if slotCount <= 0 {
		return vals
	}

	switch p {
	case ProfileRich:
		g.fill(vals, slotCount, 0.5, 30, 20)
	case ProfilePoor:
		g.fill(vals, slotCount, 0.5, 5, 10)
	case ProfileFocused:
		slot := targetSlot
		if slot < 1 || slot > slotCount {
			slot = g.rng.IntN(slotCount) + 1
		}
		vals[market.SlotID(slot)] = 100
	case ProfileBundlePair:
		vals[market.SlotID(1)] = 25
		vals[market.SlotID(2)] = 25
	case ProfileFlexiblePair:
		vals[market.SlotID(1)] = 30
		vals[market.SlotID(2)] = 30
	case ProfileRandom:
		g.fill(vals, slotCount, 0.5, 10, 20)
		if len(vals) == 0 {
			vals[market.SlotID(g.rng.IntN(slotCount)+1)] = 10 + g.rng.Float64()*20
		}
	default:
		g.fill(vals, slotCount, 0.4, 10, 20)
	}
	return vals
}

// fill gives each slot a value in [base, base+spread) with probability chance.
func (g *Generator) fill(vals agents.Valuations, slotCount int, chance, base, spread float64) {
	for i := 1; i <= slotCount; i++ {
		if g.rng.Float64() < chance {
			vals[market.SlotID(i)] = base + g.rng.Float64()*spread
		}
	}
}
