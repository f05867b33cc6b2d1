// Package scenario defines stored auction setups (slot count, round cap,
// increment and an agent roster) and the stores that hold them.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/valuation"
)

var (
	// ErrNotFound is returned when a scenario or agent id does not exist.
	ErrNotFound = errors.New("scenario not found")
	// ErrProtected is returned when deleting one of the preloaded scenarios.
	ErrProtected = errors.New("preloaded scenario cannot be deleted")
	// ErrInvalid is returned for a scenario or agent spec that fails validation.
	ErrInvalid = errors.New("invalid scenario")
)

// DefaultIncrement applies when a scenario is stored without a positive increment.
const DefaultIncrement = 1.0

// NoTarget marks an agent spec without a preferred slot.
const NoTarget = -1

// Scenario is one auction setup.
type Scenario struct {
	ID        int64       `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	SlotCount int         `json:"slot_count" db:"slot_count"`
	MaxRounds int         `json:"max_rounds" db:"max_rounds"`
	Increment float64     `json:"increment" db:"increment"`
	Agents    []AgentSpec `json:"agents" db:"-"`
}

// AgentSpec configures one agent of a scenario. Budget <= 0 means unlimited.
type AgentSpec struct {
	ID         int64   `json:"id" db:"id"`
	Name       string  `json:"name" db:"name"`
	Strategy   string  `json:"strategy" db:"strategy"`
	Profile    string  `json:"profile" db:"profile"`
	TargetSlot int     `json:"target_slot" db:"target_slot"`
	Budget     float64 `json:"budget" db:"budget"`
}

// Normalize fills defaults in place.
func (s *Scenario) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	if s.Increment <= 0 {
		s.Increment = DefaultIncrement
	}
}

// Validate checks the scenario and every agent spec.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if s.SlotCount <= 0 {
		return fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalid, s.SlotCount)
	}
	if s.MaxRounds <= 0 {
		return fmt.Errorf("%w: max rounds must be positive, got %d", ErrInvalid, s.MaxRounds)
	}
	for _, a := range s.Agents {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects unknown strategy and profile names.
func (a AgentSpec) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalid)
	}
	if _, err := agents.ParseStrategy(a.Strategy); err != nil {
		return fmt.Errorf("%w: agent %s: %w", ErrInvalid, a.Name, err)
	}
	if _, err := valuation.ParseProfile(a.Profile); err != nil {
		return fmt.Errorf("%w: agent %s: %w", ErrInvalid, a.Name, err)
	}
	return nil
}

// IsProtected reports whether id belongs to a preloaded scenario.
func IsProtected(id int64) bool {
	return id >= 1 && id <= lastPreloadedID
}

// Store persists scenarios. Implementations return copies; callers may
// mutate what they receive.
type Store interface {
	List(ctx context.Context) ([]Scenario, error)
	Get(ctx context.Context, id int64) (Scenario, error)
	Create(ctx context.Context, s Scenario) (Scenario, error)
	// Update replaces name, slot count, round cap and increment. Agents are kept.
	Update(ctx context.Context, s Scenario) (Scenario, error)
	Delete(ctx context.Context, id int64) error

	ListAgents(ctx context.Context, scenarioID int64) ([]AgentSpec, error)
	AddAgent(ctx context.Context, scenarioID int64, a AgentSpec) (AgentSpec, error)
	DeleteAgent(ctx context.Context, scenarioID, agentID int64) error
}
