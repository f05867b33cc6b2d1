package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps scenarios in a map. Safe for concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	scenarios map[int64]Scenario
	nextID    int64
	nextAgent int64
}

// NewMemoryStore returns a store seeded with the preloaded scenarios.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		scenarios: make(map[int64]Scenario),
		nextID:    firstScenarioID,
		nextAgent: firstAgentID,
	}
	for _, s := range Preloaded() {
		m.scenarios[s.ID] = s
	}
	slog.Info("loaded preloaded scenarios", "count", len(m.scenarios))
	return m
}

func clone(s Scenario) Scenario {
	s.Agents = slices.Clone(s.Agents)
	if s.Agents == nil {
		s.Agents = []AgentSpec{}
	}
	return s
}

func (m *MemoryStore) List(_ context.Context) ([]Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Scenario, 0, len(m.scenarios))
	for _, id := range slices.Sorted(maps.Keys(m.scenarios)) {
		out = append(out, clone(m.scenarios[id]))
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenarios[id]
	if !ok {
		return Scenario{}, fmt.Errorf("get scenario %d: %w", id, ErrNotFound)
	}
	return clone(s), nil
}

// Create stores s under a fresh id. Any agents on s are added with fresh ids too.
func (m *MemoryStore) Create(_ context.Context, s Scenario) (Scenario, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = m.nextID
	m.nextID++
	s = clone(s)
	for i := range s.Agents {
		s.Agents[i].ID = m.nextAgent
		m.nextAgent++
	}
	m.scenarios[s.ID] = s
	slog.Info("scenario created", "id", s.ID, "name", s.Name)
	return clone(s), nil
}

func (m *MemoryStore) Update(_ context.Context, s Scenario) (Scenario, error) {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Scenario{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.scenarios[s.ID]
	if !ok {
		return Scenario{}, fmt.Errorf("update scenario %d: %w", s.ID, ErrNotFound)
	}
	s.Agents = existing.Agents
	m.scenarios[s.ID] = s
	slog.Info("scenario updated", "id", s.ID, "name", s.Name, "increment", s.Increment)
	return clone(s), nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	if IsProtected(id) {
		slog.Warn("refusing to delete preloaded scenario", "id", id)
		return fmt.Errorf("delete scenario %d: %w", id, ErrProtected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scenarios[id]
	if !ok {
		return fmt.Errorf("delete scenario %d: %w", id, ErrNotFound)
	}
	delete(m.scenarios, id)
	slog.Info("scenario deleted", "id", id, "name", s.Name)
	return nil
}

func (m *MemoryStore) ListAgents(_ context.Context, scenarioID int64) ([]AgentSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("list agents of %d: %w", scenarioID, ErrNotFound)
	}
	return clone(s).Agents, nil
}

func (m *MemoryStore) AddAgent(_ context.Context, scenarioID int64, a AgentSpec) (AgentSpec, error) {
	if err := a.Validate(); err != nil {
		return AgentSpec{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scenarios[scenarioID]
	if !ok {
		return AgentSpec{}, fmt.Errorf("add agent to %d: %w", scenarioID, ErrNotFound)
	}
	a.ID = m.nextAgent
	m.nextAgent++
	s.Agents = append(slices.Clone(s.Agents), a)
	m.scenarios[scenarioID] = s
	slog.Info("agent added", "scenario", s.Name, "agent", a.Name, "strategy", a.Strategy)
	return a, nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, scenarioID, agentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scenarios[scenarioID]
	if !ok {
		return fmt.Errorf("delete agent from %d: %w", scenarioID, ErrNotFound)
	}
	i := slices.IndexFunc(s.Agents, func(a AgentSpec) bool { return a.ID == agentID })
	if i < 0 {
		return fmt.Errorf("delete agent %d from %d: %w", agentID, scenarioID, ErrNotFound)
	}
	s.Agents = slices.Delete(slices.Clone(s.Agents), i, i+1)
	m.scenarios[scenarioID] = s
	slog.Info("agent deleted", "scenario", s.Name, "agent_id", agentID)
	return nil
}
