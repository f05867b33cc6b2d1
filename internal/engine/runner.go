// Package engine runs auction simulations: agents decide against a shared
// snapshot, the market resolves, the analyzer evaluates, and the round is
// recorded, until the market converges or the round cap is hit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/equilibrium"
	"github.com/talgya/clock-auction/internal/logging"
	"github.com/talgya/clock-auction/internal/market"
	"github.com/talgya/clock-auction/internal/metrics"
	"github.com/talgya/clock-auction/internal/scenario"
	"github.com/talgya/clock-auction/internal/valuation"
)

var (
	// ErrInvalidConfig covers every configuration problem caught before a run starts.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrRunInProgress is returned when a run is requested while another is active.
	ErrRunInProgress = errors.New("simulation already running")
	// ErrNoRun is returned by analysis calls before any run has started.
	ErrNoRun = errors.New("no simulation has run")
)

// Run results label values.
const (
	resultConverged = "converged"
	resultRoundCap  = "round_cap"
)

// Runner owns the market for the duration of a run. Only one run may be
// active at a time.
type Runner struct {
	// RoundDelay pauses between rounds so observers can follow along.
	// Zero runs flat out. Set before starting a run.
	RoundDelay time.Duration
	// Trace, when set, receives one JSON line per round.
	Trace *logging.RoundTracer

	market  *market.Market
	store   scenario.Store
	oracle  valuation.Oracle
	metrics *metrics.Metrics

	running atomic.Bool
	wg      sync.WaitGroup

	mu       sync.RWMutex // guards everything below
	report   Report
	roster   []*agents.Agent
	vals     map[string]agents.Valuations
	hasRun   bool
	lastRun  time.Time
	maxRound int
}

// NewRunner wires a runner. store may be nil if only RunScenario is used;
// m may be nil.
func NewRunner(mk *market.Market, store scenario.Store, oracle valuation.Oracle, m *metrics.Metrics) *Runner {
	return &Runner{
		market:  mk,
		store:   store,
		oracle:  oracle,
		metrics: m,
	}
}

// Market returns the market the runner drives.
func (r *Runner) Market() *market.Market { return r.market }

// Busy reports whether a run is in progress.
func (r *Runner) Busy() bool { return r.running.Load() }

// InitMarket resets the market for manual play. It holds the run guard for
// its duration, so it fails with ErrRunInProgress while a simulation runs.
func (r *Runner) InitMarket(slotCount int, increment float64) (market.State, error) {
	if !r.running.CompareAndSwap(false, true) {
		return market.State{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	if err := r.market.Init(slotCount, increment); err != nil {
		return market.State{}, err
	}
	return r.market.State(), nil
}

// ResolveMarket closes the current round by hand, under the same guard as
// InitMarket.
func (r *Runner) ResolveMarket() (market.Resolution, market.State, error) {
	if !r.running.CompareAndSwap(false, true) {
		return market.Resolution{}, market.State{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	res := r.market.ResolveRound()
	return res, r.market.State(), nil
}

// Wait blocks until a run started with StartStored has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// RunScenario validates s, builds its agents, and runs it to completion.
func (r *Runner) RunScenario(s scenario.Scenario) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	roster, err := r.prepare(s)
	if err != nil {
		return Report{}, err
	}
	return r.run(s, roster)
}

// RunStored loads scenario id from the store and runs it. A missing scenario
// fails with scenario.ErrNotFound before anything is reset.
func (r *Runner) RunStored(ctx context.Context, id int64) (Report, error) {
	s, err := r.load(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return r.RunScenario(s)
}

// StartStored is RunStored in the background. Configuration, lookup and
// busy errors are returned synchronously; once it returns nil the run has
// been accepted. Use Wait or Busy to follow it.
func (r *Runner) StartStored(ctx context.Context, id int64) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	s, err := r.load(ctx, id)
	if err != nil {
		r.running.Store(false)
		return err
	}
	roster, err := r.prepare(s)
	if err != nil {
		r.running.Store(false)
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		if _, err := r.run(s, roster); err != nil {
			slog.Error("simulation failed", "scenario", s.Name, "error", err)
		}
	}()
	return nil
}

func (r *Runner) load(ctx context.Context, id int64) (scenario.Scenario, error) {
	if r.store == nil {
		return scenario.Scenario{}, fmt.Errorf("load scenario %d: %w", id, scenario.ErrNotFound)
	}
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return scenario.Scenario{}, fmt.Errorf("load scenario: %w", err)
	}
	return s, nil
}

// prepare validates s and builds its agents. Nothing is mutated on failure.
func (r *Runner) prepare(s scenario.Scenario) ([]*agents.Agent, error) {
	if s.SlotCount <= 0 {
		return nil, fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalidConfig, s.SlotCount)
	}
	if s.MaxRounds <= 0 {
		return nil, fmt.Errorf("%w: max rounds must be positive, got %d", ErrInvalidConfig, s.MaxRounds)
	}
	if s.Increment <= 0 {
		return nil, fmt.Errorf("%w: price increment must be positive, got %v", ErrInvalidConfig, s.Increment)
	}

	roster := make([]*agents.Agent, 0, len(s.Agents))
	seen := make(map[string]bool, len(s.Agents))
	for _, spec := range s.Agents {
		strategy, err := agents.ParseStrategy(spec.Strategy)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: %w", ErrInvalidConfig, spec.Name, err)
		}
		profile, err := valuation.ParseProfile(spec.Profile)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: %w", ErrInvalidConfig, spec.Name, err)
		}
		id := agents.IDFromName(spec.Name)
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate agent id %s", ErrInvalidConfig, id)
		}
		seen[id] = true

		vals := r.oracle.Generate(profile, s.SlotCount, spec.TargetSlot)
		roster = append(roster, agents.NewAgent(id, strategy, vals, agents.NewBudget(spec.Budget)))
	}
	return roster, nil
}

// run drives the round loop. The caller holds the single-run guard.
func (r *Runner) run(s scenario.Scenario, roster []*agents.Agent) (Report, error) {
	vals := make(map[string]agents.Valuations, len(roster))
	deciders := make([]equilibrium.Decider, len(roster))
	for i, a := range roster {
		vals[a.ID()] = a.Valuations()
		deciders[i] = a
	}

	if err := r.market.Init(s.SlotCount, s.Increment); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	r.mu.Lock()
	r.report = Report{
		Scenario:    s.Name,
		Rounds:      []RoundStat{},
		Bids:        []BidRecord{},
		Equilibrium: []EquilibriumRoundStat{},
	}
	r.roster = roster
	r.vals = vals
	r.hasRun = true
	r.lastRun = time.Now()
	r.maxRound = s.MaxRounds
	r.mu.Unlock()

	slog.Info("simulation started",
		"scenario", s.Name, "slots", s.SlotCount, "agents", len(roster),
		"max_rounds", s.MaxRounds, "increment", s.Increment)

	for st := r.market.State(); st.Active && st.Round < s.MaxRounds; st = r.market.State() {
		r.playRound(st, roster, vals, deciders)

		if r.RoundDelay > 0 && r.market.State().Active {
			time.Sleep(r.RoundDelay)
		}
	}

	final := r.market.State()
	alloc := Allocate(final)
	converged := !final.Active

	r.mu.Lock()
	r.report.Final = final
	r.report.Converged = converged
	r.report.Allocation = alloc
	report := r.copyReportLocked()
	r.mu.Unlock()

	result := resultRoundCap
	if converged {
		result = resultConverged
	}
	r.metrics.RunFinished(result)

	slog.Info("simulation finished", "scenario", s.Name, "rounds", final.Round, "result", result)
	logAllocation(alloc)
	return report, nil
}

// playRound runs one sealed-bid round against st.
func (r *Runner) playRound(st market.State, roster []*agents.Agent, vals map[string]agents.Valuations, deciders []equilibrium.Decider) {
	// Every agent sees the same snapshot; decisions land in roster order.
	decisions := make([]*market.Bid, len(roster))
	var g errgroup.Group
	for i, a := range roster {
		g.Go(func() error {
			if bid, ok := a.Decide(st); ok {
				decisions[i] = &bid
			}
			return nil
		})
	}
	_ = g.Wait()

	var bids []market.Bid
	for _, d := range decisions {
		if d == nil {
			continue
		}
		r.market.SubmitBid(*d)
		bids = append(bids, *d)
	}

	res := r.market.ResolveRound()
	after := r.market.State()

	nash := equilibrium.CheckNashEquilibrium(after, vals, deciders)
	pareto := equilibrium.CalculateParetoEfficiency(after, vals)
	revenue := after.Revenue()

	r.mu.Lock()
	for _, b := range bids {
		r.report.Bids = append(r.report.Bids, BidRecord{
			Round: res.Round, AgentID: b.AgentID, ItemID: b.ItemID, Amount: b.Amount,
		})
	}
	r.report.Rounds = append(r.report.Rounds, RoundStat{Round: res.Round, BidCount: len(bids), Revenue: revenue})
	r.report.Equilibrium = append(r.report.Equilibrium, EquilibriumRoundStat{
		Round:             res.Round,
		IsNashEquilibrium: nash.IsEquilibrium,
		ImprovableCount:   len(nash.ImprovableAgents),
		ParetoRatio:       pareto.Ratio,
		SocialWelfare:     pareto.CurrentWelfare,
	})
	name := r.report.Scenario
	r.mu.Unlock()

	r.Trace.Log(map[string]any{
		"scenario":      name,
		"round":         res.Round,
		"bids":          bids,
		"won":           res.Won,
		"over_demanded": res.OverDemanded,
		"revenue":       revenue,
		"nash":          nash.IsEquilibrium,
		"improvable":    nash.ImprovableAgents,
		"pareto_ratio":  pareto.Ratio,
		"terminated":    res.Terminated,
	})

	slog.Info("round complete",
		"round", res.Round,
		"bids", len(bids),
		"over_demanded", len(res.OverDemanded),
		"revenue", fmt.Sprintf("%.2f", revenue),
		"nash", nash.IsEquilibrium,
		"pareto_ratio", fmt.Sprintf("%.3f", pareto.Ratio),
	)
}

func (r *Runner) copyReportLocked() Report {
	rep := r.report
	rep.Rounds = slices.Clone(rep.Rounds)
	rep.Bids = slices.Clone(rep.Bids)
	rep.Equilibrium = slices.Clone(rep.Equilibrium)
	rep.Final.Items = slices.Clone(rep.Final.Items)
	rep.Allocation.Items = slices.Clone(rep.Allocation.Items)
	return rep
}

// Results returns a copy of the latest run's history. While a run is in
// progress the history is partial and Final is not yet set.
func (r *Runner) Results() (Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasRun {
		return Report{}, ErrNoRun
	}
	return r.copyReportLocked(), nil
}

// Status describes the runner for observers.
type Status struct {
	Running   bool      `json:"running"`
	Scenario  string    `json:"scenario,omitempty"`
	Round     int       `json:"round"`
	MaxRounds int       `json:"max_rounds,omitempty"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Status reports whether a run is active and how far the market has got.
func (r *Runner) Status() Status {
	st := r.market.State()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Running:   r.Busy(),
		Scenario:  r.report.Scenario,
		Round:     st.Round,
		MaxRounds: r.maxRound,
		Active:    st.Active,
		StartedAt: r.lastRun,
	}
}

func (r *Runner) analysisInputs() (market.State, map[string]agents.Valuations, []equilibrium.Decider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.hasRun {
		return market.State{}, nil, nil, ErrNoRun
	}
	deciders := make([]equilibrium.Decider, len(r.roster))
	for i, a := range r.roster {
		deciders[i] = a
	}
	return r.market.State(), r.vals, deciders, nil
}

// Nash probes the live market with the latest run's agents.
func (r *Runner) Nash() (equilibrium.NashResult, error) {
	st, vals, deciders, err := r.analysisInputs()
	if err != nil {
		return equilibrium.NashResult{}, err
	}
	return equilibrium.CheckNashEquilibrium(st, vals, deciders), nil
}

// Pareto measures welfare of the live market for the latest run's agents.
func (r *Runner) Pareto() (equilibrium.ParetoResult, error) {
	st, vals, _, err := r.analysisInputs()
	if err != nil {
		return equilibrium.ParetoResult{}, err
	}
	return equilibrium.CalculateParetoEfficiency(st, vals), nil
}
