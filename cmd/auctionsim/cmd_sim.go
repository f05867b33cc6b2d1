package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/clock-auction/internal/engine"
	"github.com/talgya/clock-auction/internal/scenario"
)

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim [scenario-id]",
		Short: "Run a simulation to completion and print the results",
		Long: `Run a stored scenario by id, or an ad-hoc one built from flags.

Ad-hoc agents are given as NAME:STRATEGY:PROFILE[:TARGET_SLOT[:BUDGET]], e.g.
  auctionsim sim --slots 3 --agent Alpha_1:MYOPIC:RICH --agent Beta_1:SNIPER:FOCUSED:2`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			specs, _ := cmd.Flags().GetStringArray("agent")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var rep engine.Report
			start := time.Now()
			switch {
			case len(args) == 1:
				if len(specs) > 0 {
					return fmt.Errorf("--agent cannot be combined with a scenario id")
				}
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid scenario id %q", args[0])
				}
				rep, err = a.runner.RunStored(cmd.Context(), id)
				if err != nil {
					return err
				}
			default:
				s, err := adHocScenario(cmd, a.cfg.Simulation.DefaultIncrement, specs)
				if err != nil {
					return err
				}
				rep, err = a.runner.RunScenario(s)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			printSummary(cmd.OutOrStdout(), rep, time.Since(start))
			return nil
		},
	}

	cmd.Flags().Int("slots", 5, "Slot count for an ad-hoc run")
	cmd.Flags().Int("rounds", 100, "Round cap for an ad-hoc run")
	cmd.Flags().Float64("increment", 0, "Price increment for an ad-hoc run (default from config)")
	cmd.Flags().StringArray("agent", nil, "Ad-hoc agent NAME:STRATEGY:PROFILE[:TARGET_SLOT[:BUDGET]] (repeatable)")
	return cmd
}

func adHocScenario(cmd *cobra.Command, defaultIncrement float64, specs []string) (scenario.Scenario, error) {
	if len(specs) == 0 {
		return scenario.Scenario{}, fmt.Errorf("give a scenario id or at least one --agent")
	}
	slots, _ := cmd.Flags().GetInt("slots")
	rounds, _ := cmd.Flags().GetInt("rounds")
	increment, _ := cmd.Flags().GetFloat64("increment")
	if increment == 0 {
		increment = defaultIncrement
	}

	s := scenario.Scenario{Name: "ad-hoc", SlotCount: slots, MaxRounds: rounds, Increment: increment}
	for _, raw := range specs {
		spec, err := parseAgentSpec(raw)
		if err != nil {
			return scenario.Scenario{}, err
		}
		s.Agents = append(s.Agents, spec)
	}
	if err := s.Validate(); err != nil {
		return scenario.Scenario{}, err
	}
	return s, nil
}

// parseAgentSpec reads NAME:STRATEGY:PROFILE[:TARGET_SLOT[:BUDGET]].
// Empty strategy and profile fields take their defaults.
func parseAgentSpec(raw string) (scenario.AgentSpec, error) {
	parts := strings.Split(raw, ":")
	if len(parts) > 5 || strings.TrimSpace(parts[0]) == "" {
		return scenario.AgentSpec{}, fmt.Errorf("invalid agent %q: want NAME:STRATEGY:PROFILE[:TARGET_SLOT[:BUDGET]]", raw)
	}
	for len(parts) < 5 {
		parts = append(parts, "")
	}

	spec := scenario.AgentSpec{
		Name:       strings.TrimSpace(parts[0]),
		Strategy:   strings.ToUpper(strings.TrimSpace(parts[1])),
		Profile:    strings.ToUpper(strings.TrimSpace(parts[2])),
		TargetSlot: scenario.NoTarget,
	}
	if parts[3] != "" {
		n, err := strconv.Atoi(parts[3])
		if err != nil {
			return scenario.AgentSpec{}, fmt.Errorf("invalid target slot in agent %q: %w", raw, err)
		}
		spec.TargetSlot = n
	}
	if parts[4] != "" {
		b, err := strconv.ParseFloat(parts[4], 64)
		if err != nil {
			return scenario.AgentSpec{}, fmt.Errorf("invalid budget in agent %q: %w", raw, err)
		}
		spec.Budget = b
	}
	return spec, nil
}

func printSummary(w io.Writer, rep engine.Report, elapsed time.Duration) {
	outcome := "converged"
	if !rep.Converged {
		outcome = "stopped at the round cap"
	}
	fmt.Fprintf(w, "%s: %s after %s rounds, %s bids (%s)\n",
		rep.Scenario, outcome,
		humanize.Comma(int64(rep.Final.Round)),
		humanize.Comma(int64(len(rep.Bids))),
		elapsed.Round(time.Millisecond))

	fmt.Fprintln(w)
	for _, line := range rep.Allocation.Items {
		winner := line.Winner
		if winner == "" {
			winner = "(unsold)"
		}
		fmt.Fprintf(w, "  %-8s %-28s %10s\n", line.ItemID, winner, line.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "  %-37s %10s\n", "revenue", rep.Allocation.TotalRevenue.StringFixed(2))

	if n := len(rep.Equilibrium); n > 0 {
		last := rep.Equilibrium[n-1]
		nash := "yes"
		if !last.IsNashEquilibrium {
			nash = fmt.Sprintf("no (%d agents could improve)", last.ImprovableCount)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  nash equilibrium: %s\n", nash)
		fmt.Fprintf(w, "  social welfare:   %s\n", humanize.FormatFloat("#,###.##", last.SocialWelfare))
		fmt.Fprintf(w, "  pareto ratio:     %.1f%%\n", last.ParetoRatio*100)
	}
}
