package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/clock-auction/internal/agents"
	"github.com/talgya/clock-auction/internal/client"
	"github.com/talgya/clock-auction/internal/config"
	"github.com/talgya/clock-auction/internal/logging"
	"github.com/talgya/clock-auction/internal/scenario"
	"github.com/talgya/clock-auction/internal/valuation"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Bid against a running auctionsim server",
		Long: `Run one bidding agent against a remote server. The agent waits for the
market to open, bids once per round, and exits when the market closes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			jsonOut, _ := cmd.Flags().GetBool("json")
			server, _ := cmd.Flags().GetString("server")
			name, _ := cmd.Flags().GetString("name")
			strategyName, _ := cmd.Flags().GetString("strategy")
			profileName, _ := cmd.Flags().GetString("profile")
			slots, _ := cmd.Flags().GetInt("slots")
			target, _ := cmd.Flags().GetInt("target")
			budget, _ := cmd.Flags().GetFloat64("budget")
			interval, _ := cmd.Flags().GetDuration("interval")

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))

			strategy, err := agents.ParseStrategy(strategyName)
			if err != nil {
				return err
			}
			profile, err := valuation.ParseProfile(profileName)
			if err != nil {
				return err
			}
			if slots <= 0 {
				return fmt.Errorf("--slots must be positive, got %d", slots)
			}
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %v", interval)
			}

			vals := valuation.NewGenerator(cfg.Simulation.Seed).Generate(profile, slots, target)
			agent := agents.NewAgent(agents.IDFromName(name), strategy, vals, agents.NewBudget(budget))
			slog.Info("remote agent ready", "agent", agent.ID(), "server", server, "strategy", strategy)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := client.RunRemote(ctx, client.New(server, 10*time.Second), agent, interval)
			if err != nil {
				return err
			}

			held := res.Final.HeldBy(agent.ID())
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"agent":     agent.ID(),
					"rounds":    res.Rounds,
					"submitted": res.Submitted,
					"accepted":  res.Accepted,
					"won":       held,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bids over %d rounds, won %d slots\n",
				agent.ID(), res.Submitted, res.Rounds, len(held))
			for _, it := range held {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s at %.2f (value %.2f)\n", it.ID, it.Price, vals.Value(it.ID))
			}
			return nil
		},
	}

	cmd.Flags().String("server", "http://localhost:8080", "Base URL of the auction server")
	cmd.Flags().String("name", "Remote", "Agent name; names without an underscore get a random suffix")
	cmd.Flags().String("strategy", "MYOPIC", "Bidding strategy")
	cmd.Flags().String("profile", "DEFAULT", "Valuation profile")
	cmd.Flags().Int("slots", 5, "Slot count the valuations are drawn for")
	cmd.Flags().Int("target", scenario.NoTarget, "Preferred slot for the FOCUSED profile")
	cmd.Flags().Float64("budget", 0, "Spending cap; 0 means unlimited")
	cmd.Flags().Duration("interval", 500*time.Millisecond, "Polling interval")
	return cmd
}
