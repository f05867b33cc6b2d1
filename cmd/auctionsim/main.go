// Command auctionsim runs repeated ascending-price clock auctions between
// automated bidders and reports on the equilibrium they reach.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/talgya/clock-auction/internal/config"
	"github.com/talgya/clock-auction/internal/engine"
	"github.com/talgya/clock-auction/internal/logging"
	"github.com/talgya/clock-auction/internal/market"
	"github.com/talgya/clock-auction/internal/metrics"
	"github.com/talgya/clock-auction/internal/persistence"
	"github.com/talgya/clock-auction/internal/scenario"
	"github.com/talgya/clock-auction/internal/valuation"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "auctionsim",
		Short: "Clock auction simulator",
		Long: `auctionsim runs repeated ascending-price clock auctions for compute slots.

Automated bidders with private valuations compete round by round until no
new bids arrive. Every round is scored for Nash stability and Pareto
efficiency.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "auctionsim.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimCmd(),
		newServeCmd(),
		newAgentCmd(),
		newScenariosCmd(),
	)
	return rootCmd
}

// app holds everything a command needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	store    scenario.Store
	db       *persistence.DB // nil unless the sqlite driver is selected
	registry *prometheus.Registry
	runner   *engine.Runner
	tracer   *logging.RoundTracer
}

func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr()))

	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := persistence.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		a.db, a.store = db, db
		slog.Info("database opened", "path", cfg.Store.Path)
	default:
		a.store = scenario.NewMemoryStore()
	}

	m := metrics.New(a.registry)
	a.runner = engine.NewRunner(market.New(m), a.store, valuation.NewGenerator(cfg.Simulation.Seed), m)
	a.runner.RoundDelay = cfg.Simulation.RoundDelay

	if cfg.Simulation.TraceDir != "" {
		a.tracer = logging.NewRoundTracer(cfg.Simulation.TraceDir)
		a.runner.Trace = a.tracer
	}
	return a, nil
}

func (a *app) Close() {
	a.tracer.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}
}
