package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/akozlov/portsim/internal/domain"
	"github.com/akozlov/portsim/internal/modules/rebalancing"
	"github.com/akozlov/portsim/internal/modules/reporting"
	"github.com/akozlov/portsim/internal/modules/simulation"
	"github.com/akozlov/portsim/internal/modules/trading"
)

var sweepStepDays int

// runCmd implements the 'portsim run' command
var runCmd = &cobra.Command{
	Use:   "run <simulation-id>",
	Short: "Run one simulation and report its results",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimulation,
}

// sweepCmd implements the 'portsim sweep' command
var sweepCmd = &cobra.Command{
	Use:   "sweep <simulation-id>",
	Short: "Run a simulation repeatedly with stepped inception dates",
	Long: `Runs the same simulation many times, stepping the inception date
forward on each pass while keeping the stop date fixed, then summarizes the
spread of annualized returns. The sweep ends 30 days before today so every
pass has a full price history.`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVar(&sweepStepDays, "step", 0, "Days between inception dates (default from config)")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.marketRepo.GetRun(args[0])
	if err != nil {
		return err
	}

	eng, err := a.buildEngine(run, run.InceptionDate, nil)
	if err != nil {
		return err
	}
	if err := eng.Run(cmd.Context()); err != nil {
		return err
	}

	stats := eng.Stats()
	reporting.LogHoldings(a.log, eng.Portfolio())
	reporting.LogStats(a.log, run.ID, stats)

	rec := reporting.StatRecord{RunID: run.ID, StartDate: run.InceptionDate, Stats: stats}
	if err := a.statsRepo.SaveStats(rec); err != nil {
		return err
	}
	return reporting.AppendStatsCSV(a.cfg.StatsPath, rec)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.marketRepo.GetRun(args[0])
	if err != nil {
		return err
	}

	step := sweepStepDays
	if step <= 0 {
		step = a.cfg.SweepStepDays
	}

	basePortfolio, err := a.marketRepo.GetPortfolio(run.PortfolioID)
	if err != nil {
		return err
	}

	sweepID := fmt.Sprintf("%s-sweep-%s", run.ID, uuid.NewString()[:8])
	endDate := domain.NormalizeDate(time.Now().AddDate(0, 0, -30))
	run.StopDate = endDate

	var records []reporting.StatRecord
	for start := run.InceptionDate; start.Before(endDate); start = start.AddDate(0, 0, step) {
		eng, err := a.buildEngine(run, start, basePortfolio.Clone())
		if err != nil {
			return err
		}
		if err := eng.Run(cmd.Context()); err != nil {
			return err
		}

		rec := reporting.StatRecord{RunID: sweepID, StartDate: start, Stats: eng.Stats()}
		if err := a.statsRepo.SaveStats(rec); err != nil {
			return err
		}
		if err := reporting.AppendStatsCSV(a.cfg.StatsPath, rec); err != nil {
			return err
		}
		records = append(records, rec)

		a.log.Info().
			Time("inception", start).
			Float64("annualized_return_rate", rec.Stats.AnnualizedReturnRate).
			Msg("Sweep pass finished")
	}

	summary := reporting.Summarize(records)
	a.log.Info().
		Str("sweep", sweepID).
		Int("runs", summary.Runs).
		Float64("mean", summary.Mean).
		Float64("stddev", summary.StdDev).
		Float64("min", summary.Min).
		Float64("max", summary.Max).
		Msg("Sweep summary")
	return nil
}

// buildEngine assembles an engine for a run definition. A non-nil portfolio
// overrides the stored one, which lets sweeps reuse a cloned starting
// portfolio instead of reloading it.
func (a *app) buildEngine(run domain.SimulationRun, inception time.Time, portfolio *domain.Portfolio) (*simulation.Engine, error) {
	model, err := a.marketRepo.GetModelPortfolio(run.ModelPortfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		if portfolio, err = a.marketRepo.GetPortfolio(run.PortfolioID); err != nil {
			return nil, err
		}
	}

	policy := rebalancing.Policy{
		Threshold:               a.cfg.Threshold,
		TradingExpenseThreshold: a.cfg.TradingExpenseThreshold,
	}
	strategy := rebalancing.NewStrategy(policy, a.log)
	executor := trading.NewExecutor(a.log)

	fee := run.TransactionFee
	if fee == 0 && portfolio.TransactionFee == 0 {
		fee = a.cfg.TransactionFee
	}

	return simulation.New(simulation.Params{
		RunID:                   run.ID,
		Portfolio:               portfolio,
		Model:                   model,
		InceptionDate:           inception,
		StopDate:                run.StopDate,
		TransactionFee:          fee,
		Schedule:                run.Schedule,
		ForceInitialRebalancing: run.ForceInitialRebalancing,
		SetInitialBookCost:      run.SetInitialBookCost,
	}, strategy, executor, a.log)
}
