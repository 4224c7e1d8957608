// Package simulation owns the daily time-stepping loop: executing staged
// trade plans, revaluing holdings, accruing dividends, and driving the
// rebalancing schedule until the stop date.
package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
	"github.com/akozlov/portsim/internal/modules/rebalancing"
	"github.com/akozlov/portsim/internal/modules/schedule"
	"github.com/akozlov/portsim/internal/modules/trading"
)

// Params configures one simulation run. The portfolio is owned exclusively
// by the engine for the duration of the run; callers simulating multiple
// runs must hand each engine its own deep copy.
type Params struct {
	RunID                   string
	Portfolio               *domain.Portfolio
	Model                   *domain.ModelPortfolio
	InceptionDate           time.Time
	StopDate                time.Time
	TransactionFee          float64
	Schedule                domain.ScheduleKind
	ForceInitialRebalancing bool
	SetInitialBookCost      bool
}

// Engine walks the simulated calendar one day at a time. Each cycle executes
// any plan staged on a previous cycle, advances the date, revalues holdings,
// and asks the schedule whether a rebalancing check is due. Plans are always
// staged for the next cycle, never executed the day they are decided, to
// model settlement lag.
type Engine struct {
	params    Params
	portfolio *domain.Portfolio
	sched     *schedule.Schedule
	strategy  *rebalancing.Strategy
	executor  *trading.Executor

	current      time.Time
	pendingPlan  []domain.TradePlanItem
	started      bool
	initialValue float64

	log zerolog.Logger
}

// New creates an engine for one run. It validates the run preconditions that
// must fail before simulation starts rather than mid-run: model allocation
// sums, the cash sleeve invariant, and holding uniqueness.
func New(params Params, strategy *rebalancing.Strategy, executor *trading.Executor, log zerolog.Logger) (*Engine, error) {
	if params.Portfolio == nil || params.Model == nil {
		return nil, fmt.Errorf("simulation requires a portfolio and a model portfolio")
	}
	if err := params.Model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model portfolio: %w", err)
	}
	if params.StopDate.Before(params.InceptionDate) {
		return nil, fmt.Errorf("stop date %s before inception date %s",
			params.StopDate.Format("2006-01-02"), params.InceptionDate.Format("2006-01-02"))
	}
	for _, asset := range params.Portfolio.Holdings() {
		if err := asset.Security.Validate(); err != nil {
			return nil, fmt.Errorf("invalid holding: %w", err)
		}
	}

	portfolio := params.Portfolio
	portfolio.Model = params.Model
	if params.TransactionFee > 0 {
		portfolio.TransactionFee = params.TransactionFee
	}

	return &Engine{
		params:    params,
		portfolio: portfolio,
		sched:     schedule.New(params.Schedule),
		strategy:  strategy,
		executor:  executor,
		current:   domain.NormalizeDate(params.InceptionDate),
		log: log.With().
			Str("service", "simulation").
			Str("run_id", params.RunID).
			Logger(),
	}, nil
}

// CurrentDate returns the date the engine is paused at.
func (e *Engine) CurrentDate() time.Time {
	return e.current
}

// Portfolio exposes the run's portfolio for read-only inspection between
// steps. Mutating it outside the engine invalidates the run.
func (e *Engine) Portfolio() *domain.Portfolio {
	return e.portfolio
}

// PendingPlan returns the trade plan staged for the next cycle, or nil.
func (e *Engine) PendingPlan() []domain.TradePlanItem {
	return e.pendingPlan
}

// start performs the inception-day setup: initial revaluation, optional
// book-cost re-basing, and the optional forced initial rebalance staged as
// the first pending plan.
func (e *Engine) start() error {
	e.log.Info().
		Str("portfolio", e.portfolio.Name).
		Str("model", e.params.Model.Name).
		Time("inception", e.current).
		Time("stop", e.params.StopDate).
		Msg("Simulation starting")

	if err := e.revalue(); err != nil {
		return err
	}

	if e.params.SetInitialBookCost {
		for _, asset := range e.portfolio.Holdings() {
			if asset.IsCash() {
				continue
			}
			asset.BookValue = asset.LastPrice() * asset.Units()
		}
	}

	e.initialValue = e.portfolio.MarketValue

	if e.params.ForceInitialRebalancing {
		e.pendingPlan = e.strategy.Rebalance(e.portfolio)
		e.log.Info().Int("trades", len(e.pendingPlan)).Msg("Initial rebalance staged")
	}

	e.started = true
	return nil
}

// Resume advances the simulation until the schedule next fires or the stop
// date is passed. It returns true when paused at a schedule firing — the
// caller may then inspect state, stage its own plan, or call
// DefaultScheduleHandler — and false when the run is finished.
func (e *Engine) Resume() (bool, error) {
	if !e.started {
		if err := e.start(); err != nil {
			return false, err
		}
	}

	for e.current.Before(e.params.StopDate) || e.current.Equal(e.params.StopDate) {
		if e.pendingPlan != nil {
			orders, err := e.executor.Execute(e.current, e.pendingPlan, e.portfolio)
			if err != nil {
				return false, fmt.Errorf("run %s on %s: %w", e.params.RunID, e.current.Format("2006-01-02"), err)
			}
			e.pendingPlan = nil
			e.log.Debug().Int("orders", len(orders)).Msg("Pending plan executed")
		}

		e.current = e.current.AddDate(0, 0, 1)

		if err := e.revalue(); err != nil {
			return false, fmt.Errorf("run %s: %w", e.params.RunID, err)
		}

		if e.sched.IsArrived(e.current) {
			return true, nil
		}
	}

	e.log.Info().Time("date", e.current).Msg("Simulation finished")
	return false, nil
}

// DefaultScheduleHandler is the standard response to a schedule firing: run
// the drift check and stage a rebalancing plan when it signals. Custom
// callers may replace this with their own logic between Resume calls.
func (e *Engine) DefaultScheduleHandler() {
	if e.pendingPlan != nil {
		return
	}
	if !e.strategy.Check(e.portfolio) {
		e.log.Debug().Time("date", e.current).Msg("Drift within tolerance, holding")
		return
	}
	e.pendingPlan = e.strategy.Rebalance(e.portfolio)
	e.log.Info().
		Time("date", e.current).
		Int("trades", len(e.pendingPlan)).
		Msg("Rebalancing plan staged")
}

// Run drives the simulation to completion with the default schedule
// handling, honoring context cancellation between schedule firings.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		more, err := e.Resume()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
		e.DefaultScheduleHandler()
	}
}

// revalue refreshes every holding's price from the latest quote on or before
// the current date, accrues the day's dividends into both the holding's
// dividend total and the cash balance, and recomputes the portfolio market
// value.
func (e *Engine) revalue() error {
	cashAsset := e.portfolio.CashAsset()

	for _, asset := range e.portfolio.Holdings() {
		if !asset.IsCash() {
			quote, err := asset.Security.QuoteOnOrBefore(e.current)
			if err != nil {
				return fmt.Errorf("revaluing %s: %w", asset.Security.Ticker, err)
			}
			asset.SetLastPrice(quote.AveragePrice())
		}

		if dividend := asset.Security.DividendOn(e.current); dividend > 0 {
			paid := dividend * asset.Units()
			asset.DividendsPaid += paid
			if cashAsset != nil {
				cashAsset.BookValue += paid
			}
			e.log.Debug().
				Str("ticker", asset.Security.Ticker).
				Float64("amount", paid).
				Time("date", e.current).
				Msg("Dividend received")
		}
	}

	total := 0.0
	for _, asset := range e.portfolio.Holdings() {
		total += asset.MarketValue()
	}
	e.portfolio.MarketValue = total

	return nil
}

// Stats computes the aggregate results of the run so far. Annualization uses
// elapsed calendar days from inception to the current date.
func (e *Engine) Stats() domain.PortfolioStats {
	days := e.current.Sub(domain.NormalizeDate(e.params.InceptionDate)).Hours() / 24
	if days < 1 {
		days = 1
	}

	marketValue := e.portfolio.MarketValue
	totalReturn := marketValue - e.initialValue
	returnRate := 0.0
	if e.initialValue != 0 {
		returnRate = totalReturn / e.initialValue
	}

	return domain.PortfolioStats{
		InitialValue:         e.initialValue,
		BookCost:             e.portfolio.BookValue(),
		MarketValue:          marketValue,
		DividendsPaid:        e.portfolio.TotalDividends(),
		ManagementExpenses:   e.portfolio.TotalManagementCost(),
		TotalReturn:          totalReturn,
		TotalReturnRate:      returnRate,
		AnnualizedReturnRate: math.Pow(1+returnRate, 365/days) - 1,
	}
}
