package simulation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozlov/portsim/internal/domain"
	"github.com/akozlov/portsim/internal/modules/rebalancing"
	"github.com/akozlov/portsim/internal/modules/trading"
)

// priceSeries fills a security with one flat quote per calendar day.
func priceSeries(sec *domain.Security, from, to time.Time, price func(time.Time) float64) {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		p := price(d)
		sec.AddQuote(domain.Quote{Date: d, Open: p, High: p, Low: p, Close: p})
	}
}

func fixedPrice(p float64) func(time.Time) float64 {
	return func(time.Time) float64 { return p }
}

func newWorld(t *testing.T, price func(time.Time) float64) (*domain.Security, *domain.ModelPortfolio, *domain.Portfolio) {
	t.Helper()
	stock := domain.NewSecurity("XYZ", "Test Corp")
	priceSeries(stock, domain.Date(2021, 1, 1), domain.Date(2021, 4, 30), price)

	cashSec := domain.NewCashSecurity("CASH", "Cash", 1.0)
	model := &domain.ModelPortfolio{Name: "60-40", Components: []domain.ModelComponent{
		{Security: stock, Allocation: 0.6},
		{Security: cashSec, Allocation: 0.4},
	}}

	p := domain.NewPortfolio("test", 0)
	cash := domain.NewAsset(cashSec)
	cash.BookValue = 10000
	require.NoError(t, p.AddAsset(cash))

	return stock, model, p
}

func newEngine(t *testing.T, params Params) *Engine {
	t.Helper()
	strategy := rebalancing.NewStrategy(
		rebalancing.Policy{Threshold: 0.05, TradingExpenseThreshold: 0.1},
		zerolog.Nop(),
	)
	eng, err := New(params, strategy, trading.NewExecutor(zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	return eng
}

func TestNewValidation(t *testing.T) {
	_, model, p := newWorld(t, fixedPrice(100))
	strategy := rebalancing.NewStrategy(rebalancing.DefaultPolicy(), zerolog.Nop())
	executor := trading.NewExecutor(zerolog.Nop())

	t.Run("stop before inception", func(t *testing.T) {
		_, err := New(Params{
			Portfolio:     p,
			Model:         model,
			InceptionDate: domain.Date(2021, 2, 1),
			StopDate:      domain.Date(2021, 1, 1),
		}, strategy, executor, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("invalid model", func(t *testing.T) {
		bad := &domain.ModelPortfolio{Name: "bad", Components: []domain.ModelComponent{
			{Security: domain.NewSecurity("XYZ", "Test Corp"), Allocation: 0.5},
		}}
		_, err := New(Params{
			Portfolio:     p,
			Model:         bad,
			InceptionDate: domain.Date(2021, 1, 15),
			StopDate:      domain.Date(2021, 2, 28),
		}, strategy, executor, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("missing portfolio", func(t *testing.T) {
		_, err := New(Params{Model: model}, strategy, executor, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestRunInvestsInitialCash(t *testing.T) {
	_, model, p := newWorld(t, fixedPrice(100))

	eng := newEngine(t, Params{
		RunID:                   "test",
		Portfolio:               p,
		Model:                   model,
		InceptionDate:           domain.Date(2021, 1, 15),
		StopDate:                domain.Date(2021, 2, 28),
		Schedule:                domain.ScheduleMonthly,
		ForceInitialRebalancing: true,
	})
	require.NoError(t, eng.Run(context.Background()))

	stock := p.Asset("XYZ")
	require.NotNil(t, stock)
	assert.Equal(t, 60.0, stock.Units())
	assert.InDelta(t, 4000.0, p.CashAsset().BookValue, 1e-9)
	assert.InDelta(t, 10000.0, p.MarketValue, 1e-9)
}

func TestRunTracksPriceChanges(t *testing.T) {
	// 100 through January, 110 after.
	price := func(d time.Time) float64 {
		if d.Before(domain.Date(2021, 2, 1)) {
			return 100
		}
		return 110
	}
	_, model, p := newWorld(t, price)

	eng := newEngine(t, Params{
		RunID:                   "test",
		Portfolio:               p,
		Model:                   model,
		InceptionDate:           domain.Date(2021, 1, 15),
		StopDate:                domain.Date(2021, 2, 28),
		Schedule:                domain.ScheduleMonthly,
		ForceInitialRebalancing: true,
	})
	require.NoError(t, eng.Run(context.Background()))

	stats := eng.Stats()
	assert.InDelta(t, 10000.0, stats.InitialValue, 1e-9)
	assert.InDelta(t, 10600.0, stats.MarketValue, 1e-9)
	assert.InDelta(t, 600.0, stats.TotalReturn, 1e-9)
	assert.InDelta(t, 0.06, stats.TotalReturnRate, 1e-9)

	// Annualized over the elapsed days of the run.
	days := eng.CurrentDate().Sub(domain.Date(2021, 1, 15)).Hours() / 24
	expected := math.Pow(1.06, 365/days) - 1
	assert.InDelta(t, expected, stats.AnnualizedReturnRate, 1e-9)
}

func TestStagedPlanExecutesNextCycle(t *testing.T) {
	_, model, p := newWorld(t, fixedPrice(100))

	eng := newEngine(t, Params{
		RunID:         "test",
		Portfolio:     p,
		Model:         model,
		InceptionDate: domain.Date(2021, 1, 15),
		StopDate:      domain.Date(2021, 2, 28),
		Schedule:      domain.ScheduleMonthly,
	})

	// First pause is the first schedule firing, one day after inception.
	more, err := eng.Resume()
	require.NoError(t, err)
	require.True(t, more)
	assert.Equal(t, domain.Date(2021, 1, 16), eng.CurrentDate())

	// The handler stages the plan but nothing settles while paused.
	eng.DefaultScheduleHandler()
	require.Len(t, eng.PendingPlan(), 1)
	assert.Nil(t, p.Asset("XYZ"))
	assert.Equal(t, 10000.0, p.CashAsset().BookValue)

	// The next cycle settles it.
	more, err = eng.Resume()
	require.NoError(t, err)
	require.True(t, more)
	assert.Nil(t, eng.PendingPlan())
	require.NotNil(t, p.Asset("XYZ"))
	assert.Equal(t, 60.0, p.Asset("XYZ").Units())
}

func TestDividendsAccrueToCash(t *testing.T) {
	stock, model, p := newWorld(t, fixedPrice(100))
	stock.AddDividend(domain.Dividend{Date: domain.Date(2021, 2, 10), Amount: 1.0})

	eng := newEngine(t, Params{
		RunID:                   "test",
		Portfolio:               p,
		Model:                   model,
		InceptionDate:           domain.Date(2021, 1, 15),
		StopDate:                domain.Date(2021, 2, 28),
		Schedule:                domain.ScheduleMonthly,
		ForceInitialRebalancing: true,
	})
	require.NoError(t, eng.Run(context.Background()))

	// 60 units at 1.00 per unit.
	assert.InDelta(t, 60.0, p.Asset("XYZ").DividendsPaid, 1e-9)
	assert.InDelta(t, 4060.0, p.CashAsset().BookValue, 1e-9)
	assert.InDelta(t, 60.0, eng.Stats().DividendsPaid, 1e-9)
}

func TestSetInitialBookCostRebases(t *testing.T) {
	stock, model, p := newWorld(t, fixedPrice(100))
	held := domain.NewAsset(stock)
	held.SetUnits(50)
	held.BookValue = 2000
	require.NoError(t, p.AddAsset(held))
	p.CashAsset().BookValue = 5000

	eng := newEngine(t, Params{
		RunID:              "test",
		Portfolio:          p,
		Model:              model,
		InceptionDate:      domain.Date(2021, 1, 15),
		StopDate:           domain.Date(2021, 1, 15),
		Schedule:           domain.ScheduleMonthly,
		SetInitialBookCost: true,
	})
	require.NoError(t, eng.Run(context.Background()))

	// Cost basis re-based to inception-day market price: 50 units at 100.
	assert.InDelta(t, 5000.0, held.BookValue, 1e-9)
	assert.InDelta(t, 10000.0, eng.Stats().InitialValue, 1e-9)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	_, model, p := newWorld(t, fixedPrice(100))

	eng := newEngine(t, Params{
		RunID:         "test",
		Portfolio:     p,
		Model:         model,
		InceptionDate: domain.Date(2021, 1, 15),
		StopDate:      domain.Date(2021, 2, 28),
		Schedule:      domain.ScheduleDaily,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, eng.Run(ctx), context.Canceled)
}

func TestMissingValuationQuoteIsFatal(t *testing.T) {
	stock := domain.NewSecurity("XYZ", "Test Corp")
	stock.AddQuote(domain.Quote{Date: domain.Date(2021, 3, 1), High: 100, Low: 100})

	cashSec := domain.NewCashSecurity("CASH", "Cash", 1.0)
	model := &domain.ModelPortfolio{Name: "60-40", Components: []domain.ModelComponent{
		{Security: stock, Allocation: 0.6},
		{Security: cashSec, Allocation: 0.4},
	}}

	p := domain.NewPortfolio("test", 0)
	held := domain.NewAsset(stock)
	held.SetUnits(10)
	require.NoError(t, p.AddAsset(held))
	cash := domain.NewAsset(cashSec)
	cash.BookValue = 1000
	require.NoError(t, p.AddAsset(cash))

	// No quote exists on or before inception.
	eng := newEngine(t, Params{
		RunID:         "test",
		Portfolio:     p,
		Model:         model,
		InceptionDate: domain.Date(2021, 1, 15),
		StopDate:      domain.Date(2021, 2, 28),
		Schedule:      domain.ScheduleMonthly,
	})
	err := eng.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
