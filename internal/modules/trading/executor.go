// Package trading converts monetary trade plans into unit-denominated orders
// priced at the trading day's quote, and settles them against portfolio
// holdings and cash.
package trading

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
)

// ErrInvariantViolation indicates the trade plan was internally inconsistent:
// a no-op order, a sell without ownership, or a settlement that would leave
// negative cash or units. These abort the run; they are never corrected
// silently.
var ErrInvariantViolation = fmt.Errorf("trade invariant violation")

// Executor prices and settles trade plans. It is stateless between calls;
// all position state lives in the portfolio.
type Executor struct {
	log zerolog.Logger
}

// NewExecutor creates a trade executor.
func NewExecutor(log zerolog.Logger) *Executor {
	return &Executor{log: log.With().Str("service", "trading").Logger()}
}

// Execute prices the plan as of day, settles the resulting orders against
// the portfolio, and returns the executed orders. Sells settle before buys
// so their proceeds fund the buys within the same pass.
//
// Cash plan items are skipped: cash moves only through the cash ledger as a
// side effect of the other orders.
func (e *Executor) Execute(day time.Time, plan []domain.TradePlanItem, p *domain.Portfolio) ([]domain.TradeOrder, error) {
	day = domain.NormalizeDate(day)

	cashAsset := p.CashAsset()
	if cashAsset == nil {
		return nil, fmt.Errorf("%w: portfolio %s has no cash position", ErrInvariantViolation, p.Name)
	}
	cash := cashAsset.BookValue

	// Sells first: their proceeds replenish the cash the buys consume.
	queue := make([]domain.TradePlanItem, len(plan))
	copy(queue, plan)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Amount < queue[j].Amount })

	var orders []domain.TradeOrder
	for _, item := range queue {
		if item.Security.IsCash() {
			continue
		}
		if item.Amount == 0 {
			return nil, fmt.Errorf("%w: no-op trade for %s", ErrInvariantViolation, item.Security.Ticker)
		}

		quote, err := item.Security.QuoteOnOrAfter(day)
		if err != nil {
			return nil, fmt.Errorf("executing trade for %s: %w", item.Security.Ticker, err)
		}
		price := quote.AveragePrice()

		sell := item.Amount < 0
		fee := resolveFee(item.Security, p.TransactionFee, sell)

		units := item.Amount / price
		if !item.Security.AllowsPartialShares {
			units = math.Trunc(units)
		}
		units = math.Abs(units)

		asset := p.Asset(item.Security.Ticker)
		if asset == nil {
			if sell {
				return nil, fmt.Errorf("%w: sell of %s which is not held", ErrInvariantViolation, item.Security.Ticker)
			}
			asset = domain.NewAsset(item.Security)
			if err := p.AddAsset(asset); err != nil {
				return nil, err
			}
		}

		// An oversell clamps to the owned quantity rather than creating a
		// short position. The plan was sized from stale prices, so this is
		// an expected anomaly, not a fatal one.
		if sell && asset.Units() < units {
			e.log.Warn().
				Str("ticker", item.Security.Ticker).
				Float64("planned_units", units).
				Float64("owned_units", asset.Units()).
				Msg("Sell exceeds owned units, clamping")
			units = asset.Units()
		}

		value := units * price
		if sell {
			asset.SetUnits(asset.Units() - units)
			asset.BookValue -= value - fee
			cash += value - fee
		} else {
			asset.SetUnits(asset.Units() + units)
			asset.BookValue += value + fee
			cash -= value + fee
		}
		asset.ManagementCost += fee

		e.log.Info().
			Str("ticker", item.Security.Ticker).
			Str("side", side(sell)).
			Float64("units", units).
			Float64("price", price).
			Float64("fee", fee).
			Float64("cash", cash).
			Msg("Trade settled")

		orders = append(orders, domain.TradeOrder{
			Security: item.Security,
			Date:     day,
			Units:    units,
			Price:    price,
			Fee:      fee,
			Sell:     sell,
		})
	}

	if cash < 0 {
		return nil, fmt.Errorf("%w: cash %0.2f negative after settlement", ErrInvariantViolation, cash)
	}
	for _, asset := range p.Holdings() {
		if asset.Units() < 0 {
			return nil, fmt.Errorf("%w: %s has negative units %v", ErrInvariantViolation, asset.Security.Ticker, asset.Units())
		}
	}

	cashAsset.BookValue = cash

	return orders, nil
}

func resolveFee(sec *domain.Security, defaultFee float64, sell bool) float64 {
	if sell {
		if sec.SellFee != nil {
			return *sec.SellFee
		}
		return defaultFee
	}
	if sec.BuyFee != nil {
		return *sec.BuyFee
	}
	return defaultFee
}

func side(sell bool) string {
	if sell {
		return "SELL"
	}
	return "BUY"
}
