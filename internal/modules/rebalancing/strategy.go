// Package rebalancing implements the threshold/mixed rebalancing policy:
// deciding whether a portfolio has drifted from its model, and planning the
// monetary buy/sell amounts that bring it back.
package rebalancing

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
)

// Policy holds the tunables of the threshold/mixed strategy. The policy set
// is closed; there is exactly one variant.
type Policy struct {
	// Threshold is the allocation drift above which rebalancing is
	// warranted. Drift exactly at the threshold does not trigger.
	Threshold float64
	// TradingExpenseThreshold caps the acceptable fee-to-amount ratio when
	// redistributing leftover cash; trades dominated by their own fee are
	// skipped.
	TradingExpenseThreshold float64
}

// DefaultPolicy returns the standard 1% drift / 10% expense-ratio policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: 0.01, TradingExpenseThreshold: 0.1}
}

// Strategy evaluates portfolios against their model portfolio and produces
// trade plans. It never mutates the portfolio.
type Strategy struct {
	policy Policy
	log    zerolog.Logger
}

// NewStrategy creates a strategy with the given policy.
func NewStrategy(policy Policy, log zerolog.Logger) *Strategy {
	return &Strategy{
		policy: policy,
		log:    log.With().Str("service", "rebalancing").Logger(),
	}
}

// Check reports whether the portfolio has drifted far enough from its model
// to warrant rebalancing. It is a pure read: calling it twice without an
// intervening state change returns the same verdict.
func (s *Strategy) Check(p *domain.Portfolio) bool {
	model := p.Model
	investable := p.MarketValue - model.CashReserve()

	for _, asset := range p.Holdings() {
		currentAllocation := asset.MarketValue() / investable

		component := model.Component(asset.Security.Ticker)
		if component == nil {
			// A holding outside the model must be unwound as soon as it
			// carries any weight.
			if currentAllocation > 0 {
				s.log.Debug().
					Str("ticker", asset.Security.Ticker).
					Float64("allocation", currentAllocation).
					Msg("Rebalancing required: non-model asset held")
				return true
			}
			continue
		}

		drift := currentAllocation - component.Allocation
		if math.Abs(drift) > s.policy.Threshold {
			s.log.Debug().
				Str("ticker", asset.Security.Ticker).
				Float64("drift", drift).
				Float64("target", component.Allocation).
				Float64("threshold", s.policy.Threshold).
				Msg("Rebalancing required: drift above threshold")
			return true
		}
	}

	return false
}

// Rebalance produces the trade plan that corrects the portfolio's drift.
//
// The plan is built in two phases. First, every drifted asset gets a trade
// sized from its excess over target value. Individually-sized trades rarely
// consume all available cash, so a second phase redistributes the leftover
// across buy-side trades (or across all model assets when no buys exist)
// proportional to target allocation.
//
// The plan may be empty. Amounts are monetary; positive buys, negative sells.
func (s *Strategy) Rebalance(p *domain.Portfolio) []domain.TradePlanItem {
	model := p.Model
	s.log.Debug().Str("portfolio", p.Name).Str("model", model.Name).Msg("Planning rebalance")

	// Union of model targets and current holdings. Holdings override model
	// entries because they carry live market value.
	type entry struct {
		asset *domain.Asset
		sec   *domain.Security
	}
	var union []entry
	for i := range model.Components {
		union = append(union, entry{sec: model.Components[i].Security})
	}
	for _, held := range p.Holdings() {
		replaced := false
		for i := range union {
			if union[i].sec.Ticker == held.Security.Ticker {
				union[i].asset = held
				replaced = true
				break
			}
		}
		if !replaced {
			union = append(union, entry{asset: held, sec: held.Security})
		}
	}

	cashComponent := model.CashComponent()
	cashAllocation := 0.0
	cashReserve := 0.0
	if cashComponent != nil {
		cashAllocation = cashComponent.Allocation
		cashReserve = cashComponent.CashReserve
	}

	investable := p.MarketValue - cashReserve
	maxTransactionCost := float64(len(union)) * p.TransactionFee
	expectedTransactionCost := 0.0

	var plan []domain.TradePlanItem
	for _, e := range union {
		targetAllocation := 0.0
		if component := model.Component(e.sec.Ticker); component != nil {
			targetAllocation = component.Allocation
		}

		marketValue := 0.0
		lastPrice := 0.0
		bookPrice := 0.0
		if e.asset != nil {
			marketValue = e.asset.MarketValue()
			lastPrice = e.asset.LastPrice()
			bookPrice = e.asset.BookPrice()
		}

		drift := marketValue/investable - targetAllocation
		if math.Abs(drift) < s.policy.Threshold {
			s.log.Debug().Str("ticker", e.sec.Ticker).Float64("drift", drift).
				Msg("Drift within tolerance, skipping")
			continue
		}

		// Positive excess sells, negative buys.
		excess := marketValue - investable*targetAllocation

		if excess > 0 && lastPrice < bookPrice {
			// Never realize a loss just to rebalance.
			s.log.Warn().Str("ticker", e.sec.Ticker).
				Float64("last_price", lastPrice).
				Float64("book_price", bookPrice).
				Msg("Market price below book price, skipping sell")
			continue
		}

		if math.Abs(excess) < lastPrice {
			// Not even one unit is tradable.
			s.log.Debug().Str("ticker", e.sec.Ticker).Float64("excess", excess).
				Msg("Excess below unit price, skipping")
			continue
		}

		if excess != 0 && !e.sec.IsCash() {
			expectedTransactionCost += p.TransactionFee
			plan = append(plan, domain.TradePlanItem{Security: e.sec, Amount: -excess})
		}
	}

	// Phase two: sweep leftover cash into the plan.
	cash := 0.0
	if cashAsset := p.CashAsset(); cashAsset != nil {
		cash = cashAsset.BookValue
	}

	planCost := 0.0
	buys := 0
	for _, item := range plan {
		planCost += item.Amount
		if item.Amount > 0 {
			buys++
		}
	}

	excessCash := cash - planCost - cash*cashAllocation - cashReserve - expectedTransactionCost
	if excessCash < 0 {
		excessCash = 0
	}
	s.log.Debug().Float64("excess_cash", excessCash).Msg("Leftover cash after drift trades")

	if excessCash > 0 {
		if buys == 0 {
			// No buy trades to top up: distribute across all model assets,
			// budgeting for the fees those new trades will cost.
			excessCash -= maxTransactionCost
			if excessCash <= 0 {
				s.log.Debug().Msg("Leftover cash does not cover transaction costs")
				return plan
			}
			for _, component := range model.Components {
				if component.Security.IsCash() {
					continue
				}
				amount := excessCash * component.Allocation
				if amount <= 0 {
					continue
				}
				if p.TransactionFee/amount > s.policy.TradingExpenseThreshold {
					s.log.Debug().Str("ticker", component.Security.Ticker).
						Float64("amount", amount).
						Msg("Fee dominates distributed amount, skipping")
					continue
				}
				s.log.Debug().Str("ticker", component.Security.Ticker).
					Float64("amount", amount).Msg("Distributing leftover cash")
				plan = append(plan, domain.TradePlanItem{Security: component.Security, Amount: amount})
			}
		} else {
			// Buy trades already exist: top them up proportionally, never
			// creating new trades in this branch.
			for i := range plan {
				if plan[i].Amount < 0 {
					continue
				}
				component := model.Component(plan[i].Security.Ticker)
				if component == nil {
					continue
				}
				extra := excessCash * component.Allocation
				s.log.Debug().Str("ticker", plan[i].Security.Ticker).
					Float64("extra", extra).Msg("Topping up buy trade")
				plan[i].Amount += extra
			}
		}
	}

	return plan
}
