package domain

import "fmt"

// Asset is a single holding inside a portfolio: a security plus the mutable
// position state the simulation maintains for it.
//
// Cash-like assets derive their unit count and price from the security's
// fixed price; writes to those fields are ignored for cash, the cash balance
// is carried entirely by BookValue.
type Asset struct {
	Security *Security

	// BookValue is the cumulative cost basis of the holding. For cash it is
	// the cash balance itself.
	BookValue float64
	// DividendsPaid accumulates dividends received over the simulation.
	DividendsPaid float64
	// ManagementCost accumulates transaction fees paid trading this asset.
	ManagementCost float64

	units     float64
	lastPrice float64
}

// NewAsset creates an empty holding for the given security.
func NewAsset(sec *Security) *Asset {
	return &Asset{Security: sec}
}

// Clone returns a deep copy of the asset. The security itself is immutable
// reference data and stays shared.
func (a *Asset) Clone() *Asset {
	clone := *a
	return &clone
}

// IsCash reports whether the holding is the cash position.
func (a *Asset) IsCash() bool {
	return a.Security.IsCash()
}

// Units returns the number of units held. Cash derives units from the
// balance and the fixed price.
func (a *Asset) Units() float64 {
	if a.IsCash() {
		return a.BookValue / a.Security.FixedPrice
	}
	return a.units
}

// SetUnits sets the unit count. Ignored for cash, whose units follow the
// balance.
func (a *Asset) SetUnits(units float64) {
	if a.IsCash() {
		return
	}
	a.units = units
}

// LastPrice returns the most recent valuation price. Cash is always priced
// at the security's fixed price.
func (a *Asset) LastPrice() float64 {
	if a.IsCash() {
		return a.Security.FixedPrice
	}
	return a.lastPrice
}

// SetLastPrice records the valuation price. Ignored for cash.
func (a *Asset) SetLastPrice(price float64) {
	if a.IsCash() {
		return
	}
	a.lastPrice = price
}

// BookPrice is the average cost per unit, 0 when nothing is held.
func (a *Asset) BookPrice() float64 {
	units := a.Units()
	if units == 0 {
		return 0
	}
	return a.BookValue / units
}

// MarketValue values the holding at the last price. Cash is worth its
// balance.
func (a *Asset) MarketValue() float64 {
	if a.IsCash() {
		return a.BookValue
	}
	return a.lastPrice * a.units
}

// Portfolio is the mutable holdings ledger a simulation run operates on.
// Holdings are ordered and unique by ticker. MarketValue is refreshed by the
// engine's revaluation step, not on every mutation.
type Portfolio struct {
	Name string
	// TransactionFee is the flat default fee per trade; securities may
	// override it per direction.
	TransactionFee float64
	// Model is the target allocation this portfolio is steered toward.
	Model *ModelPortfolio
	// MarketValue is the sum of holding market values as of the last
	// revaluation.
	MarketValue float64

	holdings []*Asset
}

// NewPortfolio creates an empty portfolio with the given default fee.
func NewPortfolio(name string, transactionFee float64) *Portfolio {
	return &Portfolio{Name: name, TransactionFee: transactionFee}
}

// Holdings returns the ordered holdings list. The slice is shared; callers
// must not add or remove entries directly.
func (p *Portfolio) Holdings() []*Asset {
	return p.holdings
}

// Asset finds the holding for ticker, or nil.
func (p *Portfolio) Asset(ticker string) *Asset {
	for _, a := range p.holdings {
		if a.Security.Ticker == ticker {
			return a
		}
	}
	return nil
}

// AddAsset appends a holding. A ticker can appear at most once; a duplicate
// is a programming error surfaced to the caller.
func (p *Portfolio) AddAsset(a *Asset) error {
	if p.Asset(a.Security.Ticker) != nil {
		return fmt.Errorf("portfolio %s already holds %s", p.Name, a.Security.Ticker)
	}
	p.holdings = append(p.holdings, a)
	return nil
}

// CashAsset returns the cash holding, or nil if the portfolio carries none.
func (p *Portfolio) CashAsset() *Asset {
	for _, a := range p.holdings {
		if a.IsCash() {
			return a
		}
	}
	return nil
}

// BookValue is the total cost basis across all holdings.
func (p *Portfolio) BookValue() float64 {
	total := 0.0
	for _, a := range p.holdings {
		total += a.BookValue
	}
	return total
}

// TotalDividends is the cumulative dividends received across all holdings.
func (p *Portfolio) TotalDividends() float64 {
	total := 0.0
	for _, a := range p.holdings {
		total += a.DividendsPaid
	}
	return total
}

// TotalManagementCost is the cumulative fees paid across all holdings.
func (p *Portfolio) TotalManagementCost() float64 {
	total := 0.0
	for _, a := range p.holdings {
		total += a.ManagementCost
	}
	return total
}

// Clone deep-copies the portfolio. Holdings are copied by value so that
// independent simulation runs never share position state; securities and the
// model stay shared as immutable reference data.
func (p *Portfolio) Clone() *Portfolio {
	clone := &Portfolio{
		Name:           p.Name,
		TransactionFee: p.TransactionFee,
		Model:          p.Model,
		MarketValue:    p.MarketValue,
		holdings:       make([]*Asset, len(p.holdings)),
	}
	for i, a := range p.holdings {
		clone.holdings[i] = a.Clone()
	}
	return clone
}
