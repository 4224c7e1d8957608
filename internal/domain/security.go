// Package domain provides the core data model for portfolio simulation:
// securities with their price and dividend history, portfolios and their
// holdings, model portfolios, and trade plans.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// InstrumentKind distinguishes market-traded securities from cash-like
// instruments that carry a fixed price and are never traded directly.
type InstrumentKind int

const (
	// Tradable securities are priced from their quote history.
	Tradable InstrumentKind = iota
	// CashLike instruments are priced at Security.FixedPrice and represent
	// the cash sleeve of a portfolio.
	CashLike
)

// ErrPriceUnavailable indicates that no quote exists for a security in the
// requested direction from a date. This is fatal for the simulation step that
// needed the price; the engine must not substitute a stale or zero price.
var ErrPriceUnavailable = fmt.Errorf("security price unavailable")

// Quote is a single trading-day price record.
type Quote struct {
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjustedClose float64
	Volume        int64
}

// AveragePrice is the single representative execution price used throughout
// the simulation: the midpoint of the day's range, rounded to cents.
func (q Quote) AveragePrice() float64 {
	return math.Round(((q.High-q.Low)/2+q.Low)*100) / 100
}

// Dividend is a per-unit distribution paid on an exact date.
type Dividend struct {
	Date   time.Time
	Amount float64
}

// Security is an instrument identity plus its price and dividend series.
// Both series are kept date-ascending; AddQuote and AddDividend preserve the
// ordering so lookups can binary-search.
type Security struct {
	Ticker              string
	Name                string
	Kind                InstrumentKind
	FixedPrice          float64 // valid only when Kind == CashLike
	AllowsPartialShares bool

	// Per-direction fee overrides. Nil means use the portfolio default.
	BuyFee  *float64
	SellFee *float64

	quotes    []Quote
	dividends []Dividend
}

// NewSecurity creates a tradable security.
func NewSecurity(ticker, name string) *Security {
	return &Security{Ticker: ticker, Name: name, Kind: Tradable}
}

// NewCashSecurity creates a cash-like security priced at the given fixed
// price. Cash allows partial units by construction.
func NewCashSecurity(ticker, name string, fixedPrice float64) *Security {
	return &Security{
		Ticker:              ticker,
		Name:                name,
		Kind:                CashLike,
		FixedPrice:          fixedPrice,
		AllowsPartialShares: true,
	}
}

// IsCash reports whether the security is the cash pseudo-instrument.
func (s *Security) IsCash() bool {
	return s.Kind == CashLike
}

// Validate checks the structural invariants of the security: cash must carry
// a positive fixed price, and the quote series must be strictly ascending by
// date with no duplicates.
func (s *Security) Validate() error {
	if s.Kind == CashLike && s.FixedPrice <= 0 {
		return fmt.Errorf("cash security %s requires a positive fixed price, got %v", s.Ticker, s.FixedPrice)
	}
	for i := 1; i < len(s.quotes); i++ {
		if !s.quotes[i-1].Date.Before(s.quotes[i].Date) {
			return fmt.Errorf("security %s quote series not strictly ascending at %s",
				s.Ticker, s.quotes[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// AddQuote appends a quote, keeping the series date-ascending.
func (s *Security) AddQuote(q Quote) {
	q.Date = NormalizeDate(q.Date)
	n := len(s.quotes)
	if n == 0 || s.quotes[n-1].Date.Before(q.Date) {
		s.quotes = append(s.quotes, q)
		return
	}
	i := sort.Search(n, func(i int) bool { return !s.quotes[i].Date.Before(q.Date) })
	s.quotes = append(s.quotes, Quote{})
	copy(s.quotes[i+1:], s.quotes[i:])
	s.quotes[i] = q
}

// AddDividend appends a dividend event, keeping the series date-ascending.
func (s *Security) AddDividend(d Dividend) {
	d.Date = NormalizeDate(d.Date)
	n := len(s.dividends)
	if n == 0 || s.dividends[n-1].Date.Before(d.Date) {
		s.dividends = append(s.dividends, d)
		return
	}
	i := sort.Search(n, func(i int) bool { return !s.dividends[i].Date.Before(d.Date) })
	s.dividends = append(s.dividends, Dividend{})
	copy(s.dividends[i+1:], s.dividends[i:])
	s.dividends[i] = d
}

// Quotes returns the quote series (date-ascending). The slice is shared; the
// caller must not mutate it.
func (s *Security) Quotes() []Quote {
	return s.quotes
}

// Dividends returns the dividend series (date-ascending). The slice is
// shared; the caller must not mutate it.
func (s *Security) Dividends() []Dividend {
	return s.dividends
}

// QuoteOnOrBefore resolves the latest quote dated on or before date. Used for
// current valuation. Cash resolves to a synthetic quote at the fixed price.
func (s *Security) QuoteOnOrBefore(date time.Time) (Quote, error) {
	date = NormalizeDate(date)
	if s.Kind == CashLike {
		return s.fixedQuote(date), nil
	}
	// First index with quote date > date; the answer is the one before it.
	i := sort.Search(len(s.quotes), func(i int) bool { return s.quotes[i].Date.After(date) })
	if i == 0 {
		return Quote{}, fmt.Errorf("%w: %s on or before %s", ErrPriceUnavailable, s.Ticker, date.Format("2006-01-02"))
	}
	return s.quotes[i-1], nil
}

// QuoteOnOrAfter resolves the earliest quote dated on or after date. Used for
// execution pricing, where a trade decided on a non-trading day fills at the
// next available quote. Cash resolves to a synthetic quote at the fixed price.
func (s *Security) QuoteOnOrAfter(date time.Time) (Quote, error) {
	date = NormalizeDate(date)
	if s.Kind == CashLike {
		return s.fixedQuote(date), nil
	}
	i := sort.Search(len(s.quotes), func(i int) bool { return !s.quotes[i].Date.Before(date) })
	if i == len(s.quotes) {
		return Quote{}, fmt.Errorf("%w: %s on or after %s", ErrPriceUnavailable, s.Ticker, date.Format("2006-01-02"))
	}
	return s.quotes[i], nil
}

// DividendOn returns the per-unit dividend paid exactly on date, or 0.
func (s *Security) DividendOn(date time.Time) float64 {
	date = NormalizeDate(date)
	i := sort.Search(len(s.dividends), func(i int) bool { return !s.dividends[i].Date.Before(date) })
	if i < len(s.dividends) && s.dividends[i].Date.Equal(date) {
		return s.dividends[i].Amount
	}
	return 0
}

func (s *Security) fixedQuote(date time.Time) Quote {
	return Quote{
		Date:          date,
		Open:          s.FixedPrice,
		High:          s.FixedPrice,
		Low:           s.FixedPrice,
		Close:         s.FixedPrice,
		AdjustedClose: s.FixedPrice,
		Volume:        0,
	}
}

// NormalizeDate truncates a timestamp to its calendar day in UTC. All
// simulation dates are compared at day granularity.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date is a convenience constructor for a normalized calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
