package domain

import (
	"fmt"
	"math"
)

// allocationTolerance is how far component allocations may drift from
// summing to exactly 1.0 before the model is rejected. CSV-sourced models
// round to a few decimals, so a small tolerance is allowed.
const allocationTolerance = 1e-6

// ModelComponent is one target-allocation entry of a model portfolio.
type ModelComponent struct {
	Security *Security
	// Allocation is the target weight as a fraction of investable value.
	Allocation float64
	// CashReserve is an absolute cash floor, meaningful only on the cash
	// component. Zero means no floor.
	CashReserve float64
}

// ModelPortfolio is the named target allocation a rebalancing policy steers a
// live portfolio toward. By convention one component is the cash sleeve.
type ModelPortfolio struct {
	Name       string
	Components []ModelComponent
}

// Component finds the entry for ticker, or nil.
func (m *ModelPortfolio) Component(ticker string) *ModelComponent {
	for i := range m.Components {
		if m.Components[i].Security.Ticker == ticker {
			return &m.Components[i]
		}
	}
	return nil
}

// CashComponent returns the cash sleeve, or nil if the model carries none.
func (m *ModelPortfolio) CashComponent() *ModelComponent {
	for i := range m.Components {
		if m.Components[i].Security.IsCash() {
			return &m.Components[i]
		}
	}
	return nil
}

// CashReserve is the absolute cash floor designated by the model, 0 if none.
func (m *ModelPortfolio) CashReserve() float64 {
	if c := m.CashComponent(); c != nil {
		return c.CashReserve
	}
	return 0
}

// Validate is the precondition check run before a simulation starts:
// allocations must sum to 1.0 within tolerance, no ticker may appear twice,
// and every component security must satisfy its own invariants.
func (m *ModelPortfolio) Validate() error {
	seen := make(map[string]bool, len(m.Components))
	sum := 0.0
	for _, c := range m.Components {
		if c.Security == nil {
			return fmt.Errorf("model %s has a component without a security", m.Name)
		}
		if seen[c.Security.Ticker] {
			return fmt.Errorf("model %s lists %s twice", m.Name, c.Security.Ticker)
		}
		seen[c.Security.Ticker] = true
		if c.Allocation < 0 {
			return fmt.Errorf("model %s has negative allocation %v for %s", m.Name, c.Allocation, c.Security.Ticker)
		}
		if c.CashReserve != 0 && !c.Security.IsCash() {
			return fmt.Errorf("model %s sets a cash reserve on non-cash %s", m.Name, c.Security.Ticker)
		}
		if err := c.Security.Validate(); err != nil {
			return fmt.Errorf("model %s: %w", m.Name, err)
		}
		sum += c.Allocation
	}
	if math.Abs(sum-1.0) > allocationTolerance {
		return fmt.Errorf("model %s allocations sum to %v, want 1.0", m.Name, sum)
	}
	return nil
}
