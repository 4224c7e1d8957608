package domain

import (
	"fmt"
	"time"
)

// ScheduleKind is the closed set of rebalancing-check cadences.
type ScheduleKind string

const (
	ScheduleDaily      ScheduleKind = "daily"
	ScheduleMonthly    ScheduleKind = "monthly"
	ScheduleQuarterly  ScheduleKind = "quarterly"
	ScheduleSemiannual ScheduleKind = "semiannual"
)

// ParseScheduleKind maps a configuration string onto a schedule kind.
// An empty string defaults to quarterly.
func ParseScheduleKind(s string) (ScheduleKind, error) {
	switch s {
	case "":
		return ScheduleQuarterly, nil
	case string(ScheduleDaily), string(ScheduleMonthly), string(ScheduleQuarterly), string(ScheduleSemiannual):
		return ScheduleKind(s), nil
	}
	return "", fmt.Errorf("unknown schedule kind %q", s)
}

// SimulationRun is one configured simulation: which portfolio follows which
// model over which date range, and the run-level policy switches.
type SimulationRun struct {
	ID               string
	ModelPortfolioID string
	PortfolioID      string
	InceptionDate    time.Time
	StopDate         time.Time
	TransactionFee   float64
	Schedule         ScheduleKind
	// ForceInitialRebalancing triggers one rebalance before the daily loop
	// starts, so a fresh cash portfolio is invested immediately.
	ForceInitialRebalancing bool
	// SetInitialBookCost re-bases every holding's cost basis to its market
	// price on the inception date, so returns are measured from simulation
	// start rather than historical purchase price.
	SetInitialBookCost bool
}

// PortfolioStats are the aggregate results of a finished simulation run.
type PortfolioStats struct {
	InitialValue       float64
	BookCost           float64
	MarketValue        float64
	DividendsPaid      float64
	ManagementExpenses float64
	TotalReturn        float64
	TotalReturnRate    float64
	// AnnualizedReturnRate is (1+rate)^(365/days) - 1 over the elapsed
	// calendar days of the run.
	AnnualizedReturnRate float64
}
