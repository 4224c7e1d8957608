package reporting

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SweepSummary aggregates annualized returns across an inception date sweep.
type SweepSummary struct {
	Runs   int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes aggregates over the annualized return rates of the
// given results. Returns the zero summary when records is empty.
func Summarize(records []StatRecord) SweepSummary {
	if len(records) == 0 {
		return SweepSummary{}
	}

	rates := make([]float64, len(records))
	min, max := math.Inf(1), math.Inf(-1)
	for i, rec := range records {
		r := rec.Stats.AnnualizedReturnRate
		rates[i] = r
		min = math.Min(min, r)
		max = math.Max(max, r)
	}

	summary := SweepSummary{
		Runs: len(records),
		Mean: stat.Mean(rates, nil),
		Min:  min,
		Max:  max,
	}
	if len(rates) > 1 {
		summary.StdDev = stat.StdDev(rates, nil)
	}
	return summary
}
