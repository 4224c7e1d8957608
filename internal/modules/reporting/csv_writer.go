package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var statsHeader = []string{
	"SimulationId",
	"StartDate",
	"InitialValue",
	"BookCost",
	"MarketValue",
	"DividendsPaid",
	"ManagementExpenses",
	"TotalReturn",
	"TotalReturnRate",
	"AnnualizedReturnRate",
}

// AppendStatsCSV appends one result row to the CSV report at path, writing
// the header first when the file does not exist yet.
func AppendStatsCSV(path string, rec StatRecord) error {
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open stats file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(statsHeader); err != nil {
			return fmt.Errorf("failed to write stats header: %w", err)
		}
	}

	row := []string{
		rec.RunID,
		rec.StartDate.Format(dateLayout),
		money(rec.Stats.InitialValue),
		money(rec.Stats.BookCost),
		money(rec.Stats.MarketValue),
		money(rec.Stats.DividendsPaid),
		money(rec.Stats.ManagementExpenses),
		money(rec.Stats.TotalReturn),
		rate(rec.Stats.TotalReturnRate),
		rate(rec.Stats.AnnualizedReturnRate),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write stats row: %w", err)
	}

	w.Flush()
	return w.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func rate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
