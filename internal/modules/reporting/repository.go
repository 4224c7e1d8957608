// Package reporting records and summarizes simulation results: a sqlite
// archive of run statistics, an append-only CSV report, console output of the
// final holdings, and aggregate summaries across inception sweeps.
package reporting

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
)

const dateLayout = "2006-01-02"

// StatRecord is one persisted simulation result.
type StatRecord struct {
	RunID     string
	StartDate time.Time
	Stats     domain.PortfolioStats
}

// Repository archives run statistics in sqlite.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a stats repository backed by the given database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "run_stats").Logger(),
	}
}

// SaveStats appends one run result to the archive.
func (r *Repository) SaveStats(rec StatRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO run_stats (
			run_id, start_date, initial_value, book_cost, market_value,
			dividends_paid, management_expenses, total_return,
			total_return_rate, annualized_return_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.StartDate.Format(dateLayout),
		rec.Stats.InitialValue,
		rec.Stats.BookCost,
		rec.Stats.MarketValue,
		rec.Stats.DividendsPaid,
		rec.Stats.ManagementExpenses,
		rec.Stats.TotalReturn,
		rec.Stats.TotalReturnRate,
		rec.Stats.AnnualizedReturnRate,
	)
	if err != nil {
		return fmt.Errorf("failed to save stats for run %s: %w", rec.RunID, err)
	}

	r.log.Debug().Str("run", rec.RunID).Msg("Saved run stats")
	return nil
}

// GetStats returns all archived results for a run, oldest first.
func (r *Repository) GetStats(runID string) ([]StatRecord, error) {
	rows, err := r.db.Query(`
		SELECT run_id, start_date, initial_value, book_cost, market_value,
		       dividends_paid, management_expenses, total_return,
		       total_return_rate, annualized_return_rate
		FROM run_stats
		WHERE run_id = ?
		ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats for run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []StatRecord
	for rows.Next() {
		var rec StatRecord
		var start string
		if err := rows.Scan(
			&rec.RunID,
			&start,
			&rec.Stats.InitialValue,
			&rec.Stats.BookCost,
			&rec.Stats.MarketValue,
			&rec.Stats.DividendsPaid,
			&rec.Stats.ManagementExpenses,
			&rec.Stats.TotalReturn,
			&rec.Stats.TotalReturnRate,
			&rec.Stats.AnnualizedReturnRate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		if rec.StartDate, err = time.Parse(dateLayout, start); err != nil {
			return nil, fmt.Errorf("bad start date %q: %w", start, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
