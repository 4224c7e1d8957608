// Package marketdata is the data source the simulation core consumes:
// securities with price and dividend history, model portfolios, initial
// portfolios, and simulation run definitions, stored in sqlite and imported
// from CSV configuration files.
package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/database"
	"github.com/akozlov/portsim/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository handles market data database operations. Securities are cached
// after first load so every portfolio and model referencing a ticker shares
// one Security instance with its full history.
type Repository struct {
	db         *sql.DB
	securities map[string]*domain.Security
	log        zerolog.Logger
}

// NewRepository creates a market data repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:         db,
		securities: make(map[string]*domain.Security),
		log:        log.With().Str("repo", "marketdata").Logger(),
	}
}

// SaveSecurity stores a security and its full quote and dividend history,
// replacing any previous history for the ticker.
func (r *Repository) SaveSecurity(sec *domain.Security) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		isCash := 0
		var fixedPrice interface{}
		if sec.IsCash() {
			isCash = 1
			fixedPrice = sec.FixedPrice
		}
		partial := 0
		if sec.AllowsPartialShares {
			partial = 1
		}

		_, err := tx.Exec(`INSERT OR REPLACE INTO securities
			(ticker, name, is_cash, allows_partial_shares, fixed_price, buy_fee, sell_fee)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sec.Ticker, sec.Name, isCash, partial, fixedPrice, feeValue(sec.BuyFee), feeValue(sec.SellFee))
		if err != nil {
			return fmt.Errorf("failed to save security %s: %w", sec.Ticker, err)
		}

		if _, err := tx.Exec("DELETE FROM quotes WHERE ticker = ?", sec.Ticker); err != nil {
			return fmt.Errorf("failed to clear quotes for %s: %w", sec.Ticker, err)
		}
		for _, q := range sec.Quotes() {
			_, err := tx.Exec(`INSERT INTO quotes
				(ticker, date, open, high, low, close, adjusted_close, volume)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sec.Ticker, q.Date.Format(dateLayout), q.Open, q.High, q.Low, q.Close, q.AdjustedClose, q.Volume)
			if err != nil {
				return fmt.Errorf("failed to save quote for %s on %s: %w", sec.Ticker, q.Date.Format(dateLayout), err)
			}
		}

		if _, err := tx.Exec("DELETE FROM dividends WHERE ticker = ?", sec.Ticker); err != nil {
			return fmt.Errorf("failed to clear dividends for %s: %w", sec.Ticker, err)
		}
		for _, d := range sec.Dividends() {
			_, err := tx.Exec("INSERT INTO dividends (ticker, date, amount) VALUES (?, ?, ?)",
				sec.Ticker, d.Date.Format(dateLayout), d.Amount)
			if err != nil {
				return fmt.Errorf("failed to save dividend for %s on %s: %w", sec.Ticker, d.Date.Format(dateLayout), err)
			}
		}

		return nil
	})
}

// GetSecurity loads a security with its full price and dividend history.
// Repeated lookups return the same instance.
func (r *Repository) GetSecurity(ticker string) (*domain.Security, error) {
	if sec, ok := r.securities[ticker]; ok {
		return sec, nil
	}

	var (
		name    string
		isCash  int
		partial int
		fixed   sql.NullFloat64
		buyFee  sql.NullFloat64
		sellFee sql.NullFloat64
	)
	err := r.db.QueryRow(`SELECT name, is_cash, allows_partial_shares, fixed_price, buy_fee, sell_fee
		FROM securities WHERE ticker = ?`, ticker).
		Scan(&name, &isCash, &partial, &fixed, &buyFee, &sellFee)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("security %s not found", ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security %s: %w", ticker, err)
	}

	var sec *domain.Security
	if isCash != 0 {
		sec = domain.NewCashSecurity(ticker, name, fixed.Float64)
	} else {
		sec = domain.NewSecurity(ticker, name)
	}
	sec.AllowsPartialShares = sec.AllowsPartialShares || partial != 0
	if buyFee.Valid {
		v := buyFee.Float64
		sec.BuyFee = &v
	}
	if sellFee.Valid {
		v := sellFee.Float64
		sec.SellFee = &v
	}

	if err := r.loadQuotes(sec); err != nil {
		return nil, err
	}
	if err := r.loadDividends(sec); err != nil {
		return nil, err
	}

	if err := sec.Validate(); err != nil {
		return nil, fmt.Errorf("stored security is invalid: %w", err)
	}

	r.securities[ticker] = sec
	return sec, nil
}

// ListTickers returns all stored security tickers in order.
func (r *Repository) ListTickers() ([]string, error) {
	rows, err := r.db.Query("SELECT ticker FROM securities ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list securities: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

func (r *Repository) loadQuotes(sec *domain.Security) error {
	rows, err := r.db.Query(`SELECT date, open, high, low, close, adjusted_close, volume
		FROM quotes WHERE ticker = ? ORDER BY date`, sec.Ticker)
	if err != nil {
		return fmt.Errorf("failed to query quotes for %s: %w", sec.Ticker, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dateStr string
			q       domain.Quote
		)
		if err := rows.Scan(&dateStr, &q.Open, &q.High, &q.Low, &q.Close, &q.AdjustedClose, &q.Volume); err != nil {
			return fmt.Errorf("failed to scan quote for %s: %w", sec.Ticker, err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return fmt.Errorf("bad quote date %q for %s: %w", dateStr, sec.Ticker, err)
		}
		q.Date = date
		sec.AddQuote(q)
	}
	return rows.Err()
}

func (r *Repository) loadDividends(sec *domain.Security) error {
	rows, err := r.db.Query("SELECT date, amount FROM dividends WHERE ticker = ? ORDER BY date", sec.Ticker)
	if err != nil {
		return fmt.Errorf("failed to query dividends for %s: %w", sec.Ticker, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dateStr string
			amount  float64
		)
		if err := rows.Scan(&dateStr, &amount); err != nil {
			return fmt.Errorf("failed to scan dividend for %s: %w", sec.Ticker, err)
		}
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			return fmt.Errorf("bad dividend date %q for %s: %w", dateStr, sec.Ticker, err)
		}
		sec.AddDividend(domain.Dividend{Date: date, Amount: amount})
	}
	return rows.Err()
}

// SaveModelPortfolio stores a model portfolio and its components under id.
func (r *Repository) SaveModelPortfolio(id string, m *domain.ModelPortfolio) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT OR REPLACE INTO model_portfolios (id, name) VALUES (?, ?)", id, m.Name); err != nil {
			return fmt.Errorf("failed to save model portfolio %s: %w", id, err)
		}
		if _, err := tx.Exec("DELETE FROM model_components WHERE model_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear model components for %s: %w", id, err)
		}
		for i, c := range m.Components {
			var reserve interface{}
			if c.CashReserve != 0 {
				reserve = c.CashReserve
			}
			_, err := tx.Exec(`INSERT INTO model_components
				(model_id, ticker, allocation, cash_reserve, position) VALUES (?, ?, ?, ?, ?)`,
				id, c.Security.Ticker, c.Allocation, reserve, i)
			if err != nil {
				return fmt.Errorf("failed to save model component %s/%s: %w", id, c.Security.Ticker, err)
			}
		}
		return nil
	})
}

// GetModelPortfolio loads a model portfolio with its component securities.
func (r *Repository) GetModelPortfolio(id string) (*domain.ModelPortfolio, error) {
	var name string
	err := r.db.QueryRow("SELECT name FROM model_portfolios WHERE id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("model portfolio %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model portfolio %s: %w", id, err)
	}

	rows, err := r.db.Query(`SELECT ticker, allocation, cash_reserve
		FROM model_components WHERE model_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query model components for %s: %w", id, err)
	}
	defer rows.Close()

	model := &domain.ModelPortfolio{Name: name}
	for rows.Next() {
		var (
			ticker     string
			allocation float64
			reserve    sql.NullFloat64
		)
		if err := rows.Scan(&ticker, &allocation, &reserve); err != nil {
			return nil, fmt.Errorf("failed to scan model component for %s: %w", id, err)
		}
		sec, err := r.GetSecurity(ticker)
		if err != nil {
			return nil, err
		}
		model.Components = append(model.Components, domain.ModelComponent{
			Security:    sec,
			Allocation:  allocation,
			CashReserve: reserve.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return model, nil
}

// SavePortfolio stores a portfolio and its holdings under id.
func (r *Repository) SavePortfolio(id string, p *domain.Portfolio) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT OR REPLACE INTO portfolios (id, name, transaction_fee) VALUES (?, ?, ?)",
			id, p.Name, p.TransactionFee)
		if err != nil {
			return fmt.Errorf("failed to save portfolio %s: %w", id, err)
		}
		if _, err := tx.Exec("DELETE FROM holdings WHERE portfolio_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear holdings for %s: %w", id, err)
		}
		for i, a := range p.Holdings() {
			_, err := tx.Exec(`INSERT INTO holdings
				(portfolio_id, ticker, units, book_value, position) VALUES (?, ?, ?, ?, ?)`,
				id, a.Security.Ticker, a.Units(), a.BookValue, i)
			if err != nil {
				return fmt.Errorf("failed to save holding %s/%s: %w", id, a.Security.Ticker, err)
			}
		}
		return nil
	})
}

// GetPortfolio loads a portfolio with its holdings. Every call builds a
// fresh Portfolio so independent simulation runs never share position state.
func (r *Repository) GetPortfolio(id string) (*domain.Portfolio, error) {
	var (
		name string
		fee  float64
	)
	err := r.db.QueryRow("SELECT name, transaction_fee FROM portfolios WHERE id = ?", id).Scan(&name, &fee)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("portfolio %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %s: %w", id, err)
	}

	rows, err := r.db.Query(`SELECT ticker, units, book_value
		FROM holdings WHERE portfolio_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings for %s: %w", id, err)
	}
	defer rows.Close()

	p := domain.NewPortfolio(name, fee)
	for rows.Next() {
		var (
			ticker    string
			units     float64
			bookValue float64
		)
		if err := rows.Scan(&ticker, &units, &bookValue); err != nil {
			return nil, fmt.Errorf("failed to scan holding for %s: %w", id, err)
		}
		sec, err := r.GetSecurity(ticker)
		if err != nil {
			return nil, err
		}
		asset := domain.NewAsset(sec)
		asset.SetUnits(units)
		asset.BookValue = bookValue
		if err := p.AddAsset(asset); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveRun stores a simulation run definition.
func (r *Repository) SaveRun(run domain.SimulationRun) error {
	var stop interface{}
	if !run.StopDate.IsZero() {
		stop = run.StopDate.Format(dateLayout)
	}
	_, err := r.db.Exec(`INSERT OR REPLACE INTO simulation_runs
		(id, model_portfolio_id, portfolio_id, inception_date, stop_date,
		 transaction_fee, schedule, force_initial_rebalancing, set_initial_book_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelPortfolioID, run.PortfolioID,
		run.InceptionDate.Format(dateLayout), stop,
		run.TransactionFee, string(run.Schedule),
		boolToInt(run.ForceInitialRebalancing), boolToInt(run.SetInitialBookCost))
	if err != nil {
		return fmt.Errorf("failed to save simulation run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a simulation run definition. A missing stop date defaults to
// today, matching the behavior of open-ended run records.
func (r *Repository) GetRun(id string) (domain.SimulationRun, error) {
	var (
		run          domain.SimulationRun
		inceptionStr string
		stopStr      sql.NullString
		scheduleStr  string
		force        int
		setBook      int
	)
	err := r.db.QueryRow(`SELECT id, model_portfolio_id, portfolio_id, inception_date, stop_date,
		transaction_fee, schedule, force_initial_rebalancing, set_initial_book_cost
		FROM simulation_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.ModelPortfolioID, &run.PortfolioID, &inceptionStr, &stopStr,
			&run.TransactionFee, &scheduleStr, &force, &setBook)
	if err == sql.ErrNoRows {
		return run, fmt.Errorf("simulation run %s not found", id)
	}
	if err != nil {
		return run, fmt.Errorf("failed to get simulation run %s: %w", id, err)
	}

	run.InceptionDate, err = time.Parse(dateLayout, inceptionStr)
	if err != nil {
		return run, fmt.Errorf("bad inception date %q for run %s: %w", inceptionStr, id, err)
	}
	if stopStr.Valid && stopStr.String != "" {
		run.StopDate, err = time.Parse(dateLayout, stopStr.String)
		if err != nil {
			return run, fmt.Errorf("bad stop date %q for run %s: %w", stopStr.String, id, err)
		}
	} else {
		run.StopDate = domain.NormalizeDate(time.Now())
	}

	run.Schedule, err = domain.ParseScheduleKind(scheduleStr)
	if err != nil {
		return run, fmt.Errorf("run %s: %w", id, err)
	}
	run.ForceInitialRebalancing = force != 0
	run.SetInitialBookCost = setBook != 0
	return run, nil
}

// ListRunIDs returns all stored simulation run IDs in order.
func (r *Repository) ListRunIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT id FROM simulation_runs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list simulation runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func feeValue(fee *float64) interface{} {
	if fee == nil {
		return nil
	}
	return *fee
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
