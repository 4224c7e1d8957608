package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
)

// Importer loads the CSV configuration layout into the market data store:
//
//	Securities.csv                      ticker, name, cash flag, partial shares, fixed price
//	quotes/<ticker>_SecurityPrices.csv  OHLC price history
//	quotes/<ticker>_SecurityDividends.csv
//	ModelPortfolios.csv                 model id, name
//	<id>_ModelPortfolioAssets.csv       per-model allocations
//	Portfolios.csv                      portfolio id, name, fee
//	<id>_Holdings.csv                   per-portfolio holdings
//	SimulationParameters.csv            run definitions
//
// Securities with a fixed price are cash; their price/dividend files are not
// read.
type Importer struct {
	repo *Repository
	log  zerolog.Logger
}

// NewImporter creates a CSV importer targeting the given repository.
func NewImporter(repo *Repository, log zerolog.Logger) *Importer {
	return &Importer{
		repo: repo,
		log:  log.With().Str("service", "import").Logger(),
	}
}

// ImportAll loads every configuration file under dir into the store.
func (im *Importer) ImportAll(dir string) error {
	securities, err := im.importSecurities(dir)
	if err != nil {
		return err
	}
	if err := im.importModelPortfolios(dir, securities); err != nil {
		return err
	}
	if err := im.importPortfolios(dir, securities); err != nil {
		return err
	}
	if err := im.importRuns(dir); err != nil {
		return err
	}
	return nil
}

func (im *Importer) importSecurities(dir string) (map[string]*domain.Security, error) {
	records, err := readCSV(filepath.Join(dir, "Securities.csv"))
	if err != nil {
		return nil, err
	}

	securities := make(map[string]*domain.Security, len(records))
	for _, rec := range records {
		ticker := rec["Ticker"]
		if ticker == "" {
			return nil, fmt.Errorf("Securities.csv has a row without a ticker")
		}

		var sec *domain.Security
		if fixedStr := rec["FixedPrice"]; fixedStr != "" {
			fixed, err := strconv.ParseFloat(fixedStr, 64)
			if err != nil {
				return nil, fmt.Errorf("bad fixed price %q for %s: %w", fixedStr, ticker, err)
			}
			sec = domain.NewCashSecurity(ticker, rec["Name"], fixed)
		} else {
			sec = domain.NewSecurity(ticker, rec["Name"])
			sec.AllowsPartialShares = parseBool(rec["PartialShares"])

			if err := im.importQuotes(dir, sec); err != nil {
				return nil, err
			}
			if err := im.importDividends(dir, sec); err != nil {
				return nil, err
			}
		}

		if err := sec.Validate(); err != nil {
			return nil, err
		}
		if err := im.repo.SaveSecurity(sec); err != nil {
			return nil, err
		}

		im.log.Info().
			Str("ticker", ticker).
			Int("quotes", len(sec.Quotes())).
			Int("dividends", len(sec.Dividends())).
			Msg("Imported security")
		securities[ticker] = sec
	}
	return securities, nil
}

func (im *Importer) importQuotes(dir string, sec *domain.Security) error {
	path := filepath.Join(dir, "quotes", sec.Ticker+"_SecurityPrices.csv")
	records, err := readCSV(path)
	if os.IsNotExist(err) {
		im.log.Warn().Str("ticker", sec.Ticker).Msg("No price history file")
		return nil
	}
	if err != nil {
		return err
	}

	for _, rec := range records {
		date, err := parseDate(rec["Date"])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		q := domain.Quote{Date: date}
		if q.Open, err = strconv.ParseFloat(rec["Open"], 64); err != nil {
			return fmt.Errorf("%s: bad open %q: %w", path, rec["Open"], err)
		}
		if q.High, err = strconv.ParseFloat(rec["High"], 64); err != nil {
			return fmt.Errorf("%s: bad high %q: %w", path, rec["High"], err)
		}
		if q.Low, err = strconv.ParseFloat(rec["Low"], 64); err != nil {
			return fmt.Errorf("%s: bad low %q: %w", path, rec["Low"], err)
		}
		if q.Close, err = strconv.ParseFloat(rec["Close"], 64); err != nil {
			return fmt.Errorf("%s: bad close %q: %w", path, rec["Close"], err)
		}
		if adj := rec["Adj Close"]; adj != "" {
			if q.AdjustedClose, err = strconv.ParseFloat(adj, 64); err != nil {
				return fmt.Errorf("%s: bad adjusted close %q: %w", path, adj, err)
			}
		}
		if vol := rec["Volume"]; vol != "" {
			if q.Volume, err = strconv.ParseInt(vol, 10, 64); err != nil {
				return fmt.Errorf("%s: bad volume %q: %w", path, vol, err)
			}
		}
		sec.AddQuote(q)
	}
	return nil
}

func (im *Importer) importDividends(dir string, sec *domain.Security) error {
	path := filepath.Join(dir, "quotes", sec.Ticker+"_SecurityDividends.csv")
	records, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, rec := range records {
		date, err := parseDate(rec["Date"])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		amount, err := strconv.ParseFloat(rec["Dividends"], 64)
		if err != nil {
			return fmt.Errorf("%s: bad dividend %q: %w", path, rec["Dividends"], err)
		}
		sec.AddDividend(domain.Dividend{Date: date, Amount: amount})
	}
	return nil
}

func (im *Importer) importModelPortfolios(dir string, securities map[string]*domain.Security) error {
	records, err := readCSV(filepath.Join(dir, "ModelPortfolios.csv"))
	if err != nil {
		return err
	}

	for _, rec := range records {
		id := rec["ModelPortfolioId"]
		model := &domain.ModelPortfolio{Name: rec["Name"]}

		components, err := readCSV(filepath.Join(dir, id+"_ModelPortfolioAssets.csv"))
		if err != nil {
			return err
		}
		for _, crec := range components {
			sec, ok := securities[crec["Ticker"]]
			if !ok {
				return fmt.Errorf("model %s references unknown security %s", id, crec["Ticker"])
			}
			allocation, err := strconv.ParseFloat(crec["Allocation"], 64)
			if err != nil {
				return fmt.Errorf("model %s: bad allocation %q: %w", id, crec["Allocation"], err)
			}
			reserve := 0.0
			if rstr := crec["CashReserve"]; rstr != "" {
				if reserve, err = strconv.ParseFloat(rstr, 64); err != nil {
					return fmt.Errorf("model %s: bad cash reserve %q: %w", id, rstr, err)
				}
			}
			model.Components = append(model.Components, domain.ModelComponent{
				Security:    sec,
				Allocation:  allocation,
				CashReserve: reserve,
			})
		}

		if err := model.Validate(); err != nil {
			return err
		}
		if err := im.repo.SaveModelPortfolio(id, model); err != nil {
			return err
		}
		im.log.Info().Str("model", id).Int("components", len(model.Components)).Msg("Imported model portfolio")
	}
	return nil
}

func (im *Importer) importPortfolios(dir string, securities map[string]*domain.Security) error {
	records, err := readCSV(filepath.Join(dir, "Portfolios.csv"))
	if err != nil {
		return err
	}

	for _, rec := range records {
		id := rec["PortfolioId"]
		fee, err := strconv.ParseFloat(rec["TransactionFee"], 64)
		if err != nil {
			return fmt.Errorf("portfolio %s: bad transaction fee %q: %w", id, rec["TransactionFee"], err)
		}
		p := domain.NewPortfolio(rec["Name"], fee)

		holdings, err := readCSV(filepath.Join(dir, id+"_Holdings.csv"))
		if err != nil {
			return err
		}
		for _, hrec := range holdings {
			sec, ok := securities[hrec["Ticker"]]
			if !ok {
				return fmt.Errorf("portfolio %s references unknown security %s", id, hrec["Ticker"])
			}
			units, err := strconv.ParseFloat(hrec["Units"], 64)
			if err != nil {
				return fmt.Errorf("portfolio %s: bad units %q: %w", id, hrec["Units"], err)
			}
			bookCost, err := strconv.ParseFloat(hrec["BookCost"], 64)
			if err != nil {
				return fmt.Errorf("portfolio %s: bad book cost %q: %w", id, hrec["BookCost"], err)
			}
			asset := domain.NewAsset(sec)
			asset.SetUnits(units)
			asset.BookValue = bookCost
			if err := p.AddAsset(asset); err != nil {
				return err
			}
		}

		if err := im.repo.SavePortfolio(id, p); err != nil {
			return err
		}
		im.log.Info().Str("portfolio", id).Int("holdings", len(p.Holdings())).Msg("Imported portfolio")
	}
	return nil
}

func (im *Importer) importRuns(dir string) error {
	records, err := readCSV(filepath.Join(dir, "SimulationParameters.csv"))
	if err != nil {
		return err
	}

	for _, rec := range records {
		id := rec["SimulationId"]
		if id == "" {
			id = uuid.NewString()
		}
		run := domain.SimulationRun{
			ID:                      id,
			ModelPortfolioID:        rec["ModelPortfolioId"],
			PortfolioID:             rec["PortfolioId"],
			ForceInitialRebalancing: parseBool(rec["ForceInitialRebalancing"]),
			SetInitialBookCost:      parseBool(rec["SetInitialBookCost"]),
		}
		if run.InceptionDate, err = parseDate(rec["InceptionDate"]); err != nil {
			return fmt.Errorf("run %s: %w", run.ID, err)
		}
		if stopStr := rec["StopDate"]; stopStr != "" {
			if run.StopDate, err = parseDate(stopStr); err != nil {
				return fmt.Errorf("run %s: %w", run.ID, err)
			}
		}
		if feeStr := rec["TransactionFee"]; feeStr != "" {
			if run.TransactionFee, err = strconv.ParseFloat(feeStr, 64); err != nil {
				return fmt.Errorf("run %s: bad transaction fee %q: %w", run.ID, feeStr, err)
			}
		}
		if run.Schedule, err = domain.ParseScheduleKind(rec["Schedule"]); err != nil {
			return fmt.Errorf("run %s: %w", run.ID, err)
		}

		if err := im.repo.SaveRun(run); err != nil {
			return err
		}
		im.log.Info().Str("run", run.ID).Msg("Imported simulation run")
	}
	return nil
}

// readCSV reads a headered CSV file into one map per row, keyed by column
// name.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.ToLower(s))
	return err == nil && v
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "1/2/2006", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.NormalizeDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
