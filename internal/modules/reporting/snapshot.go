package reporting

import (
	"github.com/rs/zerolog"

	"github.com/akozlov/portsim/internal/domain"
)

// LogHoldings emits one structured log line per holding plus a portfolio
// total line.
func LogHoldings(log zerolog.Logger, p *domain.Portfolio) {
	for _, asset := range p.Holdings() {
		log.Info().
			Str("ticker", asset.Security.Ticker).
			Float64("units", asset.Units()).
			Float64("last_price", asset.LastPrice()).
			Float64("book_value", asset.BookValue).
			Float64("market_value", asset.MarketValue()).
			Float64("dividends_paid", asset.DividendsPaid).
			Float64("management_cost", asset.ManagementCost).
			Msg("Holding")
	}

	log.Info().
		Str("portfolio", p.Name).
		Float64("book_value", p.BookValue()).
		Float64("market_value", p.MarketValue).
		Float64("dividends_paid", p.TotalDividends()).
		Float64("management_cost", p.TotalManagementCost()).
		Msg("Portfolio totals")
}

// LogStats emits the final statistics of a finished run.
func LogStats(log zerolog.Logger, runID string, stats domain.PortfolioStats) {
	log.Info().
		Str("run", runID).
		Float64("initial_value", stats.InitialValue).
		Float64("book_cost", stats.BookCost).
		Float64("market_value", stats.MarketValue).
		Float64("dividends_paid", stats.DividendsPaid).
		Float64("management_expenses", stats.ManagementExpenses).
		Float64("total_return", stats.TotalReturn).
		Float64("total_return_rate", stats.TotalReturnRate).
		Float64("annualized_return_rate", stats.AnnualizedReturnRate).
		Msg("Run finished")
}
