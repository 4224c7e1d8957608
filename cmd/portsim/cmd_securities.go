package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// securitiesCmd implements the 'portsim securities' command
var securitiesCmd = &cobra.Command{
	Use:   "securities",
	Short: "List stored securities and their data coverage",
	RunE:  runSecurities,
}

func runSecurities(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tickers, err := a.marketRepo.ListTickers()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tNAME\tKIND\tQUOTES\tFIRST\tLAST")
	for _, ticker := range tickers {
		sec, err := a.marketRepo.GetSecurity(ticker)
		if err != nil {
			return err
		}

		kind := "tradable"
		if sec.IsCash() {
			kind = "cash"
		}

		quotes := sec.Quotes()
		first, last := "-", "-"
		if len(quotes) > 0 {
			first = quotes[0].Date.Format("2006-01-02")
			last = quotes[len(quotes)-1].Date.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", sec.Ticker, sec.Name, kind, len(quotes), first, last)
	}
	return w.Flush()
}
