package main

import (
	"github.com/spf13/cobra"

	"github.com/akozlov/portsim/internal/modules/marketdata"
)

var importDir string

// importCmd implements the 'portsim import' command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import CSV market data and run definitions into sqlite",
	Long: `Reads the CSV configuration layout (securities, price and dividend
histories, model portfolios, portfolios, simulation parameters) and stores
everything in the market data database.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "CSV configuration directory (default from config)")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	dir := importDir
	if dir == "" {
		dir = a.cfg.ImportDir
	}

	importer := marketdata.NewImporter(a.marketRepo, a.log)
	if err := importer.ImportAll(dir); err != nil {
		return err
	}

	a.log.Info().Str("dir", dir).Msg("Import complete")
	return nil
}
