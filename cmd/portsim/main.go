package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/akozlov/portsim/internal/config"
	"github.com/akozlov/portsim/internal/database"
	"github.com/akozlov/portsim/internal/modules/marketdata"
	"github.com/akozlov/portsim/internal/modules/reporting"
	"github.com/akozlov/portsim/pkg/logger"
)

// rootCmd is the base command for the portsim CLI
var rootCmd = &cobra.Command{
	Use:   "portsim",
	Short: "Portfolio rebalancing simulator",
	Long: `portsim replays historical market data against a model portfolio,
rebalancing on a periodic schedule, and reports the resulting returns.

Market data and run definitions are imported from a CSV directory into
sqlite, then simulations run against the stored data.`,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(securitiesCmd)
}

// app bundles the dependencies shared by all commands.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	marketDB   *database.DB
	statsDB    *database.DB
	marketRepo *marketdata.Repository
	statsRepo  *reporting.Repository
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty})

	marketDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("marketdata"),
		Profile: database.ProfileBulk,
		Name:    "marketdata",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open market data database: %w", err)
	}
	if err := marketDB.Migrate(); err != nil {
		marketDB.Close()
		return nil, err
	}

	statsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("stats"),
		Profile: database.ProfileStandard,
		Name:    "stats",
	})
	if err != nil {
		marketDB.Close()
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}
	if err := statsDB.Migrate(); err != nil {
		marketDB.Close()
		statsDB.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		marketDB:   marketDB,
		statsDB:    statsDB,
		marketRepo: marketdata.NewRepository(marketDB.Conn(), log),
		statsRepo:  reporting.NewRepository(statsDB.Conn(), log),
	}, nil
}

func (a *app) close() {
	a.marketDB.Close()
	a.statsDB.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
