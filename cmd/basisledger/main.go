package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "basisledger"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Deposit ledger reconciliation engine",
		Version: version,
		Long: `basisledger reconciles a wallet's deposited cost basis across the
local durable store, the remote deposit backup, and on-chain transfer
history, and prices profit-only withdrawal fees against it.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBasisCmd())
	rootCmd.AddCommand(newReconstructCmd())
	rootCmd.AddCommand(newFlushCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
