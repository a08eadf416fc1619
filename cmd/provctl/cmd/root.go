// Package cmd implements the provctl CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/medrex/record-provenance/internal/ledgerclient"
	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	// Global flags
	outputFormat string
	configPath   string

	// Shared ledger connection
	ledger ledgerAPI
)

// connectLedger opens the ledger connection for a command run
var connectLedger = func(cfg *config.Config, log *logger.Logger) (ledgerAPI, error) {
	return ledgerclient.Connect(&cfg.Fabric, log, monitoring.NewMetricsCollector("provctl"), nil)
}

var rootCmd = &cobra.Command{
	Use:   "provctl",
	Short: "Record provenance ledger CLI",
	Long: `provctl submits and queries transactions on the record-provenance chaincode.

It manages wallet identities, per-record roles, one-to-one access
permissions, and anchored record hashes with their attestations.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// No ledger needed for help and completion
		if cmd.Name() == "completion" || cmd.Name() == "help" {
			return nil
		}

		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		var logOut io.Writer = io.Discard
		if cfg.LogLevel == "debug" {
			logOut = os.Stderr
		}
		log := logger.NewWithOutput(cfg.LogLevel, logOut)

		ledger, err = connectLedger(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to connect to ledger: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logger.WithRequestID(ctx, uuid.New().String()))
		return nil
	},
}

func init() {
	// Finalizers run even when RunE fails, unlike PersistentPostRun
	cobra.OnFinalize(closeLedger)

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./config.yaml)")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// closeLedger releases the gateway opened for the command, if any
func closeLedger() {
	if ledger != nil {
		ledger.Close()
		ledger = nil
	}
}

// formatOutput writes data as JSON when requested and reports whether it did
func formatOutput(w io.Writer, data interface{}) (bool, error) {
	if outputFormat != "json" {
		return false, nil
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return true, encoder.Encode(data)
}

// printSuccess reports a submitted transaction
func printSuccess(w io.Writer, format string, args ...interface{}) error {
	if outputFormat == "json" {
		_, err := formatOutput(w, map[string]interface{}{"ok": true, "message": fmt.Sprintf(format, args...)})
		return err
	}
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
	return nil
}

// printError renders an error with its ledger code when it has one
func printError(w io.Writer, err error) {
	var perr *types.ProvenanceError
	if errors.As(err, &perr) {
		fmt.Fprintf(w, "%s %s %s\n", color.RedString("✗"), color.New(color.Bold).Sprint(perr.Code), perr.Message)
		return
	}
	fmt.Fprintf(w, "%s %v\n", color.RedString("✗"), err)
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}
