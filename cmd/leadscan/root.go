package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/nao1215/leadscan/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for leadscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscan",
		Short: "Enrich foreclosure notices into owner contact leads",
		Long: `leadscan turns county foreclosure notices into contact leads.

For every notice recorded in a date range it normalizes and geocodes the
property address, looks up the owner of record on the tax-assessor site and
searches a people-search site for that owner's phone numbers and emails.
Each stage degrades on its own: a lead keeps whatever was found.

Settings are read from .leadscan (see 'leadscan init'), LEADSCAN_*
environment variables and a .env file in the current directory.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// A missing .env is normal.
			_ = godotenv.Load() //nolint:errcheck
		},
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .leadscan in current or home directory)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag returns the -c value, or "" when the flag is absent.
func getConfigFlag(cmd *cobra.Command) string {
	v, err := cmd.Flags().GetString("config")
	if err != nil {
		v, _ = cmd.Root().PersistentFlags().GetString("config") //nolint:errcheck // absent flag means no file
	}
	return v
}

func getLogJSONFlag(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return false
	}
	return v
}

// setupLogger creates the masking logger used by every command.
func setupLogger(w io.Writer, verbose, jsonOutput bool) *slog.Logger {
	if jsonOutput {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}
