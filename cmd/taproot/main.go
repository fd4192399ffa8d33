package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
	flagLogFile string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// problemsFound is set by the check command when unsuppressed diagnostics
// remain, so the process exits non-zero without treating them as an error.
var problemsFound bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
	if problemsFound {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "taproot",
	Short:         "Incremental semantic analysis and type inference for Python",
	Long:          "Taproot parses Python with tree-sitter, builds per-file semantic indexes, infers types with flow-sensitive narrowing, and reports diagnostics incrementally.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		configureLogger(flagLogFile, flagVerbose)
		return nil
	},
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "results database path (default: .taproot/results.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "log file path (default: .taproot.log)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid format %q (want json or text)", format)
	}
}
