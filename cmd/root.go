// =============================================================================
// POS Ledger Merger - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (ledger)
//   ├── mergeCmd    (ledger merge)
//   ├── validateCmd (ledger validate)
//   ├── diffCmd     (ledger diff)
//   └── versionCmd  (ledger version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Loading an optional .env file (--env-file)
//   2. Resolving the config path (--config, else LEDGER_CONFIG)
//   3. Building the logger shared by the subcommands
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/pipeline"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// cfgExplicit is set when the config path came from the flag or the
// environment. A missing explicit config file is an error; a missing
// default one is not.
var cfgExplicit bool

// envFile is the optional dotenv file loaded before anything else.
var envFile string

// verbose enables debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "POS Ledger Merger - merge point-of-sale exports into one ledger",
	Long: `POS Ledger Merger combines successive point-of-sale exports, each covering
a limited window, into one cumulative ledger with exactly one record per
order, sorted by order time.

Every run produces a merge report: which rows were rejected and why, which
amounts could not be parsed, and which batch won each duplicated order.
The ledger is replaced atomically and the previous one is backed up.

Example Usage:
  ledger merge                                  # Merge the batches in ledger.yaml
  ledger merge --batch exports/april.csv        # Add an export on top
  ledger merge --dry-run --report               # Merge and print the report only
  ledger validate exports/                      # Check exports without merging
  ledger diff data/backups/old.csv data/sales_data.csv`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}

		cfgExplicit = cmd.Flags().Changed("config")
		if !cfgExplicit {
			if path := os.Getenv("LEDGER_CONFIG"); path != "" {
				cfgFile = path
				cfgExplicit = true
			}
		}
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"ledger.yaml",
		"Path to the configuration file (or set LEDGER_CONFIG)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)

	rootCmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		".env",
		"Optional dotenv file loaded at startup",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig reads the config file, lets the command apply its flag
// overrides, then applies defaults and validates.
func loadConfig(override func(*config.MergeConfig)) (*config.MergeConfig, error) {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if cfgExplicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = nil
	}

	cfg, err := config.Decode(data)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg)
	if override != nil {
		override(cfg)
	}
	if err := config.Finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to stderr at the configured level, or debug with -v.
func newLogger(cfg *config.MergeConfig) pipeline.Logger {
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	return pipeline.NewLogger(os.Stderr, level)
}
