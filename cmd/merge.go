// =============================================================================
// POS Ledger Merger - Merge Command
// =============================================================================
//
// This file defines the 'merge' command, the main command of the tool.
//
// COMMAND USAGE:
//   ledger merge [flags]
//
// FLAGS:
//   --batch         : Extra export to merge (repeatable). Extra batches rank
//                     above every configured batch, in flag order.
//   --policy        : Conflict policy (last-batch-wins, first-batch-wins)
//   --date-order    : Date order of the exports (day-first, month-first, iso)
//   --output        : Ledger file to replace
//   --dry-run       : Merge and report without replacing the ledger
//   --report        : Print the full JSON report to stdout
//   --metrics-file  : Write a Prometheus textfile after the run
//   --no-existing   : Do not merge the current ledger back in
//
// =============================================================================

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
	"github.com/ginjaninja78/pos-ledger-merger/internal/pipeline"
	"github.com/ginjaninja78/pos-ledger-merger/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	mergeBatches     []string
	mergePolicy      string
	mergeDateOrder   string
	mergeOutput      string
	mergeDryRun      bool
	mergePrintReport bool
	mergeMetricsFile string
	mergeNoExisting  bool
)

// maxListed bounds the per-row lines printed after a run. The JSON report
// always has all of them.
const maxListed = 20

// =============================================================================
// MERGE COMMAND DEFINITION
// =============================================================================

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge exports into the ledger",
	Long: `The merge command ingests every configured export (and any --batch
files), resolves duplicated orders by batch priority, sorts the result by
order time and replaces the ledger.

Before the ledger is replaced, the previous ledger is copied to the backup
directory. The new ledger is written to a temporary file and renamed into
place, so an interrupted run never leaves a half-written ledger.

A batch without the required columns is excluded and reported; the run
continues. A run that would produce an empty ledger fails and leaves the
existing ledger untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMerge(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringArrayVar(&mergeBatches, "batch", nil, "Additional export to merge (repeatable, later flags rank higher)")
	mergeCmd.Flags().StringVar(&mergePolicy, "policy", "", "Conflict policy: last-batch-wins or first-batch-wins")
	mergeCmd.Flags().StringVar(&mergeDateOrder, "date-order", "", "Date order of export timestamps: day-first, month-first or iso")
	mergeCmd.Flags().StringVar(&mergeOutput, "output", "", "Ledger file to replace (overrides ledger_path)")
	mergeCmd.Flags().BoolVar(&mergeDryRun, "dry-run", false, "Merge and report without replacing the ledger")
	mergeCmd.Flags().BoolVar(&mergePrintReport, "report", false, "Print the full JSON report to stdout")
	mergeCmd.Flags().StringVar(&mergeMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	mergeCmd.Flags().BoolVar(&mergeNoExisting, "no-existing", false, "Do not merge the current ledger back in")
}

// =============================================================================
// MAIN MERGE FUNCTION
// =============================================================================

func runMerge(out io.Writer) error {
	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	cfg, err := loadConfig(applyMergeFlags)
	if err != nil {
		return err
	}
	if len(cfg.Batches) == 0 {
		return errors.New("no batches to merge: configure batches or pass --batch")
	}

	logger := newLogger(cfg)
	logger.Info("configuration loaded",
		"config", cfgFile,
		"ledger", cfg.LedgerPath,
		"batches", len(cfg.Batches),
		"policy", cfg.Policy,
		"date_order", cfg.DateOrder)

	// =========================================================================
	// STEP 2: RUN THE PIPELINE
	// =========================================================================

	result, runErr := pipeline.New(cfg, logger).Run(pipeline.RunOptions{DryRun: mergeDryRun})

	// =========================================================================
	// STEP 3: PRINT RESULTS
	// =========================================================================

	if result != nil && result.Report != nil {
		if mergePrintReport {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("failed to print report: %w", err)
			}
		} else {
			if err := utils.RenderSummary(out, pipeline.Summary(result)); err != nil {
				return err
			}
			printDetails(out, result.Report)
		}
		if result.ReportPath != "" {
			fmt.Fprintf(os.Stderr, "Report written to %s\n", result.ReportPath)
		}
	}

	var empty *merger.EmptyLedgerError
	if errors.As(runErr, &empty) {
		return fmt.Errorf("%w (the existing ledger was not modified)", runErr)
	}
	return runErr
}

// applyMergeFlags layers the command line over the config file.
func applyMergeFlags(cfg *config.MergeConfig) {
	if mergePolicy != "" {
		cfg.Policy = mergePolicy
	}
	if mergeDateOrder != "" {
		cfg.DateOrder = mergeDateOrder
	}
	if mergeOutput != "" {
		cfg.LedgerPath = mergeOutput
	}
	if mergeMetricsFile != "" {
		cfg.MetricsFile = mergeMetricsFile
	}
	if mergeNoExisting {
		include := false
		cfg.IncludeExistingLedger = &include
	}

	next := cfg.ExistingLedgerPriority + 1
	for _, b := range cfg.Batches {
		if b.Priority >= next {
			next = b.Priority + 1
		}
	}
	for _, path := range mergeBatches {
		cfg.Batches = append(cfg.Batches, config.BatchConfig{
			Path:     path,
			ID:       filepath.Base(path),
			Priority: next,
		})
		next++
	}
}

// printDetails lists rejected rows, amount defects and conflicting
// duplicates.
func printDetails(out io.Writer, report *merger.Report) {
	if n := len(report.Rejections); n > 0 {
		fmt.Fprintf(out, "\nRejected rows (%d):\n", n)
		for i, r := range report.Rejections {
			if i == maxListed {
				fmt.Fprintf(out, "  ... and %d more (see the JSON report)\n", n-maxListed)
				break
			}
			fmt.Fprintf(out, "  %s row %d order %q: %s %q\n", r.BatchID, r.Row, r.OrderID, r.Reason, r.Value)
		}
	}

	if n := len(report.AmountDefects); n > 0 {
		fmt.Fprintf(out, "\nAmounts zeroed (%d):\n", n)
		for i, d := range report.AmountDefects {
			if i == maxListed {
				fmt.Fprintf(out, "  ... and %d more (see the JSON report)\n", n-maxListed)
				break
			}
			fmt.Fprintf(out, "  %s row %d order %q: %s = %q\n", d.BatchID, d.Row, d.OrderID, d.Column, d.Value)
		}
	}

	var conflicting []merger.DuplicateResolution
	for _, d := range report.Duplicates {
		if d.Conflicting {
			conflicting = append(conflicting, d)
		}
	}
	if n := len(conflicting); n > 0 {
		fmt.Fprintf(out, "\nConflicting duplicates (%d):\n", n)
		for i, d := range conflicting {
			if i == maxListed {
				fmt.Fprintf(out, "  ... and %d more (see the JSON report)\n", n-maxListed)
				break
			}
			fmt.Fprintf(out, "  order %s: %v -> kept %s\n", d.OrderID, d.Contributors, d.Winner)
		}
	}

	if len(report.Overlaps) > 0 {
		fmt.Fprintln(out, "\nOverlapping batches:")
		for _, o := range report.Overlaps {
			fmt.Fprintf(out, "  %s / %s: %d shared orders\n", o.BatchA, o.BatchB, o.Shared)
		}
	}
}
