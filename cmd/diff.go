// =============================================================================
// POS Ledger Merger - Diff Command
// =============================================================================
//
// This file defines the 'diff' command, a verification tool that sits
// outside the merge. The merge never consults expected numbers; this
// command is where an operator compares a ledger against a previous ledger
// or against figures from the point-of-sale dashboard.
//
// COMMAND USAGE:
//   ledger diff BEFORE AFTER               # order-level diff of two ledgers
//   ledger diff LEDGER --expect "Revenue=1234.56" --from 2024-03-01 --to 2024-03-31
//
// FLAGS:
//   --expect     : Expected aggregate, COLUMN=VALUE or records=N (repeatable)
//   --tolerance  : Largest accepted absolute difference (default 0.01)
//   --from/--to  : Inclusive date range (YYYY-MM-DD) for --expect checks
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pos-ledger-merger/internal/compare"
	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/pipeline"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

var (
	diffExpect    []string
	diffTolerance string
	diffFrom      string
	diffTo        string
)

var diffCmd = &cobra.Command{
	Use:   "diff BEFORE [AFTER]",
	Short: "Compare ledgers, or check a ledger against expected totals",
	Long: `With two ledger files, diff lists the orders added, removed and changed
between them and compares the total of every monetary column.

With --expect, the last ledger given is checked against expected totals
(for example figures read off the point-of-sale dashboard). The command
fails if any expectation is outside the tolerance.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDiff(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().StringArrayVar(&diffExpect, "expect", nil, `Expected aggregate, e.g. "Gross sales=1234.56" or "records=812" (repeatable)`)
	diffCmd.Flags().StringVar(&diffTolerance, "tolerance", "0.01", "Largest accepted absolute difference for --expect")
	diffCmd.Flags().StringVar(&diffFrom, "from", "", "First day (YYYY-MM-DD) included in --expect checks")
	diffCmd.Flags().StringVar(&diffTo, "to", "", "Last day (YYYY-MM-DD) included in --expect checks")
}

func runDiff(out io.Writer, args []string) error {
	if len(args) == 1 && len(diffExpect) == 0 {
		return fmt.Errorf("diff needs two ledgers, or one ledger and --expect")
	}

	// Ledgers are always ISO, so a config without date_order is fine here.
	cfg, err := loadConfig(func(c *config.MergeConfig) {
		if c.DateOrder == "" {
			c.DateOrder = config.DateOrderISO
		}
	})
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ledgers := make([]*types.Ledger, len(args))
	for i, path := range args {
		ledger, result, err := pipeline.ReadLedger(path, cfg)
		if err != nil {
			return err
		}
		if n := len(result.Rejections); n > 0 {
			logger.Warn("ledger rows skipped", "path", path, "count", n)
		}
		ledgers[i] = ledger
	}

	if len(ledgers) == 2 {
		printDiff(out, args[0], args[1], compare.Ledgers(ledgers[0], ledgers[1]))
	}

	if len(diffExpect) == 0 {
		return nil
	}

	opts, err := checkOptions(cfg.Timezone)
	if err != nil {
		return err
	}
	expectations := make([]compare.Expectation, 0, len(diffExpect))
	for _, s := range diffExpect {
		exp, err := compare.ParseExpectation(s)
		if err != nil {
			return err
		}
		expectations = append(expectations, exp)
	}

	target := ledgers[len(ledgers)-1]
	failed := 0
	fmt.Fprintf(out, "\nExpectations for %s:\n", args[len(args)-1])
	for _, o := range compare.Check(target, expectations, opts) {
		status := "OK  "
		if !o.OK {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(out, "  %s %s: want %s, got %s (delta %s)\n",
			status, o.Metric, o.Want.String(), o.Got.String(), o.Delta().String())
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d expectation(s) not met", failed, len(expectations))
	}
	return nil
}

func checkOptions(timezone string) (compare.CheckOptions, error) {
	opts := compare.CheckOptions{}

	tol, err := decimal.NewFromString(diffTolerance)
	if err != nil {
		return opts, fmt.Errorf("invalid --tolerance %q: %w", diffTolerance, err)
	}
	opts.Tolerance = tol

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return opts, err
	}
	if diffFrom != "" {
		opts.From, err = time.ParseInLocation("2006-01-02", diffFrom, loc)
		if err != nil {
			return opts, fmt.Errorf("invalid --from %q: %w", diffFrom, err)
		}
	}
	if diffTo != "" {
		day, err := time.ParseInLocation("2006-01-02", diffTo, loc)
		if err != nil {
			return opts, fmt.Errorf("invalid --to %q: %w", diffTo, err)
		}
		opts.To = day.AddDate(0, 0, 1)
	}
	return opts, nil
}

func printDiff(out io.Writer, before, after string, d *compare.Diff) {
	fmt.Fprintf(out, "--- %s\n+++ %s\n", before, after)
	fmt.Fprintf(out, "added %d, removed %d, changed %d, unchanged %d\n",
		len(d.Added), len(d.Removed), len(d.Changed), d.Unchanged)

	for _, id := range d.Added {
		fmt.Fprintf(out, "+ %s\n", id)
	}
	for _, id := range d.Removed {
		fmt.Fprintf(out, "- %s\n", id)
	}
	for _, c := range d.Changed {
		fmt.Fprintf(out, "~ %s\n", c.OrderID)
		for _, f := range c.Fields {
			fmt.Fprintf(out, "    %s: %q -> %q\n", f.Column, f.Before, f.After)
		}
	}

	if len(d.Totals) > 0 {
		fmt.Fprintln(out, "\nColumn totals:")
		for _, t := range d.Totals {
			fmt.Fprintf(out, "  %-24s %14s %14s %14s\n",
				t.Column, t.Before.StringFixed(2), t.After.StringFixed(2), t.Delta().StringFixed(2))
		}
	}
}
