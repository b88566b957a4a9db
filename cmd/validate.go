// =============================================================================
// POS Ledger Merger - Validate Command
// =============================================================================
//
// This file defines the 'validate' command. It ingests exports exactly as a
// merge would, but merges and writes nothing.
//
// COMMAND USAGE:
//   ledger validate [file or directory ...]
//
// With no arguments the configured batches are checked. Directories are
// scanned (not recursively) for CSV and XLSX files.
//
// OUTPUT (per file):
//   - whether the file is a recognizable export (schema check)
//   - rows read, accepted, rejected by reason, amounts zeroed
//   - date span of the accepted rows
//   - value counts of low-cardinality dimension columns
//
// The command fails if any file does not pass the schema check.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/pipeline"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
	"github.com/ginjaninja78/pos-ledger-merger/internal/validation"
	"github.com/ginjaninja78/pos-ledger-merger/pkg/utils"
)

var validateDateOrder string

var validateCmd = &cobra.Command{
	Use:   "validate [file or directory ...]",
	Short: "Check exports without merging",
	Long: `The validate command runs the same schema check and row validation as
merge, prints a data-quality profile for every file and writes nothing.

Use it on new exports before adding them to the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDateOrder, "date-order", "", "Date order of export timestamps: day-first, month-first or iso")
}

func runValidate(out io.Writer, args []string) error {
	cfg, err := loadConfig(func(c *config.MergeConfig) {
		if validateDateOrder != "" {
			c.DateOrder = validateDateOrder
		}
	})
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	opts, err := pipeline.IngestOptions(cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	targets, err := validateTargets(cfg, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no files to validate")
	}

	failed := 0
	for _, bc := range targets {
		res := pipeline.LoadBatch(bc, cfg.CSVSettings, loc)
		if res.Error != nil {
			logger.Error("file not readable", "path", bc.Path, "error", res.Error)
			fmt.Fprintf(out, "%s\n  UNREADABLE: %v\n\n", bc.Path, res.Error)
			failed++
			continue
		}

		result, ingestErr := validation.Ingest(res.Batch, opts)
		profile := validation.NewProfile(result, ingestErr)
		if !profile.Recognized {
			failed++
			if profile.Schema == nil {
				logger.Error("validation failed", "path", bc.Path, "error", ingestErr)
			}
		}
		printProfile(out, bc.Path, profile)
	}

	fmt.Fprintf(out, "%d file(s) checked, %d failed\n", len(targets), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failed, len(targets))
	}
	return nil
}

// validateTargets expands arguments into batch configs. Without arguments
// the configured batches are used.
func validateTargets(cfg *config.MergeConfig, args []string) ([]config.BatchConfig, error) {
	if len(args) == 0 {
		return cfg.Batches, nil
	}

	var targets []config.BatchConfig
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		paths := []string{arg}
		if info.IsDir() {
			paths, err = utils.DiscoverInputFiles(arg, pipeline.InputExtensions...)
			if err != nil {
				return nil, err
			}
		}
		for _, p := range paths {
			targets = append(targets, config.BatchConfig{Path: p, ID: filepath.Base(p), Priority: len(targets)})
		}
	}
	return targets, nil
}

func printProfile(out io.Writer, path string, p *validation.Profile) {
	fmt.Fprintln(out, path)

	if !p.Recognized {
		if p.Schema != nil {
			fmt.Fprintf(out, "  NOT A RECOGNIZED EXPORT: %v\n", p.Schema)
		} else {
			fmt.Fprintln(out, "  NOT A RECOGNIZED EXPORT")
		}
		fmt.Fprintf(out, "  rows %d\n\n", p.RowsRead)
		return
	}

	fmt.Fprintf(out, "  rows %d, accepted %d, rejected %d, amounts zeroed %d\n",
		p.RowsRead, p.Accepted, p.RejectedTotal(), p.AmountDefects)

	reasons := make([]string, 0, len(p.Rejected))
	for r := range p.Rejected {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(out, "    %s: %d\n", r, p.Rejected[validation.Reason(r)])
	}

	if p.Accepted > 0 {
		fmt.Fprintf(out, "  span %s .. %s\n", p.Earliest.Format(types.TimeLayout), p.Latest.Format(types.TimeLayout))
	}

	cols := make([]string, 0, len(p.Dimensions))
	for c := range p.Dimensions {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(out, "  %s:", c)
		for _, vc := range p.Dimensions[c] {
			value := vc.Value
			if value == "" {
				value = "(blank)"
			}
			fmt.Fprintf(out, " %s=%d", value, vc.Count)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)
}
