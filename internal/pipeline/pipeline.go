// =============================================================================
// POS Ledger Merger - Merge Pipeline
// =============================================================================
//
// The pipeline wraps the pure merge with everything that touches the outside
// world. It is the only place that reads input files and writes the ledger.
//
// PROCESSING STEPS:
//   1. Build ingestion options from the configuration
//   2. Read the existing ledger (lowest priority) and every export,
//      concurrently
//   3. Merge (merger.Merge)
//   4. Replace the ledger atomically, backing up the previous one
//   5. Write the JSON report and text summary
//   6. Write the metrics textfile
//
// SAFETY:
//   - The existing ledger must be readable and pass the schema check, or
//     the run stops before anything is written.
//   - A dry run performs steps 1-3 and 5 only.
//
// =============================================================================

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/ledgerwriter"
	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
	"github.com/ginjaninja78/pos-ledger-merger/internal/metrics"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
	"github.com/ginjaninja78/pos-ledger-merger/internal/validation"
	"github.com/ginjaninja78/pos-ledger-merger/pkg/utils"
)

// ledgerCSVSettings describes ledgers this tool writes.
var ledgerCSVSettings = config.CSVSettings{
	Delimiter:    ",",
	HeaderRows:   1,
	DataStartRow: 2,
	Encoding:     "UTF-8",
}

// =============================================================================
// RESULT
// =============================================================================

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	LedgerPath string `json:"ledger_path"`
	BackupPath string `json:"backup_path,omitempty"`
	Written    bool   `json:"written"`
	DryRun     bool   `json:"dry_run"`

	LoadFailures []LoadFailure `json:"load_failures,omitempty"`
	Report       *merger.Report `json:"report"`

	ReportPath  string `json:"-"`
	SummaryPath string `json:"-"`

	Ledger *types.Ledger `json:"-"`
}

// LoadFailure is an input file that could not be read.
type LoadFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// =============================================================================
// PIPELINE
// =============================================================================

// RunOptions tunes a single run.
type RunOptions struct {
	// DryRun merges and reports without replacing the ledger.
	DryRun bool

	// SkipReports disables the report and summary files.
	SkipReports bool
}

// Pipeline runs merges for one configuration.
type Pipeline struct {
	cfg    *config.MergeConfig
	logger Logger
	files  *utils.FileManager
	now    func() time.Time
}

// New creates a pipeline. A nil logger discards output.
func New(cfg *config.MergeConfig, logger Logger) *Pipeline {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		files:  utils.NewFileManager(cfg.BackupDir, cfg.BackupRetention),
		now:    time.Now,
	}
}

// IngestOptions builds the validation options for a configuration.
func IngestOptions(cfg *config.MergeConfig) (validation.Options, error) {
	order, err := validation.ParseDateOrder(cfg.DateOrder)
	if err != nil {
		return validation.Options{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return validation.Options{}, fmt.Errorf("invalid timezone: %w", err)
	}
	times, err := validation.NewTimeParser(order, loc)
	if err != nil {
		return validation.Options{}, err
	}

	return validation.Options{
		KeyColumn:       cfg.KeyColumn,
		TimeColumn:      cfg.TimeColumn,
		MonetaryColumns: cfg.MonetaryColumns,
		Times:           times,
	}, nil
}

// WriterOptions returns the ledger writer options for a configuration.
func WriterOptions(cfg *config.MergeConfig) ledgerwriter.Options {
	return ledgerwriter.Options{KeyColumn: cfg.KeyColumn, TimeColumn: cfg.TimeColumn}
}

// ExistingLedgerID is the batch id given to the current ledger.
func ExistingLedgerID(cfg *config.MergeConfig) string {
	return "ledger:" + filepath.Base(cfg.LedgerPath)
}

// Run executes one merge.
//
// RETURNS:
//   - The run result. It is returned alongside most errors so callers can
//     show the report of a failed run.
//   - An error if the configuration is unusable, the existing ledger cannot
//     be used, the merge fails (e.g. *merger.EmptyLedgerError), or the
//     ledger cannot be written.
func (p *Pipeline) Run(opts RunOptions) (*RunResult, error) {
	cfg := p.cfg
	result := &RunResult{
		RunID:      uuid.NewString(),
		StartTime:  p.now(),
		LedgerPath: cfg.LedgerPath,
		DryRun:     opts.DryRun,
	}

	err := p.run(result, opts)
	result.EndTime = p.now()

	if !opts.SkipReports && result.Report != nil {
		p.writeReports(result)
	}
	p.writeMetrics(result)

	if err != nil {
		p.logger.Error("merge failed", "run_id", result.RunID, "error", err)
		return result, err
	}

	p.logger.Info("merge complete",
		"run_id", result.RunID,
		"records", result.Ledger.Len(),
		"written", result.Written,
		"duration", result.EndTime.Sub(result.StartTime))
	return result, nil
}

func (p *Pipeline) run(result *RunResult, opts RunOptions) error {
	cfg := p.cfg

	ingestOpts, err := IngestOptions(cfg)
	if err != nil {
		return err
	}
	policy, err := merger.PolicyByName(cfg.Policy)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 1: LOAD INPUTS
	// =========================================================================

	loads := LoadBatches(cfg.Batches, cfg.CSVSettings, loc, cfg.MaxConcurrency)

	var batches []types.Batch
	ledgerID := ""
	if cfg.IncludeExisting() && utils.FileExists(cfg.LedgerPath) {
		existing, err := p.loadExisting(loc)
		if err != nil {
			return err
		}
		ledgerID = existing.ID
		batches = append(batches, existing)
	}

	for _, l := range loads {
		if l.Error != nil {
			p.logger.Warn("batch not loaded", "path", l.FilePath, "error", l.Error)
			result.LoadFailures = append(result.LoadFailures, LoadFailure{Path: l.FilePath, Error: l.Error.Error()})
			continue
		}
		p.logger.Debug("batch loaded",
			"batch", l.Batch.ID,
			"priority", l.Batch.Priority,
			"rows", len(l.Batch.Table.Rows),
			"took", l.LoadTime)
		batches = append(batches, l.Batch)
	}

	// =========================================================================
	// STEP 2: MERGE
	// =========================================================================

	ledger, report, err := merger.Merge(batches, merger.Options{
		Policy:      policy,
		Ingest:      ingestOpts,
		Concurrency: cfg.MaxConcurrency,
	})
	result.Report = report
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}
	result.Ledger = ledger

	for _, se := range report.SchemaErrors {
		if se.BatchID == ledgerID {
			return fmt.Errorf("existing ledger %s failed the schema check, refusing to replace it: %w", cfg.LedgerPath, se)
		}
		p.logger.Warn("batch excluded", "batch", se.BatchID, "error", se)
	}
	if n := report.Integrity.RejectedRecords; n > 0 {
		p.logger.Warn("records rejected", "count", n, "by_reason", report.Integrity.RejectedByReason)
	}
	if n := report.Integrity.AmountParseFailures; n > 0 {
		p.logger.Warn("amounts zeroed", "count", n)
	}
	if !report.Integrity.Consistent() {
		return errors.New("integrity check failed: record counts do not add up")
	}

	// =========================================================================
	// STEP 3: REPLACE LEDGER
	// =========================================================================

	if opts.DryRun {
		p.logger.Info("dry run, ledger not written", "path", cfg.LedgerPath)
		return nil
	}

	backup, err := p.files.ReplaceFile(cfg.LedgerPath, func(w io.Writer) error {
		return ledgerwriter.Write(w, ledger, cfg.OutputFormat, WriterOptions(cfg))
	})
	result.BackupPath = backup
	if err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	result.Written = true

	if backup != "" {
		p.logger.Info("previous ledger backed up", "path", backup)
	}
	return nil
}

func (p *Pipeline) loadExisting(loc *time.Location) (types.Batch, error) {
	cfg := p.cfg
	settings := ledgerCSVSettings

	res := LoadBatch(config.BatchConfig{
		Path:     cfg.LedgerPath,
		ID:       ExistingLedgerID(cfg),
		Priority: cfg.ExistingLedgerPriority,
	}, settings, loc)
	if res.Error != nil {
		return types.Batch{}, fmt.Errorf("existing ledger cannot be read, refusing to replace it: %w", res.Error)
	}

	p.logger.Debug("existing ledger loaded", "path", cfg.LedgerPath, "rows", len(res.Batch.Table.Rows))
	return res.Batch, nil
}

// =============================================================================
// REPORTS AND METRICS
// =============================================================================

func (p *Pipeline) writeReports(result *RunResult) {
	path, err := utils.WriteJSONReport(p.cfg.ReportDir, result.RunID, result.StartTime, result)
	if err != nil {
		p.logger.Warn("report not written", "error", err)
	} else {
		result.ReportPath = path
	}

	path, err = utils.WriteSummaryLog(Summary(result), p.cfg.ReportDir)
	if err != nil {
		p.logger.Warn("summary not written", "error", err)
	} else {
		result.SummaryPath = path
	}
}

func (p *Pipeline) writeMetrics(result *RunResult) {
	if p.cfg.MetricsFile == "" {
		return
	}

	reg := metrics.NewRegistry()
	var finished time.Time
	if result.Written {
		finished = result.EndTime
	}
	reg.Observe(result.Report, result.EndTime.Sub(result.StartTime), finished)

	if err := reg.WriteTextfile(p.cfg.MetricsFile); err != nil {
		p.logger.Warn("metrics not written", "path", p.cfg.MetricsFile, "error", err)
	}
}

// Summary converts a run result to the plain-text summary shape.
func Summary(result *RunResult) utils.MergeSummary {
	s := utils.MergeSummary{
		RunID:      result.RunID,
		StartTime:  result.StartTime,
		EndTime:    result.EndTime,
		LedgerPath: result.LedgerPath,
		BackupPath: result.BackupPath,
		DryRun:     result.DryRun,
	}

	if r := result.Report; r != nil {
		s.Policy = r.Policy
		s.DateOrder = r.DateOrder
		s.TotalRecords = r.Integrity.TotalRecords
		s.Earliest = r.Integrity.Earliest
		s.Latest = r.Integrity.Latest
		s.RowsRead = r.Integrity.RowsRead
		s.RejectedRecords = r.Integrity.RejectedRecords
		s.AmountParseFailures = r.Integrity.AmountParseFailures
		s.DuplicatesResolved = r.Integrity.DuplicatesResolved
		for _, b := range r.Batches {
			s.Batches = append(s.Batches, utils.BatchLine{
				ID:          b.ID,
				Priority:    b.Priority,
				RowsRead:    b.RowsRead,
				Accepted:    b.Accepted,
				Rejected:    b.Rejected,
				Contributed: b.Contributed,
				Error:       b.Error,
			})
		}
	}
	for _, f := range result.LoadFailures {
		s.Batches = append(s.Batches, utils.BatchLine{ID: f.Path, Priority: -1, Error: f.Error})
	}

	return s
}

// =============================================================================
// LEDGER READING
// =============================================================================

// ReadLedger reads a ledger file written by this tool, for comparison.
// Ledger timestamps are ISO, which every date order accepts.
func ReadLedger(path string, cfg *config.MergeConfig) (*types.Ledger, *validation.Result, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	times, err := validation.NewTimeParser(validation.ISO, loc)
	if err != nil {
		return nil, nil, err
	}

	res := LoadBatch(config.BatchConfig{Path: path, ID: filepath.Base(path)}, ledgerCSVSettings, loc)
	if res.Error != nil {
		return nil, nil, res.Error
	}

	result, err := validation.Ingest(res.Batch, validation.Options{
		KeyColumn:       cfg.KeyColumn,
		TimeColumn:      cfg.TimeColumn,
		MonetaryColumns: cfg.MonetaryColumns,
		Times:           times,
	})
	if err != nil {
		return nil, result, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}

	return &types.Ledger{Columns: result.Columns, Records: result.Records}, result, nil
}
