// =============================================================================
// POS Ledger Merger - Configuration Module
// =============================================================================
//
// This module is responsible for loading the merge configuration. The merge
// core never reads files or the environment itself; everything it needs is
// resolved here and handed over as plain values.
//
// CONFIGURATION FILE (ledger.yaml):
//   ledger_path:       data/sales_data.csv
//   date_order:        day-first            # mandatory: day-first | month-first | iso
//   policy:            last-batch-wins      # or first-batch-wins
//   batches:
//     - path: exports/orders_march.csv
//       priority: 1
//     - path: exports/orders_april.xlsx
//       priority: 2
//       not_before: 2024-04-01
//
// ENVIRONMENT:
//   LEDGER_LOG_LEVEL overrides log_level (see ApplyEnv).
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Recognized date orders.
const (
	DateOrderDayFirst   = "day-first"
	DateOrderMonthFirst = "month-first"
	DateOrderISO        = "iso"
)

// Recognized conflict policies.
const (
	PolicyLastBatchWins  = "last-batch-wins"
	PolicyFirstBatchWins = "first-batch-wins"
)

// Recognized output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// dateLayout is used for batch window bounds in the config file.
const dateLayout = "2006-01-02"

// =============================================================================
// MERGE CONFIGURATION STRUCTURE
// =============================================================================

// MergeConfig holds everything a merge run needs.
type MergeConfig struct {
	// =========================================================================
	// LEDGER SETTINGS
	// =========================================================================

	// LedgerPath is the canonical ledger file that the merge replaces.
	// Default: "data/sales_data.csv"
	LedgerPath string `yaml:"ledger_path"`

	// OutputFormat of the ledger file: "csv" or "xlsx".
	// Default: inferred from LedgerPath's extension, else "csv"
	OutputFormat string `yaml:"output_format"`

	// BackupDir receives a timestamped copy of the previous ledger before
	// every replace.
	// Default: "<dir of ledger_path>/backups"
	BackupDir string `yaml:"backup_dir"`

	// BackupRetention keeps only the N newest backups. 0 keeps all.
	BackupRetention int `yaml:"backup_retention"`

	// ReportDir receives the JSON report and text summary of each run.
	// Default: "<dir of ledger_path>/reports"
	ReportDir string `yaml:"report_dir"`

	// IncludeExistingLedger feeds the current ledger into the merge as a
	// batch so new exports extend the history.
	// Default: true
	IncludeExistingLedger *bool `yaml:"include_existing_ledger"`

	// ExistingLedgerPriority is the priority of that batch.
	// Default: 0 (below every export)
	ExistingLedgerPriority int `yaml:"existing_ledger_priority"`

	// =========================================================================
	// PARSING SETTINGS
	// =========================================================================

	// DateOrder is mandatory and has no default.
	DateOrder string `yaml:"date_order"`

	// Timezone is the IANA zone the export timestamps are local to.
	// Default: "UTC"
	Timezone string `yaml:"timezone"`

	// KeyColumn / TimeColumn name the natural key and timestamp columns.
	KeyColumn  string `yaml:"key_column"`
	TimeColumn string `yaml:"time_column"`

	// MonetaryColumns lists the recognized monetary columns.
	// Default: types.DefaultMonetaryColumns
	MonetaryColumns []string `yaml:"monetary_columns"`

	// CSVSettings applies to every CSV batch and to a CSV ledger.
	CSVSettings CSVSettings `yaml:"csv_settings"`

	// =========================================================================
	// MERGE SETTINGS
	// =========================================================================

	// Policy is the conflict policy name.
	// Default: "last-batch-wins"
	Policy string `yaml:"policy"`

	// Batches are the input exports with their explicit priorities.
	Batches []BatchConfig `yaml:"batches"`

	// MaxConcurrency bounds parallel batch ingestion.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// =========================================================================
	// LOGGING / METRICS
	// =========================================================================

	// LogLevel: "debug", "info", "warn", "error". Default: "info"
	LogLevel string `yaml:"log_level"`

	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string `yaml:"metrics_file"`
}

// BatchConfig describes one input export.
type BatchConfig struct {
	Path string `yaml:"path"`

	// ID overrides the batch identifier used in reports (default: file name).
	ID string `yaml:"id,omitempty"`

	Priority int `yaml:"priority"`

	// Sheet selects the worksheet of an XLSX export (default: first sheet).
	Sheet string `yaml:"sheet,omitempty"`

	// NotBefore / NotAfter bound the dates this export is trusted for,
	// inclusive, in YYYY-MM-DD.
	NotBefore string `yaml:"not_before,omitempty"`
	NotAfter  string `yaml:"not_after,omitempty"`
}

// =============================================================================
// CSV SETTINGS STRUCTURE
// =============================================================================

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the field separator. Common values: ",", ";", "tab", "|"
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows. Default: 1
	HeaderRows int `yaml:"header_rows"`

	// DataStartRow is the 1-based row where data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row"`

	// Encoding of the file: "UTF-8", "UTF-16", "Windows-1252", "ISO-8859-1".
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMergeConfig loads the merge configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the MergeConfig struct with defaults applied.
//   - An error if the file cannot be read, parsed or fails validation.
func LoadMergeConfig(configPath string) (*MergeConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseMergeConfig(data)
}

// ParseMergeConfig parses, defaults and validates configuration bytes.
func ParseMergeConfig(data []byte) (*MergeConfig, error) {
	config, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := Finish(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Decode parses configuration bytes without applying defaults. Callers that
// layer overrides (CLI flags) decode first, override, then call Finish.
func Decode(data []byte) (*MergeConfig, error) {
	var config MergeConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Finish applies defaults and validates.
func Finish(config *MergeConfig) error {
	ApplyDefaults(config)

	if err := Validate(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ApplyDefaults sets default values for any unset configuration options.
func ApplyDefaults(config *MergeConfig) {
	if config.LedgerPath == "" {
		config.LedgerPath = "data/sales_data.csv"
	}
	ledgerDir := filepath.Dir(config.LedgerPath)
	if config.OutputFormat == "" {
		config.OutputFormat = FormatCSV
		if strings.EqualFold(filepath.Ext(config.LedgerPath), ".xlsx") {
			config.OutputFormat = FormatXLSX
		}
	}
	if config.BackupDir == "" {
		config.BackupDir = filepath.Join(ledgerDir, "backups")
	}
	if config.ReportDir == "" {
		config.ReportDir = filepath.Join(ledgerDir, "reports")
	}
	if config.IncludeExistingLedger == nil {
		include := true
		config.IncludeExistingLedger = &include
	}
	if config.Timezone == "" {
		config.Timezone = "UTC"
	}
	if config.KeyColumn == "" {
		config.KeyColumn = types.ColumnOrderID
	}
	if config.TimeColumn == "" {
		config.TimeColumn = types.ColumnOrderTime
	}
	if len(config.MonetaryColumns) == 0 {
		config.MonetaryColumns = append([]string(nil), types.DefaultMonetaryColumns...)
	}
	if config.Policy == "" {
		config.Policy = PolicyLastBatchWins
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	applyCSVDefaults(&config.CSVSettings)
}

func applyCSVDefaults(settings *CSVSettings) {
	if settings.Delimiter == "" {
		settings.Delimiter = ","
	}
	if settings.HeaderRows == 0 {
		settings.HeaderRows = 1
	}
	if settings.DataStartRow == 0 {
		settings.DataStartRow = settings.HeaderRows + 1
	}
	if settings.Encoding == "" {
		settings.Encoding = "UTF-8"
	}
}

// Validate checks a defaulted configuration. All problems are reported at
// once, joined.
func Validate(config *MergeConfig) error {
	var errs []error

	switch config.DateOrder {
	case DateOrderDayFirst, DateOrderMonthFirst, DateOrderISO:
	case "":
		errs = append(errs, fmt.Errorf("date_order is required (%s, %s or %s)",
			DateOrderDayFirst, DateOrderMonthFirst, DateOrderISO))
	default:
		errs = append(errs, fmt.Errorf("unknown date_order %q", config.DateOrder))
	}

	switch config.Policy {
	case PolicyLastBatchWins, PolicyFirstBatchWins:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", config.Policy))
	}

	switch config.OutputFormat {
	case FormatCSV, FormatXLSX:
	default:
		errs = append(errs, fmt.Errorf("unknown output_format %q", config.OutputFormat))
	}

	if _, err := time.LoadLocation(config.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", config.Timezone, err))
	}

	if config.BackupRetention < 0 {
		errs = append(errs, fmt.Errorf("backup_retention must not be negative"))
	}

	if config.CSVSettings.DataStartRow <= config.CSVSettings.HeaderRows {
		errs = append(errs, fmt.Errorf("csv_settings.data_start_row must be after the header rows"))
	}

	seen := make(map[int]string)
	if config.IncludeExisting() {
		seen[config.ExistingLedgerPriority] = "existing ledger"
	}
	for i, b := range config.Batches {
		if b.Path == "" {
			errs = append(errs, fmt.Errorf("batches[%d]: path is required", i))
		}
		if other, ok := seen[b.Priority]; ok {
			errs = append(errs, fmt.Errorf("batches[%d]: priority %d already used by %s", i, b.Priority, other))
		} else {
			seen[b.Priority] = b.Path
		}
		if _, _, err := b.Window(time.UTC); err != nil {
			errs = append(errs, fmt.Errorf("batches[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// ApplyEnv applies environment overrides. Only the CLI calls this.
func ApplyEnv(config *MergeConfig) {
	if level := os.Getenv("LEDGER_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// IncludeExisting reports whether the existing ledger joins the merge.
func (c *MergeConfig) IncludeExisting() bool {
	return c.IncludeExistingLedger == nil || *c.IncludeExistingLedger
}

// Location returns the configured time zone.
func (c *MergeConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Window parses the optional trust window of a batch. NotAfter covers the
// whole named day.
func (b BatchConfig) Window(loc *time.Location) (time.Time, time.Time, error) {
	var notBefore, notAfter time.Time
	var err error

	if b.NotBefore != "" {
		notBefore, err = time.ParseInLocation(dateLayout, b.NotBefore, loc)
		if err != nil {
			return notBefore, notAfter, fmt.Errorf("invalid not_before %q: %w", b.NotBefore, err)
		}
	}
	if b.NotAfter != "" {
		day, err := time.ParseInLocation(dateLayout, b.NotAfter, loc)
		if err != nil {
			return notBefore, notAfter, fmt.Errorf("invalid not_after %q: %w", b.NotAfter, err)
		}
		notAfter = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if !notBefore.IsZero() && !notAfter.IsZero() && notAfter.Before(notBefore) {
		return notBefore, notAfter, fmt.Errorf("not_after %s is before not_before %s", b.NotAfter, b.NotBefore)
	}

	return notBefore, notAfter, nil
}
