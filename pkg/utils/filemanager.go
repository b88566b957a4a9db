// =============================================================================
// POS Ledger Merger - File Manager Utility
// =============================================================================
//
// This module provides the file handling around the pure merge, including:
//   - Input discovery (for validating a directory of exports)
//   - Atomic ledger replacement (temp file in the same directory + rename)
//   - Timestamped backup of the previous ledger before every replacement
//   - Backup retention
//   - Report and summary files
//
// REPLACEMENT STRATEGY:
//   1. Write the new ledger to ".<name>.<uuid>.tmp" next to the target
//   2. fsync and close it
//   3. Copy the current ledger to <backup_dir>/<stem>_backup_YYYYMMDD_HHMMSS<ext>
//   4. Rename the temp file over the target
//   A failure before step 4 leaves the current ledger untouched.
//
// =============================================================================

package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is used in backup and report file names.
const TimestampLayout = "20060102_150405"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles ledger replacement and backups.
type FileManager struct {
	// BackupDir receives copies of replaced ledgers.
	BackupDir string

	// Retention keeps only the N newest backups of a ledger. 0 keeps all.
	Retention int

	// Now returns the current time. Tests replace it.
	Now func() time.Time
}

// NewFileManager creates a FileManager.
func NewFileManager(backupDir string, retention int) *FileManager {
	return &FileManager{
		BackupDir: backupDir,
		Retention: retention,
		Now:       time.Now,
	}
}

// =============================================================================
// INPUT DISCOVERY
// =============================================================================

// DiscoverInputFiles lists files in dir (not recursive) with one of the
// given extensions, sorted by name. Hidden files are skipped.
func DiscoverInputFiles(dir string, extensions ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		for _, want := range extensions {
			if ext == strings.ToLower(want) {
				files = append(files, filepath.Join(dir, name))
				break
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// =============================================================================
// ATOMIC REPLACEMENT
// =============================================================================

// ReplaceFile atomically replaces target with whatever write produces,
// backing up the current target first.
//
// PARAMETERS:
//   - target: The file to replace. It need not exist yet.
//   - write: Writes the new content.
//
// RETURNS:
//   - The backup path, or "" when there was nothing to back up.
//   - An error if any step fails. The target is unchanged in that case.
func (fm *FileManager) ReplaceFile(target string, write func(io.Writer) error) (string, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString()))
	if err := writeTemp(tmpPath, write); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	backupPath := ""
	if FileExists(target) {
		var err error
		backupPath, err = fm.Backup(target)
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return backupPath, fmt.Errorf("failed to replace %s: %w", target, err)
	}

	if fm.Retention > 0 {
		if _, err := fm.PruneBackups(target); err != nil {
			return backupPath, err
		}
	}

	return backupPath, nil
}

func writeTemp(path string, write func(io.Writer) error) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	buffered := bufio.NewWriter(file)
	if err := write(buffered); err != nil {
		file.Close()
		return err
	}
	if err := buffered.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	return file.Close()
}

// =============================================================================
// BACKUPS
// =============================================================================

// Backup copies target into the backup directory and returns the copy's
// path, e.g. backups/sales_data_backup_20240115_143022.csv.
func (fm *FileManager) Backup(target string) (string, error) {
	if err := os.MkdirAll(fm.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)
	name := fmt.Sprintf("%s_backup_%s%s", stem, fm.now().Format(TimestampLayout), ext)
	backupPath := filepath.Join(fm.BackupDir, name)

	// Two runs within the same second must not overwrite each other.
	if FileExists(backupPath) {
		name = fmt.Sprintf("%s_backup_%s_%s%s", stem, fm.now().Format(TimestampLayout), uuid.NewString()[:8], ext)
		backupPath = filepath.Join(fm.BackupDir, name)
	}

	if err := copyFile(target, backupPath); err != nil {
		return "", fmt.Errorf("failed to back up %s: %w", target, err)
	}

	return backupPath, nil
}

// Backups lists the backups of target, oldest first.
func (fm *FileManager) Backups(target string) ([]string, error) {
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(filepath.Base(target), ext)

	matches, err := filepath.Glob(filepath.Join(fm.BackupDir, stem+"_backup_*"+ext))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	// The timestamp in the name sorts chronologically.
	sort.Strings(matches)
	return matches, nil
}

// PruneBackups removes all but the Retention newest backups of target.
//
// RETURNS:
//   - The number of files removed.
//   - An error if listing or removing fails.
func (fm *FileManager) PruneBackups(target string) (int, error) {
	if fm.Retention <= 0 {
		return 0, nil
	}

	backups, err := fm.Backups(target)
	if err != nil {
		return 0, err
	}

	removed := 0
	for len(backups)-removed > fm.Retention {
		if err := os.Remove(backups[removed]); err != nil {
			return removed, fmt.Errorf("failed to remove old backup: %w", err)
		}
		removed++
	}

	return removed, nil
}

func (fm *FileManager) now() time.Time {
	if fm.Now == nil {
		return time.Now()
	}
	return fm.Now()
}

// =============================================================================
// REPORT FILES
// =============================================================================

// WriteJSONReport writes v as indented JSON to
// <dir>/merge_report_<timestamp>_<runID>.json.
func WriteJSONReport(dir, runID string, at time.Time, v any) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("merge_report_%s_%s.json", at.Format(TimestampLayout), runID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	return path, nil
}

// MergeSummary is the plain-text view of one merge run.
type MergeSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Policy    string
	DateOrder string

	LedgerPath string
	BackupPath string
	DryRun     bool

	TotalRecords        int
	Earliest            time.Time
	Latest              time.Time
	RowsRead            int
	RejectedRecords     int
	AmountParseFailures int
	DuplicatesResolved  int

	Batches []BatchLine
}

// BatchLine is one batch in a MergeSummary.
type BatchLine struct {
	ID          string
	Priority    int
	RowsRead    int
	Accepted    int
	Rejected    int
	Contributed int
	Error       string
}

// WriteSummaryLog writes a merge summary to
// <dir>/merge_summary_<timestamp>_<run id>.txt.
func WriteSummaryLog(summary MergeSummary, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := "merge_summary_" + summary.StartTime.Format(TimestampLayout)
	if summary.RunID != "" {
		name += "_" + summary.RunID
	}
	path := filepath.Join(dir, name+".txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := RenderSummary(writer, summary); err != nil {
		return "", err
	}
	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return path, nil
}

// RenderSummary writes the summary text to w.
func RenderSummary(w io.Writer, summary MergeSummary) error {
	const rule = "================================================================================\n"
	const thin = "--------------------------------------------------------------------------------\n"

	ledgerLine := summary.LedgerPath
	if summary.DryRun {
		ledgerLine += " (dry run, not written)"
	}
	backupLine := summary.BackupPath
	if backupLine == "" {
		backupLine = "-"
	}

	var b strings.Builder
	b.WriteString("POS Ledger Merger - Merge Summary\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  Duration:       %s\n"+
		"  Policy:         %s\n"+
		"  Date Order:     %s\n"+
		"  Ledger:         %s\n"+
		"  Backup:         %s\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.Policy,
		summary.DateOrder,
		ledgerLine,
		backupLine)

	fmt.Fprintf(&b, "Ledger:\n"+
		"  Records:             %d\n"+
		"  Date Span:           %s .. %s\n"+
		"  Rows Read:           %d\n"+
		"  Rejected Records:    %d\n"+
		"  Amount Defects:      %d\n"+
		"  Duplicates Resolved: %d\n\n",
		summary.TotalRecords,
		formatDay(summary.Earliest),
		formatDay(summary.Latest),
		summary.RowsRead,
		summary.RejectedRecords,
		summary.AmountParseFailures,
		summary.DuplicatesResolved)

	if len(summary.Batches) > 0 {
		b.WriteString("Batches (priority order):\n")
		b.WriteString(thin)
		for _, bl := range summary.Batches {
			fmt.Fprintf(&b, "  [%d] %s\n", bl.Priority, bl.ID)
			if bl.Error != "" {
				fmt.Fprintf(&b, "      EXCLUDED: %s\n\n", bl.Error)
				continue
			}
			fmt.Fprintf(&b, "      rows %d, accepted %d, rejected %d, in ledger %d\n\n",
				bl.RowsRead, bl.Accepted, bl.Rejected, bl.Contributed)
		}
	}

	b.WriteString(rule + "End of Summary\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst and syncs dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
