package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(time.Second)
		return t
	}
}

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data", "sales_data.csv")
	fm := NewFileManager(filepath.Join(dir, "backups"), 0)
	fm.Now = stepClock(time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC))

	backup, err := fm.ReplaceFile(target, writeString("v1"))
	require.NoError(t, err)
	assert.Empty(t, backup, "nothing to back up on first write")
	assert.Equal(t, "v1", readFile(t, target))

	backup, err = fm.ReplaceFile(target, writeString("v2"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backups", "sales_data_backup_20240115_143022.csv"), backup)
	assert.Equal(t, "v1", readFile(t, backup))
	assert.Equal(t, "v2", readFile(t, target))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReplaceFileWriteFailureKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sales_data.csv")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0644))

	fm := NewFileManager(filepath.Join(dir, "backups"), 0)
	boom := errors.New("boom")

	backup, err := fm.ReplaceFile(target, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, backup)
	assert.Equal(t, "original", readFile(t, target))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NoDirExists(t, filepath.Join(dir, "backups"))
}

func TestBackupSameSecond(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sales_data.csv")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	fm := NewFileManager(filepath.Join(dir, "backups"), 0)
	fixed := time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC)
	fm.Now = func() time.Time { return fixed }

	first, err := fm.Backup(target)
	require.NoError(t, err)
	second, err := fm.Backup(target)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	backups, err := fm.Backups(target)
	require.NoError(t, err)
	assert.Len(t, backups, 2)
}

func TestPruneBackups(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sales_data.csv")
	fm := NewFileManager(filepath.Join(dir, "backups"), 2)
	fm.Now = stepClock(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))

	for _, v := range []string{"v1", "v2", "v3", "v4", "v5"} {
		_, err := fm.ReplaceFile(target, writeString(v))
		require.NoError(t, err)
	}

	backups, err := fm.Backups(target)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, "v3", readFile(t, backups[0]))
	assert.Equal(t, "v4", readFile(t, backups[1]))
	assert.Equal(t, "v5", readFile(t, target))
}

func TestDiscoverInputFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.XLSX", "notes.txt", ".hidden.csv", "c.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0755))

	files, err := DiscoverInputFiles(dir, ".csv", ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.XLSX"), filepath.Join(dir, "b.csv")}, files)

	_, err = DiscoverInputFiles(filepath.Join(dir, "missing"), ".csv")
	require.Error(t, err)
}

func TestWriteJSONReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	at := time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC)

	path, err := WriteJSONReport(dir, "run-1", at, map[string]int{"records": 4})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "merge_report_20240115_143022_run-1.json"), path)

	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(readFile(t, path)), &got))
	assert.Equal(t, 4, got["records"])
}

func TestSummary(t *testing.T) {
	start := time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC)
	summary := MergeSummary{
		RunID:        "run-1",
		StartTime:    start,
		EndTime:      start.Add(1500 * time.Millisecond),
		Policy:       "last-batch-wins",
		DateOrder:    "day-first",
		LedgerPath:   "data/sales_data.csv",
		DryRun:       true,
		TotalRecords: 4,
		Earliest:     time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		Latest:       time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC),
		Batches: []BatchLine{
			{ID: "A", Priority: 1, RowsRead: 3, Accepted: 3, Contributed: 2},
			{ID: "menu", Priority: 2, Error: "missing required column(s)"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, summary))
	text := buf.String()

	assert.Contains(t, text, "data/sales_data.csv (dry run, not written)")
	assert.Contains(t, text, "Duration:       1.5s")
	assert.Contains(t, text, "2024-01-01 10:00:00 .. 2024-01-04 10:00:00")
	assert.Contains(t, text, "rows 3, accepted 3, rejected 0, in ledger 2")
	assert.Contains(t, text, "EXCLUDED: missing required column(s)")

	path, err := WriteSummaryLog(summary, t.TempDir())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "merge_summary_20240115_143022_run-1.txt"))
	assert.Equal(t, text, readFile(t, path))
}

func TestWriteSummaryLogSameSecond(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC)

	first, err := WriteSummaryLog(MergeSummary{RunID: "run-1", StartTime: start, EndTime: start}, dir)
	require.NoError(t, err)
	second, err := WriteSummaryLog(MergeSummary{RunID: "run-2", StartTime: start, EndTime: start}, dir)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Contains(t, readFile(t, first), "run-1")
	assert.Contains(t, readFile(t, second), "run-2")
}
