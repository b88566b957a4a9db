package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/csvparser"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
	"github.com/ginjaninja78/pos-ledger-merger/internal/xlsxparser"
)

// LoadResult is the outcome of reading one input file.
type LoadResult struct {
	FilePath string
	Batch    types.Batch

	// Error is set when the file could not be read. The batch is then left
	// out of the merge and reported.
	Error error

	LoadTime time.Duration
}

// InputExtensions are the file types ReadTable understands.
var InputExtensions = []string{".csv", ".txt", ".tsv", ".xlsx", ".xlsm"}

// ReadTable reads a CSV or XLSX file, chosen by extension.
func ReadTable(path, sheet string, settings config.CSVSettings) (*types.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return xlsxparser.Parse(path, sheet)
	case ".csv", ".txt", ".tsv":
		return csvparser.Parse(path, settings)
	}
	return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// LoadBatch reads one configured export.
func LoadBatch(bc config.BatchConfig, settings config.CSVSettings, loc *time.Location) LoadResult {
	start := time.Now()
	result := LoadResult{FilePath: bc.Path}

	id := bc.ID
	if id == "" {
		id = filepath.Base(bc.Path)
	}

	notBefore, notAfter, err := bc.Window(loc)
	if err != nil {
		result.Error = err
		return result
	}

	table, err := ReadTable(bc.Path, bc.Sheet, settings)
	if err != nil {
		result.Error = fmt.Errorf("failed to read %s: %w", bc.Path, err)
		return result
	}

	result.Batch = types.Batch{
		ID:        id,
		Priority:  bc.Priority,
		Table:     table,
		NotBefore: notBefore,
		NotAfter:  notAfter,
	}
	result.LoadTime = time.Since(start)
	return result
}

// LoadBatches reads all exports concurrently, at most concurrency at a
// time. Results keep the order of configs.
func LoadBatches(configs []config.BatchConfig, settings config.CSVSettings, loc *time.Location, concurrency int) []LoadResult {
	type indexed struct {
		i   int
		res LoadResult
	}

	var wg sync.WaitGroup
	results := make(chan indexed, len(configs))
	sem := make(chan struct{}, max(concurrency, 1))

	for i, bc := range configs {
		i, bc := i, bc
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- indexed{i: i, res: LoadBatch(bc, settings, loc)}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]LoadResult, len(configs))
	for r := range results {
		out[r.i] = r.res
	}
	return out
}
