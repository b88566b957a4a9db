// =============================================================================
// POS Ledger Merger - Ledger Writer
// =============================================================================
//
// This module serializes a types.Ledger to the canonical ledger file. Two
// formats are supported:
//   - CSV  (default): header row + one row per order, UTF-8, comma separated
//   - XLSX: one sheet named "Ledger" with the same layout
//
// OUTPUT CONTRACT:
//   - Columns in ledger.Columns order
//   - Order time written as RFC 3339 with offset and fraction
//     (types.TimeLayout), which every date order accepts on re-read
//   - Amounts with at least two decimals; not-applicable amounts are blank
//
// The writer only writes to an io.Writer. Choosing the destination,
// backups and the atomic replace live in pkg/utils.
//
// =============================================================================

package ledgerwriter

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// SheetName is the worksheet used for XLSX ledgers.
const SheetName = "Ledger"

// Options names the key and time columns.
type Options struct {
	KeyColumn  string
	TimeColumn string
}

// DefaultOptions returns the export's default column names.
func DefaultOptions() Options {
	return Options{KeyColumn: types.ColumnOrderID, TimeColumn: types.ColumnOrderTime}
}

// =============================================================================
// ROW RENDERING
// =============================================================================

// Rows renders the ledger as a header row followed by data rows.
func Rows(ledger *types.Ledger, opts Options) [][]string {
	rows := make([][]string, 0, ledger.Len()+1)
	rows = append(rows, append([]string(nil), ledger.Columns...))

	for _, rec := range ledger.Records {
		row := make([]string, len(ledger.Columns))
		for i, col := range ledger.Columns {
			switch col {
			case opts.KeyColumn:
				row[i] = rec.OrderID
			case opts.TimeColumn:
				row[i] = rec.OrderTime.Format(types.TimeLayout)
			default:
				row[i], _ = rec.Value(col)
			}
		}
		rows = append(rows, row)
	}

	return rows
}

// ToTable renders the ledger as a types.Table, the same shape the parsers
// produce, so a ledger can be fed back into a merge without a file.
func ToTable(ledger *types.Ledger, source string, opts Options) *types.Table {
	rows := Rows(ledger, opts)
	table := &types.Table{
		Source:  source,
		Headers: rows[0],
		Rows:    make([]types.Row, 0, len(rows)-1),
	}

	for i, row := range rows[1:] {
		values := make(map[string]string, len(row))
		for c, header := range table.Headers {
			values[header] = row[c]
		}
		table.Rows = append(table.Rows, types.Row{Number: i + 2, Values: values})
	}

	return table
}

// =============================================================================
// WRITERS
// =============================================================================

// Write serializes the ledger in the named format ("csv" or "xlsx").
func Write(w io.Writer, ledger *types.Ledger, format string, opts Options) error {
	switch format {
	case "", "csv":
		return WriteCSV(w, ledger, opts)
	case "xlsx":
		return WriteXLSX(w, ledger, opts)
	}
	return fmt.Errorf("unsupported ledger format %q", format)
}

// WriteCSV writes the ledger as CSV.
func WriteCSV(w io.Writer, ledger *types.Ledger, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(ledger, opts)); err != nil {
		return fmt.Errorf("failed to write ledger CSV: %w", err)
	}
	return nil
}

// WriteXLSX writes the ledger as a single-sheet workbook. All cells are
// written as text so amounts keep their exact decimal form.
func WriteXLSX(w io.Writer, ledger *types.Ledger, opts Options) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	for i, row := range Rows(ledger, opts) {
		cells := make([]interface{}, len(row))
		for c, v := range row {
			cells[c] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
