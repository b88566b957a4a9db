// =============================================================================
// POS Ledger Merger - XLSX Export Parser
// =============================================================================
//
// Some point-of-sale exports are delivered as Excel workbooks rather than CSV.
// This module reads one worksheet of such a workbook into the same
// types.Table the CSV parser produces, so the rest of the pipeline does not
// care which format a batch came in.
//
// SHEET SELECTION:
//   - An explicit sheet name, if given
//   - Otherwise the first sheet whose name does not start with "_"
//     (underscore sheets hold notes or pivot helpers)
//
// CELL VALUES:
//   - Text and plain numbers are read as displayed (number formats applied)
//   - Numeric cells with a date or time number format are read from their
//     serial value and written as year-first wall-clock text, which every
//     date order accepts. Displayed dates follow the workbook's format
//     (often month-first) and are never read.
//   - Dates typed as text keep their text and the configured date order
//     applies, as for CSV.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// Parse reads a worksheet from an XLSX file.
//
// PARAMETERS:
//   - filePath: The path to the workbook.
//   - sheet: The worksheet to read, or "" for the first data sheet.
//
// RETURNS:
//   - The parsed table. Row numbers are worksheet row numbers.
//   - An error if the workbook or sheet cannot be read, or has no header row.
func Parse(filePath, sheet string) (*types.Table, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetName, err := selectSheet(f, sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}
	raw, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}
	dates := newDateCells(f, sheetName)

	headerIndex := -1
	for i, row := range rows {
		if !isRowEmpty(row) {
			headerIndex = i
			break
		}
	}
	if headerIndex < 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheetName)
	}

	headers := cleanHeaders(rows[headerIndex])
	table := &types.Table{
		Source:  filePath,
		Headers: headers,
		Rows:    make([]types.Row, 0, len(rows)-headerIndex-1),
	}

	for i := headerIndex + 1; i < len(rows); i++ {
		row := rows[i]
		if isRowEmpty(row) {
			continue
		}

		values := make(map[string]string, len(headers))
		for col, header := range headers {
			value := ""
			if col < len(row) {
				value = strings.TrimSpace(row[col])
			}
			if value != "" && i < len(raw) && col < len(raw[i]) {
				if text, ok := dates.text(col+1, i+1, raw[i][col]); ok {
					value = text
				}
			}
			values[header] = value
		}

		table.Rows = append(table.Rows, types.Row{Number: i + 1, Values: values})
	}

	return table, nil
}

// =============================================================================
// DATE CELLS
// =============================================================================

// cellTimeLayout renders a date cell as wall-clock text. Excel dates carry no
// zone; the configured timezone applies during validation.
const cellTimeLayout = "2006-01-02 15:04:05.999999999"

// dateCells recognizes date-formatted cells of one sheet. Style lookups are
// cached by style id.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

// text returns the wall-clock text of the cell at (col, row), both 1-based,
// when it holds a serial date under a date number format.
func (d *dateCells) text(col, row int, raw string) (string, bool) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", false
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", false
	}
	styleID, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil {
		return "", false
	}

	isDate, cached := d.styles[styleID]
	if !cached {
		if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
			isDate = isDateStyle(style)
		}
		d.styles[styleID] = isDate
	}
	if !isDate {
		return "", false
	}

	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return "", false
	}
	return t.Round(time.Millisecond).Format(cellTimeLayout), true
}

// isDateStyle reports whether a cell style displays a date or a time of day.
func isDateStyle(style *excelize.Style) bool {
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	switch n := style.NumFmt; {
	case n >= 14 && n <= 22, n >= 27 && n <= 36, n >= 45 && n <= 47, n >= 50 && n <= 58:
		return true
	}
	return false
}

// isDateFormat looks for year, day or hour tokens outside quoted text,
// escaped characters and bracketed sections.
func isDateFormat(format string) bool {
	var quoted, bracketed, escaped bool
	for _, r := range strings.ToLower(format) {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracketed:
			bracketed = r != ']'
		case r == '\\':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracketed = true
		case r == 'y', r == 'd', r == 'h':
			return true
		}
	}
	return false
}

func selectSheet(f *excelize.File, sheet string) (string, error) {
	if sheet != "" {
		idx, err := f.GetSheetIndex(sheet)
		if err != nil || idx < 0 {
			return "", fmt.Errorf("sheet %q not found", sheet)
		}
		return sheet, nil
	}

	for _, name := range f.GetSheetList() {
		if !strings.HasPrefix(name, "_") {
			return name, nil
		}
	}

	return "", fmt.Errorf("workbook has no data sheet")
}

func cleanHeaders(row []string) []string {
	headers := make([]string, len(row))
	seen := make(map[string]int, len(row))

	for i, h := range row {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		headers[i] = h
	}

	return headers
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
