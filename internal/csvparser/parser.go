// =============================================================================
// POS Ledger Merger - CSV Parser Module
// =============================================================================
//
// This module reads point-of-sale CSV exports (and CSV ledgers) into a
// types.Table. It handles:
//   - Different delimiters (comma, semicolon, pipe, tab)
//   - Multi-line headers
//   - Custom data start rows
//   - Different encodings (UTF-8 with or without BOM, UTF-16, Windows-1252,
//     ISO-8859-1 and any other IANA-registered name)
//
// Values are returned as raw text. Interpreting them (timestamps, amounts)
// is the validation module's job.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/pos-ledger-merger/internal/config"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns it as a table.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The CSV parsing settings.
//
// RETURNS:
//   - The parsed table. Source is set to filePath.
//   - An error if the file cannot be opened, decoded or parsed.
func Parse(filePath string, settings config.CSVSettings) (*types.Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file, filePath, settings)
}

// ParseReader parses CSV content from r.
//
// PARSING PROCESS:
//   1. Decode the byte stream to UTF-8 (dropping any byte order mark)
//   2. Configure the CSV reader with the delimiter
//   3. Read and merge header rows
//   4. Read data rows starting from the configured data start row
//   5. Convert each row to a map of header -> value
func ParseReader(r io.Reader, source string, settings config.CSVSettings) (*types.Table, error) {
	decoded, err := decode(bufio.NewReader(r), settings.Encoding)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(decoded)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(allRows) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	headers, err := extractHeaders(allRows, settings.HeaderRows)
	if err != nil {
		return nil, fmt.Errorf("failed to extract headers: %w", err)
	}

	return &types.Table{
		Source:  source,
		Headers: headers,
		Rows:    extractDataRows(allRows, headers, settings),
	}, nil
}

// =============================================================================
// ENCODING
// =============================================================================

// decode wraps r with a decoder for the named encoding. UTF-8 input with a
// byte order mark is handled for every encoding.
func decode(r io.Reader, name string) (io.Reader, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}

	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.UTF8, nil
	case "UTF-16", "UTF16", "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

// =============================================================================
// READER CONFIGURATION
// =============================================================================

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = rune(settings.Delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Exports are not always rectangular.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// =============================================================================
// HEADERS AND ROWS
// =============================================================================

// extractHeaders extracts and merges headers from the first headerRows rows.
//
// MULTI-LINE HEADER HANDLING:
//   Row 1: "Order", "", "Gross"
//   Row 2: "ID", "Order time", "sales"
//   Result: "Order ID", "Order time", "Gross sales"
func extractHeaders(allRows [][]string, headerRows int) ([]string, error) {
	if headerRows <= 0 {
		return nil, fmt.Errorf("header_rows must be at least 1")
	}

	if len(allRows) < headerRows {
		return nil, fmt.Errorf("file has fewer rows than header_rows setting")
	}

	if headerRows == 1 {
		return cleanHeaders(allRows[0]), nil
	}

	maxCols := 0
	for i := 0; i < headerRows; i++ {
		maxCols = max(maxCols, len(allRows[i]))
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for row := 0; row < headerRows; row++ {
			if col < len(allRows[row]) {
				if value := strings.TrimSpace(allRows[row][col]); value != "" {
					parts = append(parts, value)
				}
			}
		}
		headers[col] = strings.Join(parts, " ")
	}

	return cleanHeaders(headers), nil
}

// cleanHeaders trims headers, names empty ones Column_N and disambiguates
// repeated names so no column shadows another in the row maps.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(header)
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}

		seen[header]++
		if n := seen[header]; n > 1 {
			header = fmt.Sprintf("%s (%d)", header, n)
		}

		cleaned[i] = header
	}

	return cleaned
}

// extractDataRows converts the data rows to maps. Empty rows are skipped;
// short rows are padded with empty values.
func extractDataRows(allRows [][]string, headers []string, settings config.CSVSettings) []types.Row {
	startIndex := settings.DataStartRow - 1
	if startIndex < settings.HeaderRows {
		startIndex = settings.HeaderRows
	}

	if startIndex >= len(allRows) {
		return []types.Row{}
	}

	dataRows := make([]types.Row, 0, len(allRows)-startIndex)

	for rowIndex := startIndex; rowIndex < len(allRows); rowIndex++ {
		row := allRows[rowIndex]

		if isRowEmpty(row) {
			continue
		}

		values := make(map[string]string, len(headers))
		for colIndex, header := range headers {
			if colIndex < len(row) {
				values[header] = strings.TrimSpace(row[colIndex])
			} else {
				values[header] = ""
			}
		}

		dataRows = append(dataRows, types.Row{Number: rowIndex + 1, Values: values})
	}

	return dataRows
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
