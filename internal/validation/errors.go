package validation

import (
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================
//
// Errors are collected, not thrown. Only SchemaError stops anything, and it
// only stops the batch it belongs to. Row level errors travel in the
// ingestion result so the merge report can show every one of them.

// SchemaError is returned when a batch lacks a required column. The batch
// is excluded from the merge in full.
type SchemaError struct {
	// BatchID identifies the batch.
	BatchID string

	// Missing lists the required columns not found.
	Missing []string

	// NoMonetary is set when none of the recognized monetary columns exist.
	NoMonetary bool

	// Columns lists what the batch does expose.
	Columns []string

	// Rows is the number of data rows the batch held.
	Rows int
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var problems []string
	if len(e.Missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing required column(s) %s", quoteList(e.Missing)))
	}
	if e.NoMonetary {
		problems = append(problems, "no recognized monetary column")
	}
	return fmt.Sprintf("batch %q rejected (%d rows): %s; columns found: %s",
		e.BatchID, e.Rows, strings.Join(problems, "; "), quoteList(e.Columns))
}

// TimestampParseError reports an order time that does not match any layout
// of the configured date order. The record is excluded.
type TimestampParseError struct {
	BatchID   string
	Row       int
	OrderID   string
	Value     string
	DateOrder DateOrder
}

// Error implements the error interface.
func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("batch %q row %d (order %q): cannot parse order time %q as %s",
		e.BatchID, e.Row, e.OrderID, e.Value, e.DateOrder)
}

// AmountParseError reports a monetary value that is not a number after
// normalization. The field is zeroed and the record kept.
type AmountParseError struct {
	BatchID string
	Row     int
	OrderID string
	Column  string
	Value   string
}

// Error implements the error interface.
func (e *AmountParseError) Error() string {
	return fmt.Sprintf("batch %q row %d (order %q): %s value %q is not a number, treated as 0",
		e.BatchID, e.Row, e.OrderID, e.Column, e.Value)
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
