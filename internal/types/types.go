// =============================================================================
// POS Ledger Merger - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - csvparser / xlsxparser (Table)
//   - validation (Batch -> OrderRecord)
//   - merger (OrderRecord -> Ledger)
//   - ledgerwriter, compare, pipeline
//
// =============================================================================

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLUMN NAMES
// =============================================================================

// Default column names of the point-of-sale export.
const (
	ColumnOrderID   = "Order ID"
	ColumnOrderTime = "Order time"
)

// DefaultMonetaryColumns is the known set of monetary columns found in the
// point-of-sale exports. Any subset may be present in a given batch.
var DefaultMonetaryColumns = []string{
	"Gross sales",
	"Tax on gross sales",
	"Tips",
	"Delivery charges",
	"Service charges",
	"DRS charges",
	"Packaging charges",
	"Additional charges",
	"Charges",
	"Revenue",
	"Refunds",
	"Revenue after refunds",
	"Discounts",
}

// =============================================================================
// TABULAR INPUT
// =============================================================================

// Row is one data row of a tabular source.
type Row struct {
	// Number is the 1-based line (or sheet row) the values came from.
	Number int

	// Values maps header -> raw cell text.
	Values map[string]string
}

// Table is a raw tabular source: a header row plus data rows.
// Produced by csvparser and xlsxparser, consumed by validation.
type Table struct {
	// Source is the path or name the table was read from.
	Source string

	// Headers in source order.
	Headers []string

	Rows []Row
}

// =============================================================================
// BATCH
// =============================================================================

// Batch is an ingested table tagged with its provenance and merge priority.
// Batches are never mutated by the merge.
type Batch struct {
	// ID identifies the batch in reports (usually the file name).
	ID string

	// Priority orders batches for conflict resolution. Higher is newer.
	Priority int

	Table *Table

	// NotBefore and NotAfter optionally bound the order times this batch is
	// trusted for. Zero values mean unbounded.
	NotBefore time.Time
	NotAfter  time.Time
}

// =============================================================================
// ORDER RECORD
// =============================================================================

// Origin traces a record back to the batch row it was read from.
type Origin struct {
	BatchID  string
	Priority int
	Row      int
}

// OrderRecord is one normalized order.
type OrderRecord struct {
	OrderID   string
	OrderTime time.Time

	// Amounts holds a value for every recognized monetary column present in
	// the source batch. A column absent from the batch, or a blank cell, has
	// no key here.
	Amounts map[string]decimal.Decimal

	// Dimensions holds every other column, unmodified.
	Dimensions map[string]string

	Origin Origin
}

// Amount returns the value of a monetary column and whether the column was
// present in the record's batch.
func (r OrderRecord) Amount(column string) (decimal.Decimal, bool) {
	v, ok := r.Amounts[column]
	return v, ok
}

// Value returns the textual value of any non-key column, formatting monetary
// values with FormatAmount. The second result is false if the record's batch
// did not carry the column.
func (r OrderRecord) Value(column string) (string, bool) {
	if v, ok := r.Amounts[column]; ok {
		return FormatAmount(v), true
	}
	v, ok := r.Dimensions[column]
	return v, ok
}

// =============================================================================
// LEDGER
// =============================================================================

// TimeLayout is the single unambiguous representation used for order times
// written to the ledger. It keeps the offset and any fraction of a second, so
// a written ledger sorts and re-merges exactly like the records it holds.
const TimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// Ledger is the merged, deduplicated, time-sorted record set.
type Ledger struct {
	// Columns is the output column contract.
	Columns []string

	Records []OrderRecord
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Records)
}

// Span returns the earliest and latest order time. Both are zero for an
// empty ledger.
func (l *Ledger) Span() (time.Time, time.Time) {
	if l.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return l.Records[0].OrderTime, l.Records[len(l.Records)-1].OrderTime
}

// Index returns the records keyed by order id.
func (l *Ledger) Index() map[string]OrderRecord {
	idx := make(map[string]OrderRecord, l.Len())
	if l == nil {
		return idx
	}
	for _, r := range l.Records {
		idx[r.OrderID] = r
	}
	return idx
}

// FormatAmount renders a monetary value with at least two decimal places,
// keeping any extra precision the source carried.
func FormatAmount(d decimal.Decimal) string {
	if d.Exponent() >= -2 {
		return d.StringFixed(2)
	}
	return d.String()
}
