// =============================================================================
// POS Ledger Merger - Batch Ingestion & Validation
// =============================================================================
//
// This module turns a raw batch (a types.Table tagged with an id and a
// priority) into normalized order records.
//
// VALIDATION STRATEGY:
//   1. Batch-level: the batch must expose the key column, the time column and
//      at least one recognized monetary column. Otherwise Ingest returns a
//      *SchemaError and the batch contributes nothing.
//   2. Row-level: a row without an order id, with an unparseable order time,
//      or outside the batch's trust window is rejected and recorded.
//   3. Field-level: an unparseable amount is zeroed and recorded; the row is
//      kept. A blank amount is left out of the record (not applicable).
//
// Column names are matched case-insensitively with whitespace collapsed,
// and written back under their configured (canonical) names.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures ingestion. Everything is passed in; nothing is read
// from files or the environment.
type Options struct {
	// KeyColumn and TimeColumn default to "Order ID" and "Order time".
	KeyColumn  string
	TimeColumn string

	// MonetaryColumns defaults to types.DefaultMonetaryColumns.
	MonetaryColumns []string

	// Times parses the time column. Required.
	Times *TimeParser
}

func (o Options) withDefaults() Options {
	if o.KeyColumn == "" {
		o.KeyColumn = types.ColumnOrderID
	}
	if o.TimeColumn == "" {
		o.TimeColumn = types.ColumnOrderTime
	}
	if len(o.MonetaryColumns) == 0 {
		o.MonetaryColumns = types.DefaultMonetaryColumns
	}
	return o
}

// =============================================================================
// RESULT
// =============================================================================

// Reason classifies a rejected row.
type Reason string

const (
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	ReasonMissingKey       Reason = "missing_key"
	ReasonOutOfWindow      Reason = "out_of_window"
)

// Rejection records a row excluded from the ledger.
type Rejection struct {
	BatchID string
	Row     int
	OrderID string
	Reason  Reason
	Value   string

	// Err is the underlying error, a *TimestampParseError for
	// ReasonInvalidTimestamp.
	Err error
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return fmt.Sprintf("batch %q row %d (order %q): %s", r.BatchID, r.Row, r.OrderID, r.Reason)
}

// Result is the outcome of ingesting one batch.
type Result struct {
	BatchID  string
	Priority int
	Source   string

	// Columns is the batch's column contract under canonical names, in
	// source order.
	Columns []string

	// MonetaryColumns lists the recognized monetary columns present.
	MonetaryColumns []string

	RowsRead      int
	Records       []types.OrderRecord
	Rejections    []*Rejection
	AmountDefects []*AmountParseError
}

// =============================================================================
// SCHEMA CHECK
// =============================================================================

// columnMap resolves canonical column names to the batch's actual headers.
type columnMap struct {
	key, time string
	monetary  map[string]string // canonical -> header
	canonical map[string]string // header -> canonical (key, time, monetary)
}

// CheckSchema verifies that headers satisfy the batch contract.
func CheckSchema(batchID string, headers []string, opts Options) error {
	_, err := resolveColumns(batchID, headers, 0, opts.withDefaults())
	return err
}

func resolveColumns(batchID string, headers []string, rows int, opts Options) (*columnMap, error) {
	byNorm := make(map[string]string, len(headers))
	for _, h := range headers {
		if _, dup := byNorm[normalizeName(h)]; !dup {
			byNorm[normalizeName(h)] = h
		}
	}

	cm := &columnMap{
		monetary:  make(map[string]string),
		canonical: make(map[string]string),
	}

	var missing []string
	if h, ok := byNorm[normalizeName(opts.KeyColumn)]; ok {
		cm.key = h
		cm.canonical[h] = opts.KeyColumn
	} else {
		missing = append(missing, opts.KeyColumn)
	}
	if h, ok := byNorm[normalizeName(opts.TimeColumn)]; ok {
		cm.time = h
		cm.canonical[h] = opts.TimeColumn
	} else {
		missing = append(missing, opts.TimeColumn)
	}

	for _, col := range opts.MonetaryColumns {
		if h, ok := byNorm[normalizeName(col)]; ok {
			if _, taken := cm.canonical[h]; taken {
				continue
			}
			cm.monetary[col] = h
			cm.canonical[h] = col
		}
	}

	if len(missing) > 0 || len(cm.monetary) == 0 {
		return nil, &SchemaError{
			BatchID:    batchID,
			Missing:    missing,
			NoMonetary: len(cm.monetary) == 0,
			Columns:    append([]string(nil), headers...),
			Rows:       rows,
		}
	}

	return cm, nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// =============================================================================
// INGEST
// =============================================================================

// Ingest validates and normalizes one batch.
//
// PARAMETERS:
//   - batch: The batch to ingest. It is not modified.
//   - opts: Column names and the time parser.
//
// RETURNS:
//   - The ingestion result. On a schema failure the result still carries the
//     batch identity and row count.
//   - A *SchemaError if the batch lacks required columns, or an error if the
//     options are unusable.
func Ingest(batch types.Batch, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.Times == nil {
		return nil, fmt.Errorf("ingest %q: no time parser configured", batch.ID)
	}

	table := batch.Table
	if table == nil {
		table = &types.Table{Source: batch.ID}
	}

	result := &Result{
		BatchID:  batch.ID,
		Priority: batch.Priority,
		Source:   table.Source,
		RowsRead: len(table.Rows),
	}

	cm, err := resolveColumns(batch.ID, table.Headers, len(table.Rows), opts)
	if err != nil {
		return result, err
	}

	for _, h := range table.Headers {
		if c, ok := cm.canonical[h]; ok {
			result.Columns = append(result.Columns, c)
		} else {
			result.Columns = append(result.Columns, h)
		}
	}
	for _, col := range opts.MonetaryColumns {
		if _, ok := cm.monetary[col]; ok {
			result.MonetaryColumns = append(result.MonetaryColumns, col)
		}
	}

	result.Records = make([]types.OrderRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		record, ok := ingestRow(batch, row, cm, opts, result)
		if ok {
			result.Records = append(result.Records, record)
		}
	}

	return result, nil
}

func ingestRow(batch types.Batch, row types.Row, cm *columnMap, opts Options, result *Result) (types.OrderRecord, bool) {
	orderID := strings.TrimSpace(row.Values[cm.key])
	if orderID == "" {
		result.Rejections = append(result.Rejections, &Rejection{
			BatchID: batch.ID,
			Row:     row.Number,
			Reason:  ReasonMissingKey,
		})
		return types.OrderRecord{}, false
	}

	rawTime := row.Values[cm.time]
	orderTime, err := opts.Times.Parse(rawTime)
	if err != nil {
		tsErr := &TimestampParseError{
			BatchID:   batch.ID,
			Row:       row.Number,
			OrderID:   orderID,
			Value:     rawTime,
			DateOrder: opts.Times.Order(),
		}
		result.Rejections = append(result.Rejections, &Rejection{
			BatchID: batch.ID,
			Row:     row.Number,
			OrderID: orderID,
			Reason:  ReasonInvalidTimestamp,
			Value:   rawTime,
			Err:     tsErr,
		})
		return types.OrderRecord{}, false
	}

	if outsideWindow(orderTime, batch.NotBefore, batch.NotAfter) {
		result.Rejections = append(result.Rejections, &Rejection{
			BatchID: batch.ID,
			Row:     row.Number,
			OrderID: orderID,
			Reason:  ReasonOutOfWindow,
			Value:   rawTime,
		})
		return types.OrderRecord{}, false
	}

	record := types.OrderRecord{
		OrderID:    orderID,
		OrderTime:  orderTime,
		Amounts:    make(map[string]decimal.Decimal, len(cm.monetary)),
		Dimensions: make(map[string]string),
		Origin: types.Origin{
			BatchID:  batch.ID,
			Priority: batch.Priority,
			Row:      row.Number,
		},
	}

	for _, col := range result.MonetaryColumns {
		raw := row.Values[cm.monetary[col]]
		if strings.TrimSpace(raw) == "" {
			// Blank is not applicable, same as an absent column.
			continue
		}
		amount, err := ParseAmount(raw)
		if err != nil {
			result.AmountDefects = append(result.AmountDefects, &AmountParseError{
				BatchID: batch.ID,
				Row:     row.Number,
				OrderID: orderID,
				Column:  col,
				Value:   raw,
			})
		}
		record.Amounts[col] = amount
	}

	for header, value := range row.Values {
		if _, known := cm.canonical[header]; !known {
			record.Dimensions[header] = value
		}
	}

	return record, true
}

func outsideWindow(t, notBefore, notAfter time.Time) bool {
	if !notBefore.IsZero() && t.Before(notBefore) {
		return true
	}
	return !notAfter.IsZero() && t.After(notAfter)
}
