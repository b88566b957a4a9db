package merger

import (
	"fmt"
	"time"

	"github.com/ginjaninja78/pos-ledger-merger/internal/validation"
)

// Report is the audit output of one merge. It is derived from the inputs
// alone, so identical inputs give identical reports.
type Report struct {
	Policy    string `json:"policy"`
	DateOrder string `json:"date_order"`

	// Batches in priority order.
	Batches []BatchSummary `json:"batches"`

	Rejections    []RejectedRecord      `json:"rejections,omitempty"`
	AmountDefects []AmountDefect        `json:"amount_defects,omitempty"`
	Duplicates    []DuplicateResolution `json:"duplicates,omitempty"`
	Overlaps      []Overlap             `json:"overlaps,omitempty"`

	Integrity Integrity `json:"integrity"`

	// SchemaErrors holds the typed errors of excluded batches.
	SchemaErrors []*validation.SchemaError `json:"-"`
}

// BatchSummary describes what happened to one batch.
type BatchSummary struct {
	ID       string   `json:"id"`
	Source   string   `json:"source,omitempty"`
	Priority int      `json:"priority"`
	Columns  []string `json:"columns,omitempty"`

	RowsRead      int `json:"rows_read"`
	Accepted      int `json:"accepted"`
	Rejected      int `json:"rejected"`
	AmountDefects int `json:"amount_defects"`

	// Contributed counts the ledger records this batch supplied.
	Contributed int `json:"contributed"`

	Excluded bool   `json:"excluded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RejectedRecord is a row that did not reach the ledger.
type RejectedRecord struct {
	BatchID string `json:"batch_id"`
	Row     int    `json:"row"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason"`
	Value   string `json:"value,omitempty"`
	Detail  string `json:"detail"`
}

// AmountDefect is a monetary value that was zeroed.
type AmountDefect struct {
	BatchID string `json:"batch_id"`
	Row     int    `json:"row"`
	OrderID string `json:"order_id"`
	Column  string `json:"column"`
	Value   string `json:"value"`
}

// DuplicateResolution records one order id found more than once.
type DuplicateResolution struct {
	OrderID string `json:"order_id"`

	// Contributors lists the batch of every contender in priority order. A
	// batch appears twice if it repeated the order itself.
	Contributors []string `json:"contributors"`

	Winner    string `json:"winner"`
	WinnerRow int    `json:"winner_row"`

	// Conflicting is set when the contenders disagree on any field.
	Conflicting bool `json:"conflicting"`
}

// Overlap counts order ids shared by two batches.
type Overlap struct {
	BatchA string `json:"batch_a"`
	BatchB string `json:"batch_b"`
	Shared int    `json:"shared"`
}

// Integrity holds summary statistics of the produced ledger.
type Integrity struct {
	TotalRecords   int       `json:"total_records"`
	UniqueOrderIDs int       `json:"unique_order_ids"`
	Earliest       time.Time `json:"earliest"`
	Latest         time.Time `json:"latest"`

	// RowsRead covers merged batches only; excluded batches are counted in
	// their BatchSummary.
	RowsRead            int            `json:"rows_read"`
	RejectedRecords     int            `json:"rejected_records"`
	RejectedByReason    map[string]int `json:"rejected_by_reason,omitempty"`
	AmountParseFailures int            `json:"amount_parse_failures"`
	DuplicatesResolved  int            `json:"duplicates_resolved"`
	RecordsSuperseded   int            `json:"records_superseded"`

	BatchesMerged   int `json:"batches_merged"`
	BatchesExcluded int `json:"batches_excluded"`
}

// Consistent reports whether the ledger's counts add up: every accepted row
// is either in the ledger or superseded by a duplicate, and ids are unique.
func (i Integrity) Consistent() bool {
	accepted := i.RowsRead - i.RejectedRecords
	return i.TotalRecords == i.UniqueOrderIDs &&
		accepted-i.RecordsSuperseded == i.TotalRecords
}

// EmptyLedgerError is returned when no record survives validation.
type EmptyLedgerError struct {
	Batches         int
	BatchesExcluded int
	RowsRead        int
	Rejected        int
}

// Error implements the error interface.
func (e *EmptyLedgerError) Error() string {
	return fmt.Sprintf("nothing to merge: %d batch(es), %d excluded, %d row(s) read, %d rejected",
		e.Batches, e.BatchesExcluded, e.RowsRead, e.Rejected)
}

// BatchOrderError is returned when batches cannot be ordered unambiguously.
type BatchOrderError struct {
	Reason string
}

// Error implements the error interface.
func (e *BatchOrderError) Error() string {
	return "ambiguous batch order: " + e.Reason
}
