// =============================================================================
// POS Ledger Merger - Ledger Comparison
// =============================================================================
//
// Verification lives here, outside the merge engine. Two tools:
//   - Ledgers: diff two ledgers order by order (added, removed, changed) and
//     compare per-column totals
//   - Check: compare a ledger's aggregates, optionally within a date range,
//     against caller-supplied expected values with a tolerance
//
// The merge never calls this package.
//
// =============================================================================

package compare

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// =============================================================================
// LEDGER DIFF
// =============================================================================

// FieldChange is one differing field of an order present in both ledgers.
type FieldChange struct {
	Column string `json:"column"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Change lists the differing fields of one order.
type Change struct {
	OrderID string        `json:"order_id"`
	Fields  []FieldChange `json:"fields"`
}

// ColumnTotal compares the sum of a monetary column.
type ColumnTotal struct {
	Column string          `json:"column"`
	Before decimal.Decimal `json:"before"`
	After  decimal.Decimal `json:"after"`
}

// Delta is After - Before.
func (c ColumnTotal) Delta() decimal.Decimal { return c.After.Sub(c.Before) }

// Diff is the difference from ledger A (before) to ledger B (after).
type Diff struct {
	Added     []string      `json:"added,omitempty"`
	Removed   []string      `json:"removed,omitempty"`
	Changed   []Change      `json:"changed,omitempty"`
	Unchanged int           `json:"unchanged"`
	Totals    []ColumnTotal `json:"totals"`
}

// Identical reports whether both ledgers hold the same orders with the same
// values.
func (d *Diff) Identical() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Ledgers diffs a against b. Record origins are ignored. A dimension
// missing from one side compares equal to an empty value.
func Ledgers(a, b *types.Ledger) *Diff {
	before, after := a.Index(), b.Index()
	diff := &Diff{}

	for id, ra := range before {
		rb, ok := after[id]
		if !ok {
			diff.Removed = append(diff.Removed, id)
			continue
		}
		if fields := diffRecord(ra, rb); len(fields) > 0 {
			diff.Changed = append(diff.Changed, Change{OrderID: id, Fields: fields})
		} else {
			diff.Unchanged++
		}
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}

	slices.SortFunc(diff.Added, merger.CompareOrderIDs)
	slices.SortFunc(diff.Removed, merger.CompareOrderIDs)
	slices.SortFunc(diff.Changed, func(x, y Change) int { return merger.CompareOrderIDs(x.OrderID, y.OrderID) })

	for _, col := range monetaryColumns(a, b) {
		diff.Totals = append(diff.Totals, ColumnTotal{
			Column: col,
			Before: Total(a, col, time.Time{}, time.Time{}),
			After:  Total(b, col, time.Time{}, time.Time{}),
		})
	}

	return diff
}

func diffRecord(a, b types.OrderRecord) []FieldChange {
	var fields []FieldChange

	if !a.OrderTime.Equal(b.OrderTime) {
		fields = append(fields, FieldChange{
			Column: types.ColumnOrderTime,
			Before: a.OrderTime.Format(types.TimeLayout),
			After:  b.OrderTime.Format(types.TimeLayout),
		})
	}

	for _, col := range unionKeys(a.Amounts, b.Amounts) {
		va, okA := a.Amounts[col]
		vb, okB := b.Amounts[col]
		if okA != okB || !va.Equal(vb) {
			fields = append(fields, FieldChange{Column: col, Before: amountText(va, okA), After: amountText(vb, okB)})
		}
	}

	for _, col := range unionKeys(a.Dimensions, b.Dimensions) {
		if a.Dimensions[col] != b.Dimensions[col] {
			fields = append(fields, FieldChange{Column: col, Before: a.Dimensions[col], After: b.Dimensions[col]})
		}
	}

	return fields
}

func amountText(d decimal.Decimal, ok bool) string {
	if !ok {
		return ""
	}
	return types.FormatAmount(d)
}

func unionKeys[V any](a, b map[string]V) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// monetaryColumns returns the monetary columns of either ledger, in
// column order of a then b.
func monetaryColumns(ledgers ...*types.Ledger) []string {
	present := make(map[string]bool)
	for _, l := range ledgers {
		if l == nil {
			continue
		}
		for _, r := range l.Records {
			for col := range r.Amounts {
				present[col] = true
			}
		}
	}

	var cols []string
	seen := make(map[string]bool)
	for _, l := range ledgers {
		if l == nil {
			continue
		}
		for _, c := range l.Columns {
			if present[c] && !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// =============================================================================
// AGGREGATES AND EXPECTATIONS
// =============================================================================

// RecordsMetric names the record count in expectations.
const RecordsMetric = "records"

// Total sums a monetary column over records with from <= time < to. Zero
// bounds are open. Not-applicable values are skipped.
func Total(ledger *types.Ledger, column string, from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	if ledger == nil {
		return total
	}
	for _, r := range ledger.Records {
		if !inRange(r.OrderTime, from, to) {
			continue
		}
		if v, ok := r.Amounts[column]; ok {
			total = total.Add(v)
		}
	}
	return total
}

// Count returns the number of records with from <= time < to.
func Count(ledger *types.Ledger, from, to time.Time) int {
	n := 0
	if ledger == nil {
		return n
	}
	for _, r := range ledger.Records {
		if inRange(r.OrderTime, from, to) {
			n++
		}
	}
	return n
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	return to.IsZero() || t.Before(to)
}

// Expectation is an expected aggregate: a monetary column total, or the
// record count when Metric is RecordsMetric.
type Expectation struct {
	Metric string
	Want   decimal.Decimal
}

// ParseExpectation parses "Gross sales=1234.56" or "records=812".
func ParseExpectation(s string) (Expectation, error) {
	metric, value, ok := strings.Cut(s, "=")
	metric = strings.TrimSpace(metric)
	if !ok || metric == "" {
		return Expectation{}, fmt.Errorf("expectation %q: want COLUMN=VALUE", s)
	}

	want, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Expectation{}, fmt.Errorf("expectation %q: invalid value: %w", s, err)
	}

	return Expectation{Metric: metric, Want: want}, nil
}

// CheckOptions bounds a check.
type CheckOptions struct {
	// Tolerance is the largest absolute difference still accepted.
	Tolerance decimal.Decimal

	// From (inclusive) and To (exclusive) restrict the records checked.
	From, To time.Time
}

// Outcome is the result of one expectation.
type Outcome struct {
	Expectation
	Got decimal.Decimal
	OK  bool
}

// Delta is Got - Want.
func (o Outcome) Delta() decimal.Decimal { return o.Got.Sub(o.Want) }

// Check evaluates every expectation against the ledger.
func Check(ledger *types.Ledger, expectations []Expectation, opts CheckOptions) []Outcome {
	outcomes := make([]Outcome, 0, len(expectations))
	for _, exp := range expectations {
		var got decimal.Decimal
		if strings.EqualFold(exp.Metric, RecordsMetric) {
			got = decimal.NewFromInt(int64(Count(ledger, opts.From, opts.To)))
		} else {
			got = Total(ledger, exp.Metric, opts.From, opts.To)
		}

		outcomes = append(outcomes, Outcome{
			Expectation: exp,
			Got:         got,
			OK:          got.Sub(exp.Want).Abs().LessThanOrEqual(opts.Tolerance.Abs()),
		})
	}
	return outcomes
}
