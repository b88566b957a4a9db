package merger_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
	"github.com/ginjaninja78/pos-ledger-merger/internal/validation"
)

var salesHeaders = []string{"Order ID", "Order time", "Gross sales", "Sales channel"}

// newBatch builds a batch from rows of salesHeaders cells.
func newBatch(id string, priority int, rows ...[]string) types.Batch {
	return newBatchWith(id, priority, salesHeaders, rows...)
}

func newBatchWith(id string, priority int, headers []string, rows ...[]string) types.Batch {
	table := &types.Table{Source: id + ".csv", Headers: headers}
	for i, cells := range rows {
		values := make(map[string]string, len(headers))
		for c, h := range headers {
			if c < len(cells) {
				values[h] = cells[c]
			}
		}
		table.Rows = append(table.Rows, types.Row{Number: i + 2, Values: values})
	}
	return types.Batch{ID: id, Priority: priority, Table: table}
}

func options(t *testing.T, policy merger.Policy) merger.Options {
	t.Helper()
	times, err := validation.NewTimeParser(validation.DayFirst, time.UTC)
	require.NoError(t, err)
	return merger.Options{Policy: policy, Ingest: validation.Options{Times: times}, Concurrency: 4}
}

func ids(ledger *types.Ledger) []string {
	out := make([]string, 0, ledger.Len())
	for _, r := range ledger.Records {
		out = append(out, r.OrderID)
	}
	return out
}

func scenarioA() []types.Batch {
	a := newBatch("A", 1,
		[]string{"1", "01/01/2024 10:00", "£5.00", "Web"},
		[]string{"2", "02/01/2024 10:00", "£7.50", "App"},
		[]string{"3", "03/01/2024 10:00", "£10.00", "Web"},
	)
	b := newBatch("B", 2,
		[]string{"3", "03/01/2024 10:00", "£12.00", "Web"},
		[]string{"4", "04/01/2024 10:00", "£3.00", "Web"},
	)
	return []types.Batch{a, b}
}

func TestMergeOverlappingBatches(t *testing.T) {
	ledger, report, err := merger.Merge(scenarioA(), options(t, merger.LastBatchWins{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(ledger))

	amount, ok := ledger.Index()["3"].Amount("Gross sales")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(12).Equal(amount), "got %s", amount)

	require.Len(t, report.Duplicates, 1)
	assert.Equal(t, merger.DuplicateResolution{
		OrderID:      "3",
		Contributors: []string{"A", "B"},
		Winner:       "B",
		WinnerRow:    2,
		Conflicting:  true,
	}, report.Duplicates[0])

	assert.Equal(t, 4, report.Integrity.TotalRecords)
	assert.Equal(t, 4, report.Integrity.UniqueOrderIDs)
	assert.Equal(t, 1, report.Integrity.DuplicatesResolved)
	assert.Equal(t, 1, report.Integrity.RecordsSuperseded)
	assert.Equal(t, 5, report.Integrity.RowsRead)
	assert.Zero(t, report.Integrity.RejectedRecords)
	assert.True(t, report.Integrity.Consistent())
	assert.True(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).Equal(report.Integrity.Earliest))
	assert.True(t, time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC).Equal(report.Integrity.Latest))

	assert.Equal(t, []merger.Overlap{{BatchA: "A", BatchB: "B", Shared: 1}}, report.Overlaps)

	require.Len(t, report.Batches, 2)
	assert.Equal(t, 2, report.Batches[0].Contributed)
	assert.Equal(t, 2, report.Batches[1].Contributed)
}

func TestMergeFirstBatchWins(t *testing.T) {
	ledger, report, err := merger.Merge(scenarioA(), options(t, merger.FirstBatchWins{}))
	require.NoError(t, err)

	amount, _ := ledger.Index()["3"].Amount("Gross sales")
	assert.True(t, decimal.NewFromInt(10).Equal(amount), "got %s", amount)
	assert.Equal(t, "A", report.Duplicates[0].Winner)
	assert.Equal(t, merger.FirstBatchWinsName, report.Policy)
}

func TestMergePriorityNotInputOrder(t *testing.T) {
	batches := scenarioA()
	batches[0], batches[1] = batches[1], batches[0]

	ledger, report, err := merger.Merge(batches, options(t, merger.LastBatchWins{}))
	require.NoError(t, err)

	amount, _ := ledger.Index()["3"].Amount("Gross sales")
	assert.True(t, decimal.NewFromInt(12).Equal(amount))
	assert.Equal(t, "A", report.Batches[0].ID)
	assert.Equal(t, []string{"A", "B"}, report.Duplicates[0].Contributors)
}

func TestMergeInvalidTimestamp(t *testing.T) {
	batch := newBatch("A", 1,
		[]string{"1", "01/01/2024 10:00", "1", "Web"},
		[]string{"2", "02/01/2024 10:00", "1", "Web"},
		[]string{"3", "not-a-date", "1", "Web"},
		[]string{"4", "04/01/2024 10:00", "1", "Web"},
		[]string{"5", "05/01/2024 10:00", "1", "Web"},
	)

	ledger, report, err := merger.Merge([]types.Batch{batch}, options(t, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "4", "5"}, ids(ledger))
	assert.Equal(t, 1, report.Integrity.RejectedRecords)
	assert.Equal(t, map[string]int{"invalid_timestamp": 1}, report.Integrity.RejectedByReason)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "3", report.Rejections[0].OrderID)
	assert.Equal(t, 4, report.Rejections[0].Row)
	assert.Equal(t, "not-a-date", report.Rejections[0].Value)
	assert.True(t, report.Integrity.Consistent())
}

func TestMergeAmountDefectKeepsRecord(t *testing.T) {
	batch := newBatch("A", 1,
		[]string{"1", "01/01/2024 10:00", "N/A", "Web"},
		[]string{"2", "02/01/2024 10:00", "2", "Web"},
	)

	ledger, report, err := merger.Merge([]types.Batch{batch}, options(t, nil))
	require.NoError(t, err)

	assert.Equal(t, 2, ledger.Len())
	amount, ok := ledger.Index()["1"].Amount("Gross sales")
	require.True(t, ok)
	assert.True(t, amount.IsZero())

	assert.Equal(t, 1, report.Integrity.AmountParseFailures)
	assert.Equal(t, []merger.AmountDefect{{BatchID: "A", Row: 2, OrderID: "1", Column: "Gross sales", Value: "N/A"}}, report.AmountDefects)
}

func TestMergeTieBreakByOrderID(t *testing.T) {
	batch := newBatch("A", 1,
		[]string{"10", "01/01/2024 10:00", "1", "Web"},
		[]string{"9", "01/01/2024 10:00", "1", "Web"},
		[]string{"100", "01/01/2024 09:00", "1", "Web"},
		[]string{"B7", "01/01/2024 10:00", "1", "Web"},
	)

	ledger, _, err := merger.Merge([]types.Batch{batch}, options(t, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "9", "10", "B7"}, ids(ledger))
}

func TestCompareOrderIDs(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"9", "10", -1},
		{"10", "9", 1},
		{"10", "10", 0},
		{"007", "7", -1},
		{"7", "007", 1},
		{"A10", "A9", -1},
		{"9", "A", -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := merger.CompareOrderIDs(tt.a, tt.b)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}

func TestMergeIntraBatchDuplicate(t *testing.T) {
	batch := newBatch("A", 1,
		[]string{"5", "01/01/2024 10:00", "1", "Web"},
		[]string{"5", "01/01/2024 10:00", "2", "Web"},
	)

	ledger, report, err := merger.Merge([]types.Batch{batch}, options(t, nil))
	require.NoError(t, err)

	require.Equal(t, 1, ledger.Len())
	amount, _ := ledger.Records[0].Amount("Gross sales")
	assert.True(t, decimal.NewFromInt(2).Equal(amount))
	assert.Equal(t, []string{"A", "A"}, report.Duplicates[0].Contributors)
	assert.Equal(t, 3, report.Duplicates[0].WinnerRow)
	assert.True(t, report.Integrity.Consistent())
}

func TestMergeIdenticalDuplicateNotConflicting(t *testing.T) {
	row := []string{"1", "01/01/2024 10:00", "1", "Web"}
	batches := []types.Batch{newBatch("A", 1, row), newBatch("B", 2, row)}

	_, report, err := merger.Merge(batches, options(t, nil))
	require.NoError(t, err)

	require.Len(t, report.Duplicates, 1)
	assert.False(t, report.Duplicates[0].Conflicting)
}

func TestMergeExcludesBadBatch(t *testing.T) {
	good := newBatch("good", 1, []string{"1", "01/01/2024 10:00", "1", "Web"})
	bad := newBatchWith("bad", 2, []string{"Order ID", "Gross sales"}, []string{"2", "1"})

	ledger, report, err := merger.Merge([]types.Batch{good, bad}, options(t, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, ids(ledger))
	assert.Equal(t, 1, report.Integrity.BatchesMerged)
	assert.Equal(t, 1, report.Integrity.BatchesExcluded)
	assert.Equal(t, 1, report.Integrity.RowsRead)

	require.Len(t, report.SchemaErrors, 1)
	assert.Equal(t, "bad", report.SchemaErrors[0].BatchID)
	assert.Equal(t, []string{"Order time"}, report.SchemaErrors[0].Missing)

	require.Len(t, report.Batches, 2)
	assert.True(t, report.Batches[1].Excluded)
	assert.Equal(t, 1, report.Batches[1].RowsRead)
	assert.NotEmpty(t, report.Batches[1].Error)
}

func TestMergeEmptyLedger(t *testing.T) {
	batch := newBatch("A", 1,
		[]string{"1", "garbage", "1", "Web"},
		[]string{"", "01/01/2024 10:00", "1", "Web"},
	)
	bad := newBatchWith("menu", 2, []string{"Item"}, []string{"Pizza"})

	ledger, report, err := merger.Merge([]types.Batch{batch, bad}, options(t, nil))

	var empty *merger.EmptyLedgerError
	require.True(t, errors.As(err, &empty), "want *EmptyLedgerError, got %v", err)
	assert.Nil(t, ledger)
	require.NotNil(t, report)
	assert.Equal(t, 2, empty.Batches)
	assert.Equal(t, 1, empty.BatchesExcluded)
	assert.Equal(t, 2, empty.RowsRead)
	assert.Equal(t, 2, empty.Rejected)
	assert.Equal(t, 2, report.Integrity.RejectedRecords)
}

func TestMergeNoBatches(t *testing.T) {
	_, _, err := merger.Merge(nil, options(t, nil))

	var empty *merger.EmptyLedgerError
	require.True(t, errors.As(err, &empty))
}

func TestMergeBatchOrderErrors(t *testing.T) {
	row := []string{"1", "01/01/2024 10:00", "1", "Web"}

	tests := []struct {
		name    string
		batches []types.Batch
	}{
		{name: "shared priority", batches: []types.Batch{newBatch("A", 1, row), newBatch("B", 1, row)}},
		{name: "shared id", batches: []types.Batch{newBatch("A", 1, row), newBatch("A", 2, row)}},
		{name: "blank id", batches: []types.Batch{newBatch("", 1, row)}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := merger.Merge(tt.batches, options(t, nil))

			var orderErr *merger.BatchOrderError
			require.True(t, errors.As(err, &orderErr), "want *BatchOrderError, got %v", err)
		})
	}
}

func TestMergeRequiresTimeParser(t *testing.T) {
	_, _, err := merger.Merge(scenarioA(), merger.Options{})
	require.Error(t, err)
}

func TestMergeColumnContract(t *testing.T) {
	narrow := newBatchWith("narrow", 1,
		[]string{"Order ID", "Order time", "Gross sales", "Legacy code"},
		[]string{"1", "01/01/2024 10:00", "1", "L1"},
	)
	wide := newBatchWith("wide", 2,
		[]string{"Order ID", "Order time", "Gross sales", "Tips", "Sales channel"},
		[]string{"2", "02/01/2024 10:00", "1", "0.50", "Web"},
	)

	ledger, _, err := merger.Merge([]types.Batch{narrow, wide}, options(t, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"Order ID", "Order time", "Gross sales", "Tips", "Sales channel", "Legacy code"}, ledger.Columns)

	_, hasTips := ledger.Index()["1"].Amount("Tips")
	assert.False(t, hasTips, "a column absent from a batch is not applicable for its records")
}

func TestMergeDeterministic(t *testing.T) {
	build := func() []types.Batch {
		return []types.Batch{
			newBatch("C", 3,
				[]string{"4", "04/01/2024 10:00", "9", "Web"},
				[]string{"2", "02/01/2024 10:00", "8", "Kiosk"},
			),
			newBatch("A", 1,
				[]string{"1", "01/01/2024 10:00", "5", "Web"},
				[]string{"2", "02/01/2024 10:00", "7", "App"},
				[]string{"x", "bad", "1", "Web"},
			),
			newBatch("B", 2,
				[]string{"3", "03/01/2024 10:00", "12", "Web"},
				[]string{"4", "04/01/2024 10:00", "oops", "Web"},
			),
		}
	}

	opts := options(t, nil)
	ledger1, report1, err := merger.Merge(build(), opts)
	require.NoError(t, err)

	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	opts.Concurrency = 1
	ledger2, report2, err := merger.Merge(reversed, opts)
	require.NoError(t, err)

	assert.Equal(t, ledger1, ledger2)
	assert.Equal(t, report1, report2)
}
