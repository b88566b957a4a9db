package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
)

func sampleReport() *merger.Report {
	return &merger.Report{
		Batches: []merger.BatchSummary{
			{ID: "march.csv", Priority: 1, RowsRead: 4, Accepted: 3, Rejected: 1, Contributed: 2},
			{ID: "april.csv", Priority: 2, RowsRead: 2, Accepted: 2, Contributed: 2},
		},
		Integrity: merger.Integrity{
			TotalRecords:        4,
			UniqueOrderIDs:      4,
			Latest:              time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC),
			RowsRead:            6,
			RejectedRecords:     1,
			RejectedByReason:    map[string]int{"invalid_timestamp": 1},
			AmountParseFailures: 2,
			DuplicatesResolved:  1,
			RecordsSuperseded:   1,
			BatchesMerged:       2,
		},
	}
}

func TestObserve(t *testing.T) {
	r := NewRegistry()
	finished := time.Date(2024, 4, 3, 8, 0, 0, 0, time.UTC)

	r.Observe(sampleReport(), 1500*time.Millisecond, finished)

	assert.Equal(t, 4.0, testutil.ToFloat64(r.LedgerRecords))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.RowsRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.AmountParseFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.RejectedRecords.WithLabelValues("invalid_timestamp")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.BatchRows.WithLabelValues("april.csv", "contributed")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.DurationSec))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.LastSuccess))
}

func TestObserveDryRun(t *testing.T) {
	r := NewRegistry()
	r.Observe(sampleReport(), time.Second, time.Time{})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.LastSuccess))

	r.Observe(nil, 2*time.Second, time.Time{})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.DurationSec))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.Observe(sampleReport(), time.Second, time.Time{})

	path := filepath.Join(t.TempDir(), "ledger.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "ledger_merge_records 4")
	assert.Contains(t, text, `ledger_merge_rejected_records{reason="invalid_timestamp"} 1`)
	assert.Contains(t, text, `ledger_merge_batch_rows{batch="march.csv",outcome="rejected"} 1`)
}
