// =============================================================================
// POS Ledger Merger - Run Metrics
// =============================================================================
//
// Gauges describing the last merge run, for alerting on a stale or shrinking
// ledger. A merge is a one-shot job, so nothing is served over HTTP: the
// pipeline writes the registry as a node_exporter textfile when
// metrics_file is configured.
//
// =============================================================================

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ginjaninja78/pos-ledger-merger/internal/merger"
)

// Registry holds the gauges describing the last merge run.
type Registry struct {
	reg *prometheus.Registry

	LedgerRecords       prometheus.Gauge
	RowsRead            prometheus.Gauge
	RejectedRecords     *prometheus.GaugeVec
	AmountParseFailures prometheus.Gauge
	DuplicatesResolved  prometheus.Gauge
	BatchesMerged       prometheus.Gauge
	BatchesExcluded     prometheus.Gauge
	BatchRows           *prometheus.GaugeVec
	LedgerLatestOrder   prometheus.Gauge
	DurationSec         prometheus.Gauge
	LastSuccess         prometheus.Gauge
}

// NewRegistry creates a private registry with every gauge registered and
// unset. Label sets appear once Observe has run.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	records := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_records", Help: "Records in the merged ledger."})
	rowsRead := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_rows_read", Help: "Rows read from merged batches."})
	rejected := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_merge_rejected_records",
		Help: "Rows excluded from the ledger, by reason.",
	}, []string{"reason"})
	amountFailures := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_amount_parse_failures", Help: "Monetary values zeroed because they did not parse."})
	duplicates := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_duplicates_resolved", Help: "Order ids found in more than one row."})
	merged := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_batches_merged", Help: "Batches that passed the schema check."})
	excluded := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_batches_excluded", Help: "Batches rejected by the schema check."})
	batchRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledger_merge_batch_rows",
		Help: "Rows per batch, by outcome.",
	}, []string{"batch", "outcome"})
	latest := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_latest_order_timestamp_seconds", Help: "Order time of the newest ledger record."})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_duration_seconds", Help: "Wall time of the last run."})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ledger_merge_last_success_timestamp_seconds", Help: "When the ledger was last replaced."})

	r.MustRegister(records, rowsRead, rejected, amountFailures, duplicates, merged, excluded, batchRows, latest, duration, lastSuccess)
	return &Registry{
		reg:                 r,
		LedgerRecords:       records,
		RowsRead:            rowsRead,
		RejectedRecords:     rejected,
		AmountParseFailures: amountFailures,
		DuplicatesResolved:  duplicates,
		BatchesMerged:       merged,
		BatchesExcluded:     excluded,
		BatchRows:           batchRows,
		LedgerLatestOrder:   latest,
		DurationSec:         duration,
		LastSuccess:         lastSuccess,
	}
}

// Observe records a merge report. finished is zero when the ledger was not
// replaced (failure or dry run).
func (r *Registry) Observe(report *merger.Report, took time.Duration, finished time.Time) {
	r.DurationSec.Set(took.Seconds())
	if report == nil {
		return
	}

	in := report.Integrity
	r.LedgerRecords.Set(float64(in.TotalRecords))
	r.RowsRead.Set(float64(in.RowsRead))
	r.AmountParseFailures.Set(float64(in.AmountParseFailures))
	r.DuplicatesResolved.Set(float64(in.DuplicatesResolved))
	r.BatchesMerged.Set(float64(in.BatchesMerged))
	r.BatchesExcluded.Set(float64(in.BatchesExcluded))
	for reason, n := range in.RejectedByReason {
		r.RejectedRecords.WithLabelValues(reason).Set(float64(n))
	}
	if !in.Latest.IsZero() {
		r.LedgerLatestOrder.Set(float64(in.Latest.Unix()))
	}
	if !finished.IsZero() {
		r.LastSuccess.Set(float64(finished.Unix()))
	}

	for _, b := range report.Batches {
		r.BatchRows.WithLabelValues(b.ID, "read").Set(float64(b.RowsRead))
		r.BatchRows.WithLabelValues(b.ID, "accepted").Set(float64(b.Accepted))
		r.BatchRows.WithLabelValues(b.ID, "rejected").Set(float64(b.Rejected))
		r.BatchRows.WithLabelValues(b.ID, "contributed").Set(float64(b.Contributed))
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
