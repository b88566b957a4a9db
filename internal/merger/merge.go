// =============================================================================
// POS Ledger Merger - Merge Engine
// =============================================================================
//
// Merge is a pure function from batches to (Ledger, Report):
//
//   1. Order batches by explicit priority (never by discovery order)
//   2. Ingest every batch, in parallel, bounded by Options.Concurrency
//   3. Exclude batches failing the schema check; keep going with the rest
//   4. Group records by order id and let the Policy pick one per group
//   5. Sort by order time, ties by order id
//   6. Compute integrity statistics
//
// Nothing here touches the filesystem; reading exports and replacing the
// ledger file is the pipeline's job.
//
// =============================================================================

package merger

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
	"github.com/ginjaninja78/pos-ledger-merger/internal/validation"
)

// Options configures a merge.
type Options struct {
	// Policy resolves duplicates. Default: LastBatchWins.
	Policy Policy

	// Ingest carries the column names and the time parser.
	Ingest validation.Options

	// Concurrency bounds parallel ingestion. Values below 1 mean 1.
	Concurrency int
}

// Merge merges batches into a ledger.
//
// PARAMETERS:
//   - batches: The inputs. Priorities and ids must be unique.
//   - opts: Policy, ingestion options and concurrency.
//
// RETURNS:
//   - The ledger, or nil on error.
//   - The report. It is also returned with an *EmptyLedgerError so callers
//     can show why nothing survived.
//   - *BatchOrderError for duplicate priorities or ids, *EmptyLedgerError
//     when no record survives, or an ingestion setup error.
func Merge(batches []types.Batch, opts Options) (*types.Ledger, *Report, error) {
	if opts.Policy == nil {
		opts.Policy = LastBatchWins{}
	}
	if opts.Ingest.Times == nil {
		return nil, nil, errors.New("merge: no time parser configured")
	}

	ordered, err := orderBatches(batches)
	if err != nil {
		return nil, nil, err
	}

	results, err := ingestAll(ordered, opts)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		Policy:    opts.Policy.Name(),
		DateOrder: string(opts.Ingest.Times.Order()),
		Integrity: Integrity{RejectedByReason: map[string]int{}},
	}

	var merged []*validation.Result
	for i, res := range results {
		summary := BatchSummary{
			ID:       ordered[i].ID,
			Source:   res.result.Source,
			Priority: ordered[i].Priority,
			RowsRead: res.result.RowsRead,
		}

		if res.schemaErr != nil {
			summary.Excluded = true
			summary.Error = res.schemaErr.Error()
			report.SchemaErrors = append(report.SchemaErrors, res.schemaErr)
			report.Integrity.BatchesExcluded++
			report.Batches = append(report.Batches, summary)
			continue
		}

		r := res.result
		summary.Columns = r.Columns
		summary.Accepted = len(r.Records)
		summary.Rejected = len(r.Rejections)
		summary.AmountDefects = len(r.AmountDefects)
		report.Batches = append(report.Batches, summary)

		report.Integrity.BatchesMerged++
		report.Integrity.RowsRead += r.RowsRead
		for _, rej := range r.Rejections {
			report.Rejections = append(report.Rejections, RejectedRecord{
				BatchID: rej.BatchID,
				Row:     rej.Row,
				OrderID: rej.OrderID,
				Reason:  string(rej.Reason),
				Value:   rej.Value,
				Detail:  rej.Error(),
			})
			report.Integrity.RejectedByReason[string(rej.Reason)]++
		}
		for _, def := range r.AmountDefects {
			report.AmountDefects = append(report.AmountDefects, AmountDefect{
				BatchID: def.BatchID,
				Row:     def.Row,
				OrderID: def.OrderID,
				Column:  def.Column,
				Value:   def.Value,
			})
		}

		merged = append(merged, r)
	}
	report.Integrity.RejectedRecords = len(report.Rejections)
	report.Integrity.AmountParseFailures = len(report.AmountDefects)

	records := resolve(merged, opts.Policy, report)
	sortRecords(records)

	contributed := make(map[string]int)
	for _, r := range records {
		contributed[r.Origin.BatchID]++
	}
	for i := range report.Batches {
		report.Batches[i].Contributed = contributed[report.Batches[i].ID]
	}

	report.Overlaps = overlaps(merged)

	ledger := &types.Ledger{
		Columns: columnContract(merged),
		Records: records,
	}

	report.Integrity.TotalRecords = ledger.Len()
	report.Integrity.UniqueOrderIDs = len(ledger.Index())
	report.Integrity.Earliest, report.Integrity.Latest = ledger.Span()

	if ledger.Len() == 0 {
		return nil, report, &EmptyLedgerError{
			Batches:         len(ordered),
			BatchesExcluded: report.Integrity.BatchesExcluded,
			RowsRead:        report.Integrity.RowsRead,
			Rejected:        report.Integrity.RejectedRecords,
		}
	}

	return ledger, report, nil
}

// =============================================================================
// BATCH ORDERING AND INGESTION
// =============================================================================

func orderBatches(batches []types.Batch) ([]types.Batch, error) {
	ordered := slices.Clone(batches)

	ids := make(map[string]bool, len(batches))
	priorities := make(map[int]string, len(batches))
	for _, b := range ordered {
		if b.ID == "" {
			return nil, &BatchOrderError{Reason: "batch without an id"}
		}
		if ids[b.ID] {
			return nil, &BatchOrderError{Reason: fmt.Sprintf("batch id %q used twice", b.ID)}
		}
		ids[b.ID] = true
		if other, ok := priorities[b.Priority]; ok {
			return nil, &BatchOrderError{
				Reason: fmt.Sprintf("batches %q and %q share priority %d", other, b.ID, b.Priority),
			}
		}
		priorities[b.Priority] = b.ID
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	return ordered, nil
}

type ingested struct {
	result    *validation.Result
	schemaErr *validation.SchemaError
}

// ingestAll ingests every batch. Results are stored by position, so the
// output order does not depend on scheduling.
func ingestAll(batches []types.Batch, opts Options) ([]ingested, error) {
	results := make([]ingested, len(batches))

	var g errgroup.Group
	g.SetLimit(max(opts.Concurrency, 1))

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			res, err := validation.Ingest(batch, opts.Ingest)

			var schemaErr *validation.SchemaError
			switch {
			case errors.As(err, &schemaErr):
				results[i] = ingested{result: res, schemaErr: schemaErr}
			case err != nil:
				return fmt.Errorf("failed to ingest batch %q: %w", batch.ID, err)
			default:
				results[i] = ingested{result: res}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// =============================================================================
// DEDUPLICATION
// =============================================================================

// resolve keeps one record per order id. results are in priority order and
// each batch's records in row order, so every group is already ordered the
// way Policy.Resolve expects.
func resolve(results []*validation.Result, policy Policy, report *Report) []types.OrderRecord {
	groups := make(map[string][]types.OrderRecord)
	var firstSeen []string

	for _, r := range results {
		for _, rec := range r.Records {
			if _, ok := groups[rec.OrderID]; !ok {
				firstSeen = append(firstSeen, rec.OrderID)
			}
			groups[rec.OrderID] = append(groups[rec.OrderID], rec)
		}
	}

	records := make([]types.OrderRecord, 0, len(groups))
	for _, id := range firstSeen {
		contenders := groups[id]
		if len(contenders) == 1 {
			records = append(records, contenders[0])
			continue
		}

		winner := contenders[policy.Resolve(contenders)]
		records = append(records, winner)

		contributors := make([]string, len(contenders))
		conflicting := false
		for i, c := range contenders {
			contributors[i] = c.Origin.BatchID
			if !sameContent(c, contenders[0]) {
				conflicting = true
			}
		}

		report.Duplicates = append(report.Duplicates, DuplicateResolution{
			OrderID:      id,
			Contributors: contributors,
			Winner:       winner.Origin.BatchID,
			WinnerRow:    winner.Origin.Row,
			Conflicting:  conflicting,
		})
		report.Integrity.RecordsSuperseded += len(contenders) - 1
	}

	sort.SliceStable(report.Duplicates, func(i, j int) bool {
		return CompareOrderIDs(report.Duplicates[i].OrderID, report.Duplicates[j].OrderID) < 0
	})
	report.Integrity.DuplicatesResolved = len(report.Duplicates)

	return records
}

// sameContent compares the data of two records, ignoring their origin.
func sameContent(a, b types.OrderRecord) bool {
	if !a.OrderTime.Equal(b.OrderTime) || !maps.Equal(a.Dimensions, b.Dimensions) {
		return false
	}
	if len(a.Amounts) != len(b.Amounts) {
		return false
	}
	for col, v := range a.Amounts {
		w, ok := b.Amounts[col]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

// =============================================================================
// ORDERING
// =============================================================================

func sortRecords(records []types.OrderRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.OrderTime.Equal(b.OrderTime) {
			return a.OrderTime.Before(b.OrderTime)
		}
		return CompareOrderIDs(a.OrderID, b.OrderID) < 0
	})
}

// CompareOrderIDs orders ids numerically when both are digit strings and
// lexically otherwise. Numerically equal ids with different spellings
// ("7", "007") fall back to lexical order.
func CompareOrderIDs(a, b string) int {
	if isDigits(a) && isDigits(b) {
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) - len(tb)
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// =============================================================================
// COLUMN CONTRACT AND OVERLAPS
// =============================================================================

// columnContract returns the columns of the richest batch (most columns,
// the higher priority on a tie), followed by any column only other batches
// carry, so no value is dropped on output.
func columnContract(results []*validation.Result) []string {
	if len(results) == 0 {
		return nil
	}

	richest := results[0]
	for _, r := range results[1:] {
		if len(r.Columns) >= len(richest.Columns) {
			richest = r
		}
	}

	columns := slices.Clone(richest.Columns)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}

	for i := len(results) - 1; i >= 0; i-- {
		for _, c := range results[i].Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	return columns
}

func overlaps(results []*validation.Result) []Overlap {
	ids := make([]map[string]bool, len(results))
	for i, r := range results {
		ids[i] = make(map[string]bool, len(r.Records))
		for _, rec := range r.Records {
			ids[i][rec.OrderID] = true
		}
	}

	var out []Overlap
	for i := range results {
		for j := i + 1; j < len(results); j++ {
			shared := 0
			for id := range ids[i] {
				if ids[j][id] {
					shared++
				}
			}
			if shared > 0 {
				out = append(out, Overlap{
					BatchA: results[i].BatchID,
					BatchB: results[j].BatchID,
					Shared: shared,
				})
			}
		}
	}

	return out
}
