package validation

import (
	"errors"
	"sort"
	"time"
)

// maxProfiledValues limits dimension value counts to low-cardinality
// columns (channels, payment methods).
const maxProfiledValues = 12

// ValueCount is how often a dimension value occurs.
type ValueCount struct {
	Value string
	Count int
}

// Profile is a data-quality summary of one ingested batch.
type Profile struct {
	BatchID string
	Source  string

	// Recognized is false when the batch failed the schema check.
	Recognized bool
	Schema     *SchemaError

	RowsRead      int
	Accepted      int
	Rejected      map[Reason]int
	AmountDefects int

	Earliest, Latest time.Time

	// Dimensions holds value counts for dimension columns with few distinct
	// values, most frequent first.
	Dimensions map[string][]ValueCount
}

// NewProfile summarizes the outcome of Ingest.
func NewProfile(result *Result, ingestErr error) *Profile {
	p := &Profile{
		Recognized: ingestErr == nil,
		Rejected:   make(map[Reason]int),
		Dimensions: make(map[string][]ValueCount),
	}
	errors.As(ingestErr, &p.Schema)
	if result == nil {
		return p
	}

	p.BatchID = result.BatchID
	p.Source = result.Source
	p.RowsRead = result.RowsRead
	p.Accepted = len(result.Records)
	p.AmountDefects = len(result.AmountDefects)
	for _, r := range result.Rejections {
		p.Rejected[r.Reason]++
	}

	counts := make(map[string]map[string]int)
	for _, rec := range result.Records {
		if p.Earliest.IsZero() || rec.OrderTime.Before(p.Earliest) {
			p.Earliest = rec.OrderTime
		}
		if rec.OrderTime.After(p.Latest) {
			p.Latest = rec.OrderTime
		}
		for col, v := range rec.Dimensions {
			if counts[col] == nil {
				counts[col] = make(map[string]int)
			}
			counts[col][v]++
		}
	}

	for col, values := range counts {
		if len(values) > maxProfiledValues {
			continue
		}
		list := make([]ValueCount, 0, len(values))
		for v, n := range values {
			list = append(list, ValueCount{Value: v, Count: n})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Count != list[j].Count {
				return list[i].Count > list[j].Count
			}
			return list[i].Value < list[j].Value
		})
		p.Dimensions[col] = list
	}

	return p
}

// RejectedTotal is the number of rejected rows.
func (p *Profile) RejectedTotal() int {
	n := 0
	for _, c := range p.Rejected {
		n += c
	}
	return n
}
