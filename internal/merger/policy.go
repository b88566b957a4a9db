package merger

import (
	"fmt"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

// Policy chooses the surviving record among records sharing an order id.
type Policy interface {
	// Name is the policy's configuration name.
	Name() string

	// Resolve returns the index of the winner. Contenders are ordered by
	// batch priority ascending, then by source row.
	Resolve(contenders []types.OrderRecord) int
}

// Policy names.
const (
	LastBatchWinsName  = "last-batch-wins"
	FirstBatchWinsName = "first-batch-wins"
)

// LastBatchWins keeps the record from the highest-priority batch.
type LastBatchWins struct{}

func (LastBatchWins) Name() string { return LastBatchWinsName }

func (LastBatchWins) Resolve(contenders []types.OrderRecord) int { return len(contenders) - 1 }

// FirstBatchWins keeps the record from the lowest-priority batch.
type FirstBatchWins struct{}

func (FirstBatchWins) Name() string { return FirstBatchWinsName }

func (FirstBatchWins) Resolve([]types.OrderRecord) int { return 0 }

// PolicyByName returns the named policy. An empty name selects
// last-batch-wins.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case LastBatchWinsName, "":
		return LastBatchWins{}, nil
	case FirstBatchWinsName:
		return FirstBatchWins{}, nil
	}
	return nil, fmt.Errorf("unknown conflict policy %q", name)
}
