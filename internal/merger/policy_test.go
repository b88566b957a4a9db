package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/pos-ledger-merger/internal/types"
)

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, LastBatchWinsName, p.Name())

	p, err = PolicyByName("first-batch-wins")
	require.NoError(t, err)
	assert.Equal(t, FirstBatchWinsName, p.Name())

	_, err = PolicyByName("newest-wins")
	require.Error(t, err)
}

func TestPolicyResolve(t *testing.T) {
	contenders := []types.OrderRecord{
		{OrderID: "1", Origin: types.Origin{BatchID: "a", Priority: 1}},
		{OrderID: "1", Origin: types.Origin{BatchID: "b", Priority: 2}},
		{OrderID: "1", Origin: types.Origin{BatchID: "c", Priority: 3}},
	}

	assert.Equal(t, 2, LastBatchWins{}.Resolve(contenders))
	assert.Equal(t, 0, FirstBatchWins{}.Resolve(contenders))
}

func TestIntegrityConsistent(t *testing.T) {
	ok := Integrity{TotalRecords: 4, UniqueOrderIDs: 4, RowsRead: 6, RejectedRecords: 1, RecordsSuperseded: 1}
	assert.True(t, ok.Consistent())

	lost := ok
	lost.TotalRecords, lost.UniqueOrderIDs = 3, 3
	assert.False(t, lost.Consistent())

	dup := ok
	dup.UniqueOrderIDs = 3
	assert.False(t, dup.Consistent())
}
