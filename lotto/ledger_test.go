package lotto

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*TicketLedger, *LocalTicketOwnership) {
	ownership := NewLocalTicketOwnership()
	ledger := NewTicketLedger(3, 15, ownership)
	ownership.SetTransferHook(ledger.OnOwnershipTransfer)
	return ledger, ownership
}

func TestRecordTickets(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ledger, ownership := newTestLedger(t)
	holder := ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")

	ids, err := ledger.RecordTickets(0, []TicketSpec{
		{Holder: holder, Balls: []uint8{1, 2, 3}},
		{Holder: holder, Balls: []uint8{1, 2, 3}},
		{Holder: holder, Balls: []uint8{4, 5, 6}},
		{Holder: holder}, // dummy
	})
	require.NoError(err)
	assert.Equal([]uint64{1, 2, 3, 4}, ids)

	rec, ok := ledger.Get(1)
	require.True(ok)
	assert.Equal(uint64(0), rec.GameID)
	assert.Equal(PickIDOf([]uint8{1, 2, 3}), rec.Pick)

	dummy, ok := ledger.Get(4)
	require.True(ok)
	assert.True(dummy.Pick.IsZero())

	assert.Equal(uint64(2), ledger.CountWithPick(0, PickIDOf([]uint8{1, 2, 3})))
	assert.Equal(uint64(1), ledger.CountWithPick(0, PickIDOf([]uint8{4, 5, 6})))
	assert.Equal(uint64(0), ledger.CountWithPick(1, PickIDOf([]uint8{1, 2, 3})))

	assert.Equal(uint64(4), ledger.TotalMinted())
	assert.Equal(uint64(4), ledger.Circulating())

	owner, err := ownership.OwnerOf(1)
	require.NoError(err)
	assert.Equal(holder, owner)
}

func TestRecordTicketsRejectsBatch(t *testing.T) {
	ledger, _ := newTestLedger(t)
	holder := ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")

	_, err := ledger.RecordTickets(0, []TicketSpec{
		{Holder: holder, Balls: []uint8{1, 2, 3}},
		{Holder: holder, Balls: []uint8{3, 2, 1}},
	})
	assert.ErrorIs(t, err, ErrUnsortedPick)

	// Nothing from the rejected batch was recorded or minted.
	_, ok := ledger.Get(1)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), ledger.TotalMinted())
}

func TestRecordTicketsMintFailureUnwind(t *testing.T) {
	require := require.New(t)

	ownership := newStubTicketOwnership()
	ledger := NewTicketLedger(3, 15, ownership)
	ownership.SetTransferHook(ledger.OnOwnershipTransfer)
	holder := ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")

	ownership.mintErr = errors.New("mint reverted")
	ownership.mintsLeft = 1
	_, err := ledger.RecordTickets(0, []TicketSpec{
		{Holder: holder, Balls: []uint8{1, 2, 3}},
		{Holder: holder, Balls: []uint8{4, 5, 6}},
	})
	require.Error(err)

	// The whole batch was unwound: no records, no index entries, and the
	// ticket minted before the failure was burned back.
	_, ok := ledger.Get(1)
	require.False(ok)
	require.Equal(uint64(0), ledger.CountWithPick(0, PickIDOf([]uint8{1, 2, 3})))
	require.Equal(uint64(0), ledger.Circulating())
	_, err = ownership.OwnerOf(1)
	require.Error(err)

	// The ids were released for the next batch.
	ownership.mintErr = nil
	ids, err := ledger.RecordTickets(0, []TicketSpec{{Holder: holder, Balls: []uint8{1, 2, 3}}})
	require.NoError(err)
	require.Equal([]uint64{1}, ids)
}

func TestSupplyCounters(t *testing.T) {
	require := require.New(t)

	ledger, ownership := newTestLedger(t)
	holder := ethcommon.HexToAddress("0x1111111111111111111111111111111111111111")
	other := ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")

	ids, err := ledger.RecordTickets(0, []TicketSpec{
		{Holder: holder, Balls: []uint8{1, 2, 3}},
		{Holder: holder, Balls: []uint8{4, 5, 6}},
	})
	require.NoError(err)

	// Holder-to-holder transfers leave both counters alone.
	require.NoError(ownership.Transfer(ids[0], other))
	require.Equal(uint64(2), ledger.TotalMinted())
	require.Equal(uint64(2), ledger.Circulating())

	// Burning shrinks circulation but never the mint count.
	require.NoError(ownership.Burn(ids[1]))
	require.Equal(uint64(2), ledger.TotalMinted())
	require.Equal(uint64(1), ledger.Circulating())
}
