package common

import (
	"math/big"
	"path/filepath"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckysum/go-lotto/lotto"
)

func tmpDB(t *testing.T) *DB {
	db, err := InitDB(filepath.Join(t.TempDir(), "lotto.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func testSnapshot() *lotto.Snapshot {
	winning := lotto.PickIDOf([]uint8{2, 7, 11})
	return &lotto.Snapshot{
		State:            lotto.DrawPending,
		GameID:           3,
		Apocalypse:       true,
		LastSeededAt:     1700000100,
		RequestInFlight:  true,
		RequestID:        12,
		RequestTimestamp: 1700000200,
		TicketPrice:      big.NewInt(1500),
		Jackpot:          new(big.Int).SetUint64(1 << 63), // survives int64 overflow
		UnclaimedPayouts: big.NewInt(777),
		AccruedFees:      big.NewInt(33),
		Games: map[uint64]lotto.Game{
			2: {TicketsSold: 5, StartedAt: 1699990000, WinningPick: winning},
			3: {TicketsSold: 1, StartedAt: 1700000000},
		},
		Tickets: map[uint64]lotto.TicketRecord{
			1: {GameID: 2, Pick: winning},
			2: {GameID: 2},
			3: {GameID: 3, Pick: lotto.PickIDOf([]uint8{1, 2, 3})},
		},
		NextTicketID:   4,
		Minted:         3,
		Circulating:    2,
		Claimed:        map[uint64]bool{1: true},
		ClaimedWinners: map[uint64]uint64{2: 1},
		Beneficiaries: map[ethcommon.Address]string{
			ethcommon.HexToAddress("0x1111111111111111111111111111111111111111"): "Community Pool",
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	db := tmpDB(t)
	want := testSnapshot()
	require.NoError(db.SaveSnapshot(want))

	got, err := db.LoadSnapshot()
	require.NoError(err)
	require.NotNil(got)

	assert.Equal(want.State, got.State)
	assert.Equal(want.GameID, got.GameID)
	assert.Equal(want.Apocalypse, got.Apocalypse)
	assert.Equal(want.LastSeededAt, got.LastSeededAt)
	assert.Equal(want.RequestInFlight, got.RequestInFlight)
	assert.Equal(want.RequestID, got.RequestID)
	assert.Equal(want.RequestTimestamp, got.RequestTimestamp)
	assert.Equal(want.TicketPrice.String(), got.TicketPrice.String())
	assert.Equal(want.Jackpot.String(), got.Jackpot.String())
	assert.Equal(want.UnclaimedPayouts.String(), got.UnclaimedPayouts.String())
	assert.Equal(want.AccruedFees.String(), got.AccruedFees.String())
	assert.Equal(want.Games, got.Games)
	assert.Equal(want.Tickets, got.Tickets)
	assert.Equal(want.NextTicketID, got.NextTicketID)
	assert.Equal(want.Minted, got.Minted)
	assert.Equal(want.Circulating, got.Circulating)
	assert.Equal(want.Claimed, got.Claimed)
	assert.Equal(want.ClaimedWinners, got.ClaimedWinners)
	assert.Equal(want.Beneficiaries, got.Beneficiaries)
}

func TestSaveSnapshotReplaces(t *testing.T) {
	require := require.New(t)

	db := tmpDB(t)
	require.NoError(db.SaveSnapshot(testSnapshot()))

	// A later snapshot with fewer rows fully replaces the earlier one.
	next := testSnapshot()
	next.GameID = 4
	next.Games = map[uint64]lotto.Game{4: {StartedAt: 1700001000}}
	next.Tickets = map[uint64]lotto.TicketRecord{}
	next.Claimed = map[uint64]bool{}
	next.ClaimedWinners = map[uint64]uint64{}
	require.NoError(db.SaveSnapshot(next))

	got, err := db.LoadSnapshot()
	require.NoError(err)
	require.Equal(uint64(4), got.GameID)
	require.Len(got.Games, 1)
	require.Empty(got.Tickets)
	require.Empty(got.Claimed)
	require.Empty(got.ClaimedWinners)
}

func TestLoadSnapshotEmpty(t *testing.T) {
	db := tmpDB(t)
	got, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, got)
}
