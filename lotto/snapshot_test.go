package lotto

import (
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))
	require.NoError(h.engine.SetBeneficiary(testOwner, testBuyer, "Buyer Collective"))

	winning := DrawPick(3, 15, claimSeed)
	h.buy(testBuyer, winning, losingPick(t))
	h.finishRound(claimSeed)
	h.buy(testBuyer, losingPick(t))

	snap := h.engine.Snapshot()

	// Restore into a fresh engine over the same collaborators.
	restored, err := NewEngine(defaultConfig(), testOwner, testSelf, h.token, h.ownership, h.oracle, ethcommon.Address{})
	require.NoError(err)
	require.NoError(restored.Restore(snap))

	assert.Equal(h.engine.State(), restored.State())
	assert.Equal(h.engine.GameID(), restored.GameID())
	assert.Equal(h.engine.Jackpot(), restored.Jackpot())
	assert.Equal(h.engine.UnclaimedPayouts(), restored.UnclaimedPayouts())
	assert.Equal(h.engine.AccruedFees(), restored.AccruedFees())
	assert.Equal(h.engine.TicketPrice(), restored.TicketPrice())

	g, ok := restored.GameInfo(0)
	require.True(ok)
	assert.Equal(PickIDOf(winning), g.WinningPick)

	rec, ok := restored.TicketInfo(1)
	require.True(ok)
	assert.Equal(PickIDOf(winning), rec.Pick)

	name, ok := restored.BeneficiaryName(testBuyer)
	require.True(ok)
	assert.Equal("Buyer Collective", name)

	// The pick index was rebuilt: the game 0 winner is claimable through
	// the restored engine.
	payout, err := restored.Claim(1)
	require.NoError(err)
	assert.Equal(int64(180), payout.Int64())
}

func TestSnapshotRestoreMidDraw(t *testing.T) {
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))
	h.buy(testBuyer, []uint8{1, 2, 3})
	h.advance(time.Hour)
	require.NoError(h.engine.Draw())
	reqID, ts, ok := h.engine.RandomnessRequest()
	require.True(ok)

	snap := h.engine.Snapshot()
	restored, err := NewEngine(defaultConfig(), testOwner, testSelf, h.token, h.ownership, h.oracle, ethcommon.Address{})
	require.NoError(err)
	require.NoError(restored.Restore(snap))

	require.Equal(DrawPending, restored.State())
	gotID, gotTS, ok := restored.RandomnessRequest()
	require.True(ok)
	require.Equal(reqID, gotID)
	require.Equal(ts, gotTS)

	// The restored request resolves normally.
	require.NoError(restored.ReceiveRandomness(testOracle, reqID, []*big.Int{claimSeed.Big()}))
	require.Equal(Purchase, restored.State())
}

func TestRestoreRejectsInvalidSnapshot(t *testing.T) {
	h := newHarness(t, defaultConfig())

	// A pending draw without an in-flight request violates the request
	// invariant.
	snap := h.engine.Snapshot()
	snap.State = DrawPending
	assert.Error(t, h.engine.Restore(snap))

	// The current game record must exist.
	snap = h.engine.Snapshot()
	snap.GameID = 99
	assert.Error(t, h.engine.Restore(snap))
}
