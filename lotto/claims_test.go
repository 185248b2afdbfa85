package lotto

import (
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var claimSeed = ethcommon.BytesToHash([]byte("claim seed"))

// losingPick returns a valid pick guaranteed not to match the winning pick
// derived from claimSeed.
func losingPick(t *testing.T) []uint8 {
	winning := PickIDOf(DrawPick(3, 15, claimSeed))
	for _, candidate := range [][]uint8{{1, 2, 3}, {4, 5, 6}} {
		if PickIDOf(candidate) != winning {
			return candidate
		}
	}
	t.Fatal("no losing pick available")
	return nil
}

func TestClaimWinner(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	winning := DrawPick(3, 15, claimSeed)
	ids := h.buy(testBuyer, winning, losingPick(t))
	h.finishRound(claimSeed)

	// Pot is 180 (two tickets at 100 minus the 10% community fee), one
	// winner takes it all.
	payout, err := h.engine.Claim(ids[0])
	require.NoError(err)
	assert.Equal(int64(180), payout.Int64())
	assert.Equal(int64(0), h.engine.UnclaimedPayouts().Int64())

	bal, err := h.token.BalanceOf(testBuyer)
	require.NoError(err)
	assert.Equal(int64(980), bal.Int64())

	// The winning ticket is kept as a trophy; the claimed marker is the
	// nullifier.
	_, err = h.engine.Claim(ids[0])
	assert.ErrorIs(err, ErrAlreadyClaimed)
	owner, err := h.ownership.OwnerOf(ids[0])
	require.NoError(err)
	assert.Equal(testBuyer, owner)

	// The losing ticket never pays.
	_, err = h.engine.Claim(ids[1])
	assert.ErrorIs(err, ErrNoWin)
}

func TestClaimProgressiveShares(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	winning := DrawPick(3, 15, claimSeed)
	ids := h.buy(testBuyer, winning, winning, winning)
	h.finishRound(claimSeed)

	// Pot is 270 split progressively over the remaining winners:
	// 270/3 = 90, then 180/2 = 90, then 90/1 = 90.
	for _, id := range ids {
		payout, err := h.engine.Claim(id)
		require.NoError(err)
		assert.Equal(int64(90), payout.Int64())
	}
	assert.Equal(int64(0), h.engine.UnclaimedPayouts().Int64())
}

func TestClaimWindow(t *testing.T) {
	assert := assert.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	winning := DrawPick(3, 15, claimSeed)
	ids := h.buy(testBuyer, winning)

	// Game 0 is still running: nothing is claimable yet.
	_, err := h.engine.Claim(ids[0])
	assert.ErrorIs(err, ErrClaimWindowMissed)

	h.finishRound(claimSeed)

	// Let the window lapse: one more full round.
	h.buy(testBuyer, losingPick(t))
	h.finishRound(claimSeed)

	_, err = h.engine.Claim(ids[0])
	assert.ErrorIs(err, ErrClaimWindowMissed)
}

func TestClaimRejections(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	_, err := h.engine.Claim(42)
	assert.ErrorIs(err, ErrNonexistentTicket)

	// Claims are closed mid-draw.
	ids := h.buy(testBuyer, DrawPick(3, 15, claimSeed))
	h.advance(time.Hour)
	require.NoError(h.engine.Draw())
	_, err = h.engine.Claim(ids[0])
	assert.ErrorIs(err, ErrUnexpectedState)

	// A dummy ticket can never win, even against an undrawn game record.
	reqID, _, _ := h.engine.RandomnessRequest()
	require.NoError(h.engine.ReceiveRandomness(testOracle, reqID, []*big.Int{claimSeed.Big()}))
	dummyIDs, err := h.engine.Purchase(testBuyer, []TicketSpec{{Holder: testBuyer}}, nil)
	require.NoError(err)
	h.finishRound(claimSeed)
	_, err = h.engine.Claim(dummyIDs[0])
	assert.ErrorIs(err, ErrNoWin)
}

func TestClaimTransferFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	ids := h.buy(testBuyer, DrawPick(3, 15, claimSeed))
	h.finishRound(claimSeed)

	h.token.transferErr = errors.New("transfer reverted")
	_, err := h.engine.Claim(ids[0])
	require.Error(err)

	// The failed payout rolled the claim back whole.
	assert.Equal(int64(90), h.engine.UnclaimedPayouts().Int64())

	h.token.transferErr = nil
	payout, err := h.engine.Claim(ids[0])
	require.NoError(err)
	assert.Equal(int64(90), payout.Int64())
}

func TestConsolationBurnFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	require.NoError(h.engine.Kill(testOwner))
	ids := h.buy(testBuyer, losingPick(t), losingPick(t))
	h.finishRound(claimSeed)
	require.Equal(Dead, h.engine.State())

	// Pot is 180 over two live tickets. The payout lands even though the
	// burn fails; the claimed marker is the fallback nullifier, so a retry
	// cannot pay twice.
	h.ownership.burnErr = errors.New("burn reverted")
	payout, err := h.engine.Claim(ids[0])
	require.NoError(err)
	assert.Equal(int64(90), payout.Int64())
	_, err = h.engine.Claim(ids[0])
	assert.ErrorIs(err, ErrAlreadyClaimed)

	// The unburned ticket still counts toward the divisor, so the second
	// claim takes its share of the remaining pool over both live tickets.
	// The stranded remainder is the cost of the failed burn.
	h.ownership.burnErr = nil
	payout, err = h.engine.Claim(ids[1])
	require.NoError(err)
	assert.Equal(int64(45), payout.Int64())
	assert.Equal(int64(45), h.engine.UnclaimedPayouts().Int64())

	ok, err := h.engine.CheckConservation()
	require.NoError(err)
	assert.True(ok)
}

func TestConsolationClaims(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := newHarness(t, defaultConfig())
	h.token.Issue(testBuyer, big.NewInt(1000))

	// Round 0 sells a ticket that misses, so its pick stays minted for the
	// consolation divisor even though its claim window lapses.
	oldIDs := h.buy(testBuyer, losingPick(t))
	h.finishRound(claimSeed)

	// Terminal round: two more losing tickets, then the kill resolves with
	// zero winners.
	require.NoError(h.engine.Kill(testOwner))
	newIDs := h.buy(testBuyer, losingPick(t), losingPick(t))
	h.finishRound(claimSeed)
	require.Equal(Dead, h.engine.State())

	// Pot: 90 from round 0 (folded back) plus 180 from round 1 = 270,
	// shared equally by all 3 tickets ever minted, claim window bypassed.
	payout, err := h.engine.Claim(oldIDs[0])
	require.NoError(err)
	assert.Equal(int64(90), payout.Int64())

	// The burn is the consolation nullifier.
	_, err = h.engine.Claim(oldIDs[0])
	assert.ErrorIs(err, ErrNonexistentTicket)
	_, err = h.ownership.OwnerOf(oldIDs[0])
	assert.Error(err)

	for _, id := range newIDs {
		payout, err := h.engine.Claim(id)
		require.NoError(err)
		assert.Equal(int64(90), payout.Int64())
	}
	assert.Equal(int64(0), h.engine.UnclaimedPayouts().Int64())

	ok, err := h.engine.CheckConservation()
	require.NoError(err)
	assert.True(ok)
}
