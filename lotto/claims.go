package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"

	"github.com/luckysum/go-lotto/monitor"
)

// Claim resolves a ticket against the last completed round and pays out
// its share of the unclaimed pool to the ticket's current holder. Claims
// are rejected mid-draw so a payout can never straddle a game-id
// transition.
//
// Winner path: the pool is split progressively over the winners that have
// not cashed out yet, so the last claimant never divides by zero and
// rounding dust favors earlier claimants by at most one smallest unit
// each. The winning ticket is kept as a trophy; a claimed marker is the
// nullifier.
//
// Consolation path: when the lottery has terminated with nobody holding
// the winning pick, every live ticket, whatever round it was bought in,
// shares the pool equally. The ticket is burned as the claim nullifier,
// which also removes it from the divisor.
func (e *Engine) Claim(ticketID uint64) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == DrawPending {
		return nil, errorf(ErrUnexpectedState, "claims closed during draw")
	}

	holder, err := e.ownership.OwnerOf(ticketID)
	if err != nil {
		return nil, errorf(ErrNonexistentTicket, "ticketID=%v", ticketID)
	}
	rec, ok := e.ledger.Get(ticketID)
	if !ok {
		return nil, errorf(ErrNonexistentTicket, "ticketID=%v", ticketID)
	}

	// Terminal consolation: the final game resolved with zero winners, so
	// the claim window does not apply; the pool belongs to every ticket
	// still in existence, whatever round it was bought in.
	if e.state == Dead {
		finalGame := e.gameID - 1
		if e.ledger.CountWithPick(finalGame, e.games[finalGame].WinningPick) == 0 {
			return e.claimConsolation(ticketID, holder)
		}
	}

	if e.gameID == 0 || rec.GameID != e.gameID-1 {
		return nil, errorf(ErrClaimWindowMissed, "ticket gameID=%v current=%v", rec.GameID, e.gameID)
	}

	g := e.games[rec.GameID]
	if rec.Pick.IsZero() || rec.Pick != g.WinningPick {
		return nil, errorf(ErrNoWin, "ticketID=%v gameID=%v", ticketID, rec.GameID)
	}

	return e.claimWinner(ticketID, rec.GameID, holder)
}

func (e *Engine) claimWinner(ticketID, gameID uint64, holder ethcommon.Address) (*big.Int, error) {
	if e.claimed[ticketID] {
		return nil, errorf(ErrAlreadyClaimed, "ticketID=%v", ticketID)
	}

	numWinners := e.ledger.CountWithPick(gameID, e.games[gameID].WinningPick)
	remaining := numWinners - e.claimedWinners[gameID]
	share := new(big.Int).Div(e.acct.UnclaimedPayouts(), new(big.Int).SetUint64(remaining))

	// Commit the nullifier and the debit before paying out. The engine
	// lock is held across the transfer, so no claim can interleave; on
	// transfer failure everything is restored and the claim aborts whole.
	e.claimed[ticketID] = true
	e.claimedWinners[gameID]++
	e.acct.DebitUnclaimed(share)

	if err := e.token.Transfer(holder, share); err != nil {
		delete(e.claimed, ticketID)
		e.claimedWinners[gameID]--
		e.acct.CreditUnclaimed(share)
		return nil, err
	}

	if monitor.Enabled {
		monitor.ClaimPaid(share)
	}
	glog.Infof("winner claim paid ticketID=%v gameID=%v holder=%v share=%v", ticketID, gameID, holder.Hex(), share)

	return share, nil
}

func (e *Engine) claimConsolation(ticketID uint64, holder ethcommon.Address) (*big.Int, error) {
	if e.claimed[ticketID] {
		return nil, errorf(ErrAlreadyClaimed, "ticketID=%v", ticketID)
	}

	// Each claim burns its ticket, so dividing by the live supply keeps
	// every share equal with no stranded remainder. The divisor can never
	// be zero here: the terminal transition is impossible with zero tickets
	// sold, since Draw rejects the kill in that case.
	live := e.ledger.Circulating()
	share := new(big.Int).Div(e.acct.UnclaimedPayouts(), new(big.Int).SetUint64(live))

	// The claimed marker goes in with the debit as a fallback nullifier in
	// case the burn below fails after the payout lands.
	e.claimed[ticketID] = true
	e.acct.DebitUnclaimed(share)
	if err := e.token.Transfer(holder, share); err != nil {
		delete(e.claimed, ticketID)
		e.acct.CreditUnclaimed(share)
		return nil, err
	}

	// Burning is the consolation nullifier. It is irreversible, so it
	// happens after the fallible transfer. A burn failure leaves the ticket
	// live, but the payout is already sent, so the claim still succeeds;
	// the claimed marker keeps a retry from paying twice.
	if err := e.ownership.Burn(ticketID); err != nil {
		glog.Errorf("error burning consolation ticket ticketID=%v err=%v", ticketID, err)
	}

	if monitor.Enabled {
		monitor.ClaimPaid(share)
	}
	glog.Infof("consolation claim paid ticketID=%v holder=%v share=%v", ticketID, holder.Hex(), share)

	return share, nil
}
