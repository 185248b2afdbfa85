package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
)

const feeDenominator = 10000

// Accounting owns the pooled-fund registers: the growing jackpot for the
// active round, the finalized unclaimed-payouts pool for the previous
// round, and accrued community fees. All amounts are denominated in the
// prize token's smallest unit. Mutations preserve the conservation
// invariant: the engine's custodied balance always covers
// jackpot + unclaimedPayouts + accruedCommunityFees.
type Accounting struct {
	token PrizeToken
	self  ethcommon.Address

	jackpot           *big.Int
	unclaimed         *big.Int
	fees              *big.Int
	protocolRecipient ethcommon.Address

	beneficiaries map[ethcommon.Address]string
}

// NewAccounting returns zeroed registers custodied at the given address.
// protocolRecipient may be the zero address, in which case the protocol
// fee share is never taken.
func NewAccounting(token PrizeToken, self, protocolRecipient ethcommon.Address) *Accounting {
	return &Accounting{
		token:             token,
		self:              self,
		jackpot:           new(big.Int),
		unclaimed:         new(big.Int),
		fees:              new(big.Int),
		protocolRecipient: protocolRecipient,
		beneficiaries:     make(map[ethcommon.Address]string),
	}
}

// Jackpot returns a copy of the active jackpot register.
func (a *Accounting) Jackpot() *big.Int {
	return new(big.Int).Set(a.jackpot)
}

// UnclaimedPayouts returns a copy of the unclaimed-payouts register.
func (a *Accounting) UnclaimedPayouts() *big.Int {
	return new(big.Int).Set(a.unclaimed)
}

// AccruedFees returns a copy of the accrued community fee register.
func (a *Accounting) AccruedFees() *big.Int {
	return new(big.Int).Set(a.fees)
}

// ApplyPurchase splits a purchase price into community, protocol and
// jackpot shares. The community and protocol shares are each computed
// independently from the total and the jackpot takes the exact remainder,
// so no rounding dust ever leaks out of the registers. If a beneficiary is
// given it must already be registered and receives the community share
// immediately; otherwise the share accrues.
//
// Caller must have already pulled totalPrice into custody; the only
// outbound transfers here are the immediate fee payouts, issued after all
// register writes.
func (a *Accounting) ApplyPurchase(totalPrice *big.Int, communityFeeBps, protocolFeeBps uint64, beneficiary *ethcommon.Address) error {
	community := feeShare(totalPrice, communityFeeBps)
	protocol := new(big.Int)
	if a.protocolRecipient != (ethcommon.Address{}) {
		protocol = feeShare(totalPrice, protocolFeeBps)
	}

	jackpotShare := new(big.Int).Sub(totalPrice, community)
	jackpotShare.Sub(jackpotShare, protocol)

	if beneficiary != nil {
		if _, ok := a.beneficiaries[*beneficiary]; !ok {
			return errorf(ErrUnknownBeneficiary, "beneficiary=%v", beneficiary.Hex())
		}
	}

	a.jackpot.Add(a.jackpot, jackpotShare)
	if beneficiary == nil {
		a.fees.Add(a.fees, community)
	}

	// Roll every register write in this call back if an outbound fee
	// transfer fails; the purchase aborts whole, with accounting untouched.
	rollback := func() {
		a.jackpot.Sub(a.jackpot, jackpotShare)
		if beneficiary == nil {
			a.fees.Sub(a.fees, community)
		}
	}

	if beneficiary != nil && community.Sign() > 0 {
		if err := a.token.Transfer(*beneficiary, community); err != nil {
			rollback()
			return err
		}
	}
	if protocol.Sign() > 0 {
		if err := a.token.Transfer(a.protocolRecipient, protocol); err != nil {
			glog.Errorf("error paying protocol fee recipient=%v amount=%v err=%v", a.protocolRecipient.Hex(), protocol, err)
			rollback()
			return err
		}
	}

	return nil
}

// ApplySeed adds a donation directly to the jackpot. Minimum value and
// rate limiting are the state machine's business; seeding is only legal
// during the purchase phase.
func (a *Accounting) ApplySeed(value *big.Int) {
	a.jackpot.Add(a.jackpot, value)
}

// ApplyCrossChainContribution credits an already-transported amount to the
// jackpot. Cross-chain purchases bypass the fee split: the attached value
// arrived as a single sum and is treated wholly as jackpot contribution.
func (a *Accounting) ApplyCrossChainContribution(value *big.Int) {
	a.jackpot.Add(a.jackpot, value)
}

// Rollover moves funds between the two pooled registers at a round
// transition. With no winners and a live lottery the unclaimed pool folds
// back into the next jackpot. With winners, or at the terminal transition,
// everything moves into the claimable-only pool: won-but-unclaimed funds
// must not keep compounding into a jackpot nobody will see grow.
func (a *Accounting) Rollover(numWinners uint64, terminal bool) {
	total := new(big.Int).Add(a.jackpot, a.unclaimed)
	if numWinners == 0 && !terminal {
		a.jackpot.Set(total)
		a.unclaimed.SetUint64(0)
		return
	}
	a.jackpot.SetUint64(0)
	a.unclaimed.Set(total)
}

// DebitUnclaimed removes a payout share from the unclaimed pool. Credit
// restores it when a payout transfer fails and the claim is rolled back.
func (a *Accounting) DebitUnclaimed(share *big.Int) {
	a.unclaimed.Sub(a.unclaimed, share)
}

// CreditUnclaimed returns a share to the unclaimed pool.
func (a *Accounting) CreditUnclaimed(share *big.Int) {
	a.unclaimed.Add(a.unclaimed, share)
}

// WithdrawFees zeroes the community fee register and transfers the balance
// to the given address. The register write is rolled back if the transfer
// fails.
func (a *Accounting) WithdrawFees(to ethcommon.Address) (*big.Int, error) {
	amount := new(big.Int).Set(a.fees)
	a.fees.SetUint64(0)
	if amount.Sign() > 0 {
		if err := a.token.Transfer(to, amount); err != nil {
			a.fees.Set(amount)
			return nil, err
		}
	}
	return amount, nil
}

// SetBeneficiary registers or updates a beneficiary display name.
func (a *Accounting) SetBeneficiary(addr ethcommon.Address, name string) error {
	if name == "" {
		return errorf(ErrEmptyDisplayName, "beneficiary=%v", addr.Hex())
	}
	a.beneficiaries[addr] = name
	return nil
}

// RemoveBeneficiary drops a beneficiary and clears its name.
func (a *Accounting) RemoveBeneficiary(addr ethcommon.Address) {
	delete(a.beneficiaries, addr)
}

// BeneficiaryName returns the display name for a registered beneficiary.
func (a *Accounting) BeneficiaryName(addr ethcommon.Address) (string, bool) {
	name, ok := a.beneficiaries[addr]
	return name, ok
}

// CheckConservation verifies that custodied balance covers the registers.
// It is read-only and safe to call at any observable point.
func (a *Accounting) CheckConservation() (bool, error) {
	balance, err := a.token.BalanceOf(a.self)
	if err != nil {
		return false, err
	}
	need := new(big.Int).Add(a.jackpot, a.unclaimed)
	need.Add(need, a.fees)
	return balance.Cmp(need) >= 0, nil
}

// feeShare computes amount * bps / 10000, rounded down.
func feeShare(amount *big.Int, bps uint64) *big.Int {
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Div(share, big.NewInt(feeDenominator))
}
