package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Owner-privileged admin surface. Every operation here checks the caller
// against the owner configured at construction.

func (e *Engine) requireOwner(caller ethcommon.Address) error {
	if caller != e.owner {
		return errorf(ErrNotOwner, "caller=%v", caller.Hex())
	}
	return nil
}

// SetBeneficiary registers a beneficiary with a display name, or updates
// the name of an existing one.
func (e *Engine) SetBeneficiary(caller, beneficiary ethcommon.Address, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if err := e.acct.SetBeneficiary(beneficiary, name); err != nil {
		return err
	}
	glog.Infof("beneficiary set addr=%v name=%q", beneficiary.Hex(), name)
	return nil
}

// RemoveBeneficiary drops a beneficiary and clears its display name.
func (e *Engine) RemoveBeneficiary(caller, beneficiary ethcommon.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.acct.RemoveBeneficiary(beneficiary)
	glog.Infof("beneficiary removed addr=%v", beneficiary.Hex())
	return nil
}

// BeneficiaryName returns the display name of a registered beneficiary.
func (e *Engine) BeneficiaryName(beneficiary ethcommon.Address) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.BeneficiaryName(beneficiary)
}

// SetTicketPrice changes the per-ticket price for future purchases.
func (e *Engine) SetTicketPrice(caller ethcommon.Address, price *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if price == nil || price.Sign() <= 0 {
		return errors.Errorf("ticket price %v must be positive", price)
	}
	e.ticketPrice = new(big.Int).Set(price)
	glog.Infof("ticket price set price=%v", price)
	return nil
}

// SetRenderer configures the ticket metadata renderer after probing its
// capability, the way an on-chain deployment would check ERC-165 support
// before accepting the address.
func (e *Engine) SetRenderer(caller ethcommon.Address, renderer TicketRenderer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if renderer == nil || !renderer.SupportsTicketRendering() {
		return ErrRendererUnsupported
	}
	e.renderer = renderer
	return nil
}

// WithdrawFees pays out the accrued community fees to the given address
// and returns the amount withdrawn.
func (e *Engine) WithdrawFees(caller, to ethcommon.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	amount, err := e.acct.WithdrawFees(to)
	if err != nil {
		return nil, err
	}
	glog.Infof("community fees withdrawn to=%v amount=%v", to.Hex(), amount)
	return amount, nil
}

// SweepStrayToken recovers tokens accidentally sent to the engine's
// custody address. The prize token itself is refused: its balance backs
// the jackpot, unclaimed-payout and fee registers.
func (e *Engine) SweepStrayToken(caller ethcommon.Address, stray PrizeToken, to ethcommon.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}
	if stray.Address() == e.token.Address() {
		return nil, errors.New("cannot sweep the prize token")
	}
	balance, err := stray.BalanceOf(e.self)
	if err != nil {
		return nil, err
	}
	if balance.Sign() > 0 {
		if err := stray.Transfer(to, balance); err != nil {
			return nil, err
		}
	}
	glog.Infof("stray token swept token=%v to=%v amount=%v", stray.Address().Hex(), to.Hex(), balance)
	return balance, nil
}
