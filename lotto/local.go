package lotto

import (
	"crypto/rand"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// In-memory collaborator implementations for local/off-chain deployments.
// They model the external ledgers' observable behavior (exact-amount
// transfers, mint/burn/ownerOf, request/fulfill) without any chain.

// LocalPrizeToken is an in-memory fungible token ledger. The engine's
// custody address is fixed at construction; Transfer debits it, matching
// the on-chain call shape where the engine is the caller.
type LocalPrizeToken struct {
	addr      ethcommon.Address
	custodian ethcommon.Address
	balances  map[ethcommon.Address]*big.Int
}

// NewLocalPrizeToken returns an empty token ledger at addr with the given
// engine custody address.
func NewLocalPrizeToken(addr, custodian ethcommon.Address) *LocalPrizeToken {
	return &LocalPrizeToken{
		addr:      addr,
		custodian: custodian,
		balances:  make(map[ethcommon.Address]*big.Int),
	}
}

// Issue credits freshly issued tokens to an address.
func (t *LocalPrizeToken) Issue(to ethcommon.Address, amount *big.Int) {
	t.credit(to, amount)
}

func (t *LocalPrizeToken) Address() ethcommon.Address {
	return t.addr
}

func (t *LocalPrizeToken) Transfer(to ethcommon.Address, amount *big.Int) error {
	return t.move(t.custodian, to, amount)
}

func (t *LocalPrizeToken) TransferFrom(from, to ethcommon.Address, amount *big.Int) error {
	return t.move(from, to, amount)
}

func (t *LocalPrizeToken) BalanceOf(addr ethcommon.Address) (*big.Int, error) {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (t *LocalPrizeToken) move(from, to ethcommon.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.Errorf("negative transfer amount %v", amount)
	}
	b, ok := t.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return errors.Errorf("insufficient balance addr=%v have=%v want=%v", from.Hex(), b, amount)
	}
	b.Sub(b, amount)
	t.credit(to, amount)
	return nil
}

func (t *LocalPrizeToken) credit(to ethcommon.Address, amount *big.Int) {
	if b, ok := t.balances[to]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[to] = new(big.Int).Set(amount)
}

// LocalTicketOwnership is an in-memory non-fungible ownership ledger. Its
// transfer hook keeps the ticket ledger's circulating-supply counter
// accurate.
type LocalTicketOwnership struct {
	owners map[uint64]ethcommon.Address
	hook   func(from, to ethcommon.Address)
}

// NewLocalTicketOwnership returns an empty ownership ledger.
func NewLocalTicketOwnership() *LocalTicketOwnership {
	return &LocalTicketOwnership{owners: make(map[uint64]ethcommon.Address)}
}

// SetTransferHook wires the supply hook, normally
// TicketLedger.OnOwnershipTransfer.
func (o *LocalTicketOwnership) SetTransferHook(hook func(from, to ethcommon.Address)) {
	o.hook = hook
}

func (o *LocalTicketOwnership) Mint(to ethcommon.Address, ticketID uint64) error {
	if _, ok := o.owners[ticketID]; ok {
		return errors.Errorf("ticket %v already minted", ticketID)
	}
	o.owners[ticketID] = to
	if o.hook != nil {
		o.hook(ethcommon.Address{}, to)
	}
	return nil
}

func (o *LocalTicketOwnership) Burn(ticketID uint64) error {
	from, ok := o.owners[ticketID]
	if !ok {
		return errors.Errorf("ticket %v does not exist", ticketID)
	}
	delete(o.owners, ticketID)
	if o.hook != nil {
		o.hook(from, ethcommon.Address{})
	}
	return nil
}

func (o *LocalTicketOwnership) OwnerOf(ticketID uint64) (ethcommon.Address, error) {
	owner, ok := o.owners[ticketID]
	if !ok {
		return ethcommon.Address{}, errors.Errorf("ticket %v does not exist", ticketID)
	}
	return owner, nil
}

// Transfer moves a ticket between holders, reporting through the hook.
func (o *LocalTicketOwnership) Transfer(ticketID uint64, to ethcommon.Address) error {
	from, ok := o.owners[ticketID]
	if !ok {
		return errors.Errorf("ticket %v does not exist", ticketID)
	}
	o.owners[ticketID] = to
	if o.hook != nil {
		o.hook(from, to)
	}
	return nil
}

// LocalRandomnessSource hands out sequential request ids and fulfills them
// with crypto/rand words. Off-chain deployments use it in place of a VRF
// coordinator; the draw loop calls Fulfill after each request.
type LocalRandomnessSource struct {
	addr   ethcommon.Address
	nextID uint64
}

// NewLocalRandomnessSource returns a source identified by addr.
func NewLocalRandomnessSource(addr ethcommon.Address) *LocalRandomnessSource {
	return &LocalRandomnessSource{addr: addr, nextID: 1}
}

func (s *LocalRandomnessSource) Address() ethcommon.Address {
	return s.addr
}

func (s *LocalRandomnessSource) RequestRandomness() (uint64, error) {
	id := s.nextID
	s.nextID++
	return id, nil
}

// Fulfill delivers a random word for the given request id to the engine.
func (s *LocalRandomnessSource) Fulfill(e *Engine, requestID uint64) error {
	word := make([]byte, 32)
	if _, err := rand.Read(word); err != nil {
		return err
	}
	return e.ReceiveRandomness(s.addr, requestID, []*big.Int{new(big.Int).SetBytes(word)})
}
