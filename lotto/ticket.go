package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// TicketSpec is one requested ticket in a purchase batch: the address that
// will hold the minted ticket and the chosen balls. An empty Balls slice
// buys a dummy ticket, a donation that can never win.
type TicketSpec struct {
	Holder ethcommon.Address
	Balls  []uint8
}

// TicketRecord is the immutable per-ticket state kept by the ledger. Who
// currently holds the ticket is delegated to the TicketOwnership
// collaborator.
type TicketRecord struct {
	GameID uint64
	Pick   PickID
}

// PrizeToken is an interface which serves as an abstraction over the
// fungible token custodied as the prize pool. The engine assumes
// exact-amount, non-reentrant transfers; a fee-on-transfer token would
// break the conservation invariant.
type PrizeToken interface {
	// Address returns the token contract address, used to guard the
	// stray-token sweep against draining the prize pool.
	Address() ethcommon.Address

	// Transfer moves amount from the engine's custody to the given address.
	Transfer(to ethcommon.Address, amount *big.Int) error

	// TransferFrom pulls amount from a payer into the engine's custody.
	TransferFrom(from, to ethcommon.Address, amount *big.Int) error

	// BalanceOf returns the token balance held by an address.
	BalanceOf(addr ethcommon.Address) (*big.Int, error)
}

// TicketOwnership is an interface which serves as an abstraction over the
// non-fungible ownership ledger for tickets. The engine mints on purchase
// and burns consolation claims; everything else (transfers, approvals) is
// the collaborator's business, reported back through the ledger's
// OnOwnershipTransfer hook.
type TicketOwnership interface {
	Mint(to ethcommon.Address, ticketID uint64) error
	Burn(ticketID uint64) error
	OwnerOf(ticketID uint64) (ethcommon.Address, error)
}

// RandomnessSource is an interface which serves as an abstraction over the
// external verifiable-random-function oracle. RequestRandomness is the
// outbound half; the oracle later calls Engine.ReceiveRandomness with the
// same request id.
type RandomnessSource interface {
	// Address identifies the oracle; fulfillment calls from any other
	// address are rejected.
	Address() ethcommon.Address

	// RequestRandomness issues a new randomness request and returns its id.
	RequestRandomness() (uint64, error)
}

// TicketRenderer produces token metadata for tickets. SetRenderer probes
// the capability before accepting a renderer, mirroring an on-chain
// ERC-165 check.
type TicketRenderer interface {
	SupportsTicketRendering() bool
	TokenURI(ticketID uint64, rec TicketRecord, winning PickID) (string, error)
}
