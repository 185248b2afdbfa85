package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Test doubles with failure injection, layered over the Local*
// implementations.

type stubPrizeToken struct {
	*LocalPrizeToken

	transferErr     error
	transferFromErr error
	balanceErr      error
}

func newStubPrizeToken(addr, custodian ethcommon.Address) *stubPrizeToken {
	return &stubPrizeToken{LocalPrizeToken: NewLocalPrizeToken(addr, custodian)}
}

func (t *stubPrizeToken) Transfer(to ethcommon.Address, amount *big.Int) error {
	if t.transferErr != nil {
		return t.transferErr
	}
	return t.LocalPrizeToken.Transfer(to, amount)
}

func (t *stubPrizeToken) TransferFrom(from, to ethcommon.Address, amount *big.Int) error {
	if t.transferFromErr != nil {
		return t.transferFromErr
	}
	return t.LocalPrizeToken.TransferFrom(from, to, amount)
}

func (t *stubPrizeToken) BalanceOf(addr ethcommon.Address) (*big.Int, error) {
	if t.balanceErr != nil {
		return nil, t.balanceErr
	}
	return t.LocalPrizeToken.BalanceOf(addr)
}

type stubRandomnessSource struct {
	*LocalRandomnessSource

	requestErr error
}

func newStubRandomnessSource(addr ethcommon.Address) *stubRandomnessSource {
	return &stubRandomnessSource{LocalRandomnessSource: NewLocalRandomnessSource(addr)}
}

func (s *stubRandomnessSource) RequestRandomness() (uint64, error) {
	if s.requestErr != nil {
		return 0, s.requestErr
	}
	return s.LocalRandomnessSource.RequestRandomness()
}

type stubTicketOwnership struct {
	*LocalTicketOwnership

	// mintErr fires after mintsLeft successful mints.
	mintErr   error
	mintsLeft int

	burnErr error
}

func newStubTicketOwnership() *stubTicketOwnership {
	return &stubTicketOwnership{LocalTicketOwnership: NewLocalTicketOwnership()}
}

func (o *stubTicketOwnership) Mint(to ethcommon.Address, ticketID uint64) error {
	if o.mintErr != nil {
		if o.mintsLeft == 0 {
			return o.mintErr
		}
		o.mintsLeft--
	}
	return o.LocalTicketOwnership.Mint(to, ticketID)
}

func (o *stubTicketOwnership) Burn(ticketID uint64) error {
	if o.burnErr != nil {
		return o.burnErr
	}
	return o.LocalTicketOwnership.Burn(ticketID)
}

type stubRenderer struct {
	supported bool
}

func (r *stubRenderer) SupportsTicketRendering() bool {
	return r.supported
}

func (r *stubRenderer) TokenURI(ticketID uint64, rec TicketRecord, winning PickID) (string, error) {
	if !r.supported {
		return "", errors.New("unsupported")
	}
	return "stub://" + rec.Pick.Hex(), nil
}
