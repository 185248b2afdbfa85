package lotto

import (
	"github.com/pkg/errors"
)

// Sentinel errors for the lottery engine. Entry points return these wrapped
// with the offending values so callers can discriminate with errors.Is while
// operators still get enough context to diagnose without re-deriving state.
var (
	// Malformed input.
	ErrInvalidPickLength  = errors.New("invalid pick length")
	ErrUnsortedPick       = errors.New("pick not strictly ascending")
	ErrInvalidBallValue   = errors.New("ball value out of range")
	ErrNoTicketsSpecified = errors.New("no tickets specified")
	ErrEmptyDisplayName   = errors.New("empty display name")

	// Precondition violations.
	ErrUnexpectedState             = errors.New("unexpected game state")
	ErrWaitLonger                  = errors.New("wait longer")
	ErrRateLimited                 = errors.New("rate limited")
	ErrInsufficientJackpotSeed     = errors.New("insufficient jackpot seed")
	ErrNoTicketsSold               = errors.New("no tickets sold")
	ErrNoRandomnessRequestInFlight = errors.New("no randomness request in flight")
	ErrUnknownRandomnessRequest    = errors.New("unknown randomness request")
	ErrInsufficientRandomWords     = errors.New("insufficient random words")
	ErrUnauthorizedOracle          = errors.New("caller is not the randomness oracle")
	ErrNotOwner                    = errors.New("caller is not the owner")
	ErrGameInactive                = errors.New("apocalypse mode already armed")
	ErrUnknownBeneficiary          = errors.New("unknown beneficiary")
	ErrRendererUnsupported         = errors.New("renderer failed capability probe")

	// Claim failures.
	ErrNonexistentTicket = errors.New("nonexistent ticket")
	ErrClaimWindowMissed = errors.New("claim window missed")
	ErrAlreadyClaimed    = errors.New("ticket already claimed")
	ErrNoWin             = errors.New("ticket did not win")
)

// errorf wraps a sentinel with formatted context. pkg/errors wrapping keeps
// the sentinel reachable through errors.Is.
func errorf(sentinel error, format string, args ...interface{}) error {
	return errors.Wrapf(sentinel, format, args...)
}
