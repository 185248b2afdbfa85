// Package lotto implements a perpetual number-lottery engine: ticket
// purchases feed an accumulating jackpot, a verifiable random draw selects
// winning numbers each round, and winners claim shares of the pot. Token
// custody, ticket ownership and the randomness oracle are injected
// collaborators.
package lotto

import (
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/luckysum/go-lotto/monitor"
)

// unixNow returns the current unix time
// This is a wrapper function that can be stubbed in tests
var unixNow = func() int64 {
	return time.Now().Unix()
}

// forceRedrawDelay is how stale an in-flight randomness request must be
// before the escape hatch re-issues it.
const forceRedrawDelay = int64(time.Hour / time.Second)

// GameState is the phase of the current game.
type GameState int

const (
	// Purchase accepts ticket sales and jackpot seeding.
	Purchase GameState = iota
	// DrawPending is parked awaiting randomness fulfillment.
	DrawPending
	// Dead is the terminal state entered when apocalypse mode resolves.
	Dead
)

func (s GameState) String() string {
	switch s {
	case Purchase:
		return "purchase"
	case DrawPending:
		return "drawPending"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Game is the per-round record. It is immutable once the next round starts,
// except for the single WinningPick write at draw finalization.
type Game struct {
	TicketsSold uint64
	StartedAt   int64
	WinningPick PickID
}

// randomnessRequest marks the single in-flight oracle request. A nil
// request means none is pending; exactly one is recorded iff the state is
// DrawPending.
type randomnessRequest struct {
	id        uint64
	timestamp int64
}

// LotteryConfig fixes the lottery dimensions and economics at construction.
type LotteryConfig struct {
	PickLength   uint8
	MaxBallValue uint8

	TicketPrice *big.Int
	GamePeriod  time.Duration

	SeedJackpotMinValue *big.Int
	SeedJackpotDelay    time.Duration

	CommunityFeeBps uint64
	ProtocolFeeBps  uint64
}

// Validate checks the configuration dimensions.
func (c *LotteryConfig) Validate() error {
	if c.PickLength < 1 {
		return errors.Errorf("pick length %v must be at least 1", c.PickLength)
	}
	if c.MaxBallValue < c.PickLength {
		return errors.Errorf("max ball value %v smaller than pick length %v", c.MaxBallValue, c.PickLength)
	}
	if c.TicketPrice == nil || c.TicketPrice.Sign() <= 0 {
		return errors.New("ticket price must be positive")
	}
	if c.GamePeriod <= 0 {
		return errors.New("game period must be positive")
	}
	if c.SeedJackpotMinValue == nil || c.SeedJackpotMinValue.Sign() < 0 {
		return errors.New("seed jackpot minimum must be non-negative")
	}
	if c.CommunityFeeBps+c.ProtocolFeeBps >= feeDenominator {
		return errors.Errorf("fee bps %v+%v leave no jackpot share", c.CommunityFeeBps, c.ProtocolFeeBps)
	}
	return nil
}

// Engine is the lottery's single logical actor. Every entry point
// serializes on one mutex, which doubles as the reentrancy guard around
// outbound value transfers: all payout-affecting state is committed before
// any transfer is issued, and no second entry can interleave.
type Engine struct {
	mu sync.Mutex

	cfg   LotteryConfig
	owner ethcommon.Address
	self  ethcommon.Address

	token     PrizeToken
	ownership TicketOwnership
	oracle    RandomnessSource
	renderer  TicketRenderer

	ledger *TicketLedger
	acct   *Accounting

	state  GameState
	gameID uint64
	games  map[uint64]*Game

	req          *randomnessRequest
	apocalypse   bool
	lastSeededAt int64

	ticketPrice *big.Int

	// claimed marks winning tickets that already cashed out; winners keep
	// their ticket as a trophy so the burn cannot serve as the nullifier.
	claimed map[uint64]bool
	// claimedWinners counts cashed-out winners per game so later claimants
	// share what is left among the remaining unclaimed winners.
	claimedWinners map[uint64]uint64
}

// NewEngine wires a lottery engine from its collaborators. The engine
// starts in the purchase phase of game 0 with empty registers;
// protocolFeeRecipient may be the zero address to disable protocol fees.
func NewEngine(cfg LotteryConfig, owner, self ethcommon.Address, token PrizeToken, ownership TicketOwnership, oracle RandomnessSource, protocolFeeRecipient ethcommon.Address) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:            cfg,
		owner:          owner,
		self:           self,
		token:          token,
		ownership:      ownership,
		oracle:         oracle,
		ledger:         NewTicketLedger(cfg.PickLength, cfg.MaxBallValue, ownership),
		acct:           NewAccounting(token, self, protocolFeeRecipient),
		state:          Purchase,
		games:          map[uint64]*Game{0: {StartedAt: unixNow()}},
		ticketPrice:    new(big.Int).Set(cfg.TicketPrice),
		claimed:        make(map[uint64]bool),
		claimedWinners: make(map[uint64]uint64),
	}
	return e, nil
}

// Ledger exposes the ticket ledger, primarily so the ownership
// collaborator can deliver supply hooks.
func (e *Engine) Ledger() *TicketLedger {
	return e.ledger
}

// Purchase buys a batch of tickets for the current game. The full batch is
// validated before any funds move; a single invalid ticket rejects the
// whole purchase. Funds are pulled from buyer, split per the fee
// configuration, and the tickets are recorded and minted to their holders.
func (e *Engine) Purchase(buyer ethcommon.Address, tickets []TicketSpec, beneficiary *ethcommon.Address) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Purchase {
		return nil, errorf(ErrUnexpectedState, "purchase in state %v", e.state)
	}
	if len(tickets) == 0 {
		return nil, ErrNoTicketsSpecified
	}
	if err := e.ledger.ValidateSpecs(tickets); err != nil {
		return nil, err
	}
	if beneficiary != nil {
		if _, ok := e.acct.BeneficiaryName(*beneficiary); !ok {
			return nil, errorf(ErrUnknownBeneficiary, "beneficiary=%v", beneficiary.Hex())
		}
	}

	totalPrice := new(big.Int).Mul(e.ticketPrice, big.NewInt(int64(len(tickets))))
	if err := e.token.TransferFrom(buyer, e.self, totalPrice); err != nil {
		return nil, err
	}
	// Return the pulled funds when a later step aborts the purchase. The
	// refund is best effort since the pull itself already succeeded.
	refund := func() {
		if rerr := e.token.Transfer(buyer, totalPrice); rerr != nil {
			glog.Errorf("error refunding failed purchase buyer=%v amount=%v err=%v", buyer.Hex(), totalPrice, rerr)
		}
	}

	ids, err := e.ledger.RecordTickets(e.gameID, tickets)
	if err != nil {
		refund()
		return nil, err
	}

	if err := e.acct.ApplyPurchase(totalPrice, e.cfg.CommunityFeeBps, e.cfg.ProtocolFeeBps, beneficiary); err != nil {
		e.ledger.unwindBatch(e.gameID, ids, len(ids))
		refund()
		return nil, err
	}
	e.games[e.gameID].TicketsSold += uint64(len(ids))

	if monitor.Enabled {
		monitor.TicketsSold(len(ids))
		monitor.JackpotSize(e.acct.Jackpot())
	}
	glog.V(4).Infof("tickets purchased gameID=%v count=%v buyer=%v", e.gameID, len(ids), buyer.Hex())

	return ids, nil
}

// SeedJackpot donates directly into the jackpot. Gated by a minimum value
// and a per-engine rate limit; legal only during the purchase phase.
func (e *Engine) SeedJackpot(from ethcommon.Address, value *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Purchase {
		return errorf(ErrUnexpectedState, "seed in state %v", e.state)
	}
	if value.Cmp(e.cfg.SeedJackpotMinValue) < 0 {
		return errorf(ErrInsufficientJackpotSeed, "value=%v min=%v", value, e.cfg.SeedJackpotMinValue)
	}
	now := unixNow()
	nextAllowed := e.lastSeededAt + int64(e.cfg.SeedJackpotDelay/time.Second)
	if now < nextAllowed {
		return errorf(ErrRateLimited, "next seed allowed at %v", nextAllowed)
	}

	// Claim the rate-limit window before funds move so a re-entering
	// seeder cannot double-seed within the same instant.
	prev := e.lastSeededAt
	e.lastSeededAt = now

	if err := e.token.TransferFrom(from, e.self, value); err != nil {
		e.lastSeededAt = prev
		return err
	}
	e.acct.ApplySeed(value)

	if monitor.Enabled {
		monitor.JackpotSize(e.acct.Jackpot())
	}
	glog.Infof("jackpot seeded gameID=%v from=%v value=%v", e.gameID, from.Hex(), value)

	return nil
}

// ReceiveCrossChainPurchase ingests a relayed batch of already-paid ticket
// records plus the attached token amount. The attached value was
// transported as a single sum, so it bypasses the fee split entirely and
// credits the jackpot directly.
func (e *Engine) ReceiveCrossChainPurchase(tickets []TicketSpec, attached *big.Int) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Purchase {
		return nil, errorf(ErrUnexpectedState, "cross-chain purchase in state %v", e.state)
	}

	ids, err := e.ledger.RecordTickets(e.gameID, tickets)
	if err != nil {
		return nil, err
	}
	e.games[e.gameID].TicketsSold += uint64(len(ids))

	if attached != nil && attached.Sign() > 0 {
		e.acct.ApplyCrossChainContribution(attached)
	}

	if monitor.Enabled && len(ids) > 0 {
		monitor.TicketsSold(len(ids))
	}
	glog.Infof("cross-chain purchase gameID=%v count=%v attached=%v", e.gameID, len(ids), attached)

	return ids, nil
}

// Draw closes the current game once its period has elapsed. With tickets
// sold it parks the machine in DrawPending and issues a randomness
// request. With none sold the draw is skipped and the round rolls straight
// over, unless apocalypse mode is armed, in which case there is nobody to
// distribute the pot to and the kill cannot complete.
func (e *Engine) Draw() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Purchase {
		return errorf(ErrUnexpectedState, "draw in state %v", e.state)
	}
	g := e.games[e.gameID]
	deadline := g.StartedAt + int64(e.cfg.GamePeriod/time.Second)
	now := unixNow()
	if now < deadline {
		return errorf(ErrWaitLonger, "draw opens at %v, now %v", deadline, now)
	}

	if g.TicketsSold == 0 {
		if e.apocalypse {
			return errorf(ErrNoTicketsSold, "gameID=%v", e.gameID)
		}
		glog.Infof("draw skipped gameID=%v", e.gameID)
		if monitor.Enabled {
			monitor.DrawSkipped()
		}
		e.roundTransition()
		return nil
	}

	reqID, err := e.oracle.RequestRandomness()
	if err != nil {
		return errors.Wrap(err, "requesting randomness")
	}
	e.state = DrawPending
	e.req = &randomnessRequest{id: reqID, timestamp: now}

	if monitor.Enabled {
		monitor.DrawStarted()
	}
	glog.Infof("draw started gameID=%v requestID=%v", e.gameID, reqID)

	return nil
}

// ForceRedraw re-issues the randomness request after the oracle has been
// silent for an hour. The fresh request replaces the in-flight marker, so
// a late fulfillment of the stale id is rejected as unknown.
func (e *Engine) ForceRedraw() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != DrawPending {
		return errorf(ErrUnexpectedState, "force redraw in state %v", e.state)
	}
	if e.req == nil {
		return ErrNoRandomnessRequestInFlight
	}
	now := unixNow()
	staleAt := e.req.timestamp + forceRedrawDelay
	if now < staleAt {
		return errorf(ErrWaitLonger, "request goes stale at %v, now %v", staleAt, now)
	}

	reqID, err := e.oracle.RequestRandomness()
	if err != nil {
		return errors.Wrap(err, "requesting randomness")
	}
	staleID := e.req.id
	e.req = &randomnessRequest{id: reqID, timestamp: now}

	glog.Infof("force redraw gameID=%v staleRequestID=%v requestID=%v", e.gameID, staleID, reqID)

	return nil
}

// ReceiveRandomness is the oracle fulfillment callback. The caller must be
// the configured oracle and the request id must match the one in flight;
// ids superseded by ForceRedraw are rejected. The first random word seeds
// the winning pick derivation, the game is finalized and the round rolls
// over.
func (e *Engine) ReceiveRandomness(caller ethcommon.Address, requestID uint64, randomWords []*big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != DrawPending {
		return errorf(ErrUnexpectedState, "randomness in state %v", e.state)
	}
	if caller != e.oracle.Address() {
		return errorf(ErrUnauthorizedOracle, "caller=%v oracle=%v", caller.Hex(), e.oracle.Address().Hex())
	}
	if e.req == nil {
		return ErrNoRandomnessRequestInFlight
	}
	if requestID != e.req.id {
		return errorf(ErrUnknownRandomnessRequest, "requestID=%v inFlight=%v", requestID, e.req.id)
	}
	if len(randomWords) == 0 {
		return ErrInsufficientRandomWords
	}

	seed := ethcommon.BigToHash(randomWords[0])
	winning := DrawPick(e.cfg.PickLength, e.cfg.MaxBallValue, seed)
	e.games[e.gameID].WinningPick = PickIDOf(winning)
	e.req = nil

	glog.Infof("draw finalized gameID=%v winningPick=%v", e.gameID, winning)
	if monitor.Enabled {
		monitor.DrawCompleted()
	}

	e.roundTransition()
	return nil
}

// roundTransition finalizes the current game and opens the next one. It is
// the only writer of the game id, which strictly increases, and the only
// path into the terminal state.
func (e *Engine) roundTransition() {
	if e.state == Dead {
		// Unreachable from any entry point; a transition out of the
		// terminal state is an internal consistency failure.
		panic("lotto: round transition from dead state")
	}

	g := e.games[e.gameID]
	numWinners := e.ledger.CountWithPick(e.gameID, g.WinningPick)
	terminal := e.apocalypse

	e.acct.Rollover(numWinners, terminal)

	if terminal {
		e.state = Dead
	} else {
		e.state = Purchase
	}
	e.gameID++
	e.games[e.gameID] = &Game{StartedAt: unixNow()}

	if monitor.Enabled {
		monitor.JackpotSize(e.acct.Jackpot())
	}
	glog.Infof("round transition gameID=%v numWinners=%v state=%v", e.gameID, numWinners, e.state)
}

// Kill arms apocalypse mode. Owner-only, purchase phase only, and
// idempotency-guarded: the current round still completes normally, the
// termination happens at the next round transition.
func (e *Engine) Kill(caller ethcommon.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.owner {
		return errorf(ErrNotOwner, "caller=%v", caller.Hex())
	}
	if e.state != Purchase {
		return errorf(ErrUnexpectedState, "kill in state %v", e.state)
	}
	if e.apocalypse {
		return ErrGameInactive
	}
	e.apocalypse = true

	glog.Infof("apocalypse mode armed gameID=%v", e.gameID)

	return nil
}

// State returns the current game phase.
func (e *Engine) State() GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GameID returns the current game id.
func (e *Engine) GameID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameID
}

// GameInfo returns a copy of a game record.
func (e *Engine) GameInfo(gameID uint64) (Game, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.games[gameID]
	if !ok {
		return Game{}, false
	}
	return *g, true
}

// RandomnessRequest returns the in-flight request, if any.
func (e *Engine) RandomnessRequest() (id uint64, timestamp int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.req == nil {
		return 0, 0, false
	}
	return e.req.id, e.req.timestamp, true
}

// ApocalypseArmed reports whether the next round transition is terminal.
func (e *Engine) ApocalypseArmed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apocalypse
}

// TicketPrice returns the current per-ticket price.
func (e *Engine) TicketPrice() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.ticketPrice)
}

// Jackpot returns the active jackpot register.
func (e *Engine) Jackpot() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.Jackpot()
}

// UnclaimedPayouts returns the claimable-only register.
func (e *Engine) UnclaimedPayouts() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.UnclaimedPayouts()
}

// AccruedFees returns the accrued community fee register.
func (e *Engine) AccruedFees() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.AccruedFees()
}

// TicketInfo returns the immutable record for a ticket.
func (e *Engine) TicketInfo(ticketID uint64) (TicketRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(ticketID)
}

// CheckConservation verifies the fund-conservation invariant against the
// custodied token balance.
func (e *Engine) CheckConservation() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct.CheckConservation()
}

// TokenURI renders ticket metadata through the configured renderer.
func (e *Engine) TokenURI(ticketID uint64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.renderer == nil {
		return "", errors.New("no renderer configured")
	}
	rec, ok := e.ledger.Get(ticketID)
	if !ok {
		return "", errorf(ErrNonexistentTicket, "ticketID=%v", ticketID)
	}
	winning := PickID{}
	if g, ok := e.games[rec.GameID]; ok {
		winning = g.WinningPick
	}
	return e.renderer.TokenURI(ticketID, rec, winning)
}
