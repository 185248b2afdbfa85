package lotto

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Snapshot is a full copy of engine state, used by the persistence layer
// so an operator process can restart without losing the machine. All
// reference values are deep-copied; a snapshot never aliases live state.
type Snapshot struct {
	State        GameState
	GameID       uint64
	Apocalypse   bool
	LastSeededAt int64

	RequestInFlight  bool
	RequestID        uint64
	RequestTimestamp int64

	TicketPrice *big.Int

	Jackpot          *big.Int
	UnclaimedPayouts *big.Int
	AccruedFees      *big.Int

	Games   map[uint64]Game
	Tickets map[uint64]TicketRecord

	NextTicketID uint64
	Minted       uint64
	Circulating  uint64

	Claimed        map[uint64]bool
	ClaimedWinners map[uint64]uint64

	Beneficiaries map[ethcommon.Address]string
}

// Snapshot copies the engine state.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := &Snapshot{
		State:            e.state,
		GameID:           e.gameID,
		Apocalypse:       e.apocalypse,
		LastSeededAt:     e.lastSeededAt,
		TicketPrice:      new(big.Int).Set(e.ticketPrice),
		Jackpot:          e.acct.Jackpot(),
		UnclaimedPayouts: e.acct.UnclaimedPayouts(),
		AccruedFees:      e.acct.AccruedFees(),
		Games:            make(map[uint64]Game, len(e.games)),
		Tickets:          make(map[uint64]TicketRecord, len(e.ledger.tickets)),
		NextTicketID:     e.ledger.nextID,
		Minted:           e.ledger.minted,
		Circulating:      e.ledger.circulating,
		Claimed:          make(map[uint64]bool, len(e.claimed)),
		ClaimedWinners:   make(map[uint64]uint64, len(e.claimedWinners)),
		Beneficiaries:    make(map[ethcommon.Address]string, len(e.acct.beneficiaries)),
	}
	if e.req != nil {
		s.RequestInFlight = true
		s.RequestID = e.req.id
		s.RequestTimestamp = e.req.timestamp
	}
	for id, g := range e.games {
		s.Games[id] = *g
	}
	for id, rec := range e.ledger.tickets {
		s.Tickets[id] = rec
	}
	for id, v := range e.claimed {
		s.Claimed[id] = v
	}
	for id, n := range e.claimedWinners {
		s.ClaimedWinners[id] = n
	}
	for addr, name := range e.acct.beneficiaries {
		s.Beneficiaries[addr] = name
	}
	return s
}

// Restore replaces engine state with a snapshot. The per-game pick index
// is rebuilt from the ticket records.
func (e *Engine) Restore(s *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.RequestInFlight != (s.State == DrawPending) {
		return errors.Errorf("snapshot violates request invariant: state=%v inFlight=%v", s.State, s.RequestInFlight)
	}
	if _, ok := s.Games[s.GameID]; !ok {
		return errors.Errorf("snapshot missing current game %v", s.GameID)
	}

	e.state = s.State
	e.gameID = s.GameID
	e.apocalypse = s.Apocalypse
	e.lastSeededAt = s.LastSeededAt
	e.ticketPrice = new(big.Int).Set(s.TicketPrice)

	e.req = nil
	if s.RequestInFlight {
		e.req = &randomnessRequest{id: s.RequestID, timestamp: s.RequestTimestamp}
	}

	e.acct.jackpot = new(big.Int).Set(s.Jackpot)
	e.acct.unclaimed = new(big.Int).Set(s.UnclaimedPayouts)
	e.acct.fees = new(big.Int).Set(s.AccruedFees)
	e.acct.beneficiaries = make(map[ethcommon.Address]string, len(s.Beneficiaries))
	for addr, name := range s.Beneficiaries {
		e.acct.beneficiaries[addr] = name
	}

	e.games = make(map[uint64]*Game, len(s.Games))
	for id, g := range s.Games {
		g := g
		e.games[id] = &g
	}

	e.ledger.nextID = s.NextTicketID
	e.ledger.minted = s.Minted
	e.ledger.circulating = s.Circulating
	e.ledger.tickets = make(map[uint64]TicketRecord, len(s.Tickets))
	e.ledger.index = make(map[uint64]map[PickID][]uint64)
	for id, rec := range s.Tickets {
		e.ledger.tickets[id] = rec
		byPick, ok := e.ledger.index[rec.GameID]
		if !ok {
			byPick = make(map[PickID][]uint64)
			e.ledger.index[rec.GameID] = byPick
		}
		byPick[rec.Pick] = append(byPick[rec.Pick], id)
	}

	e.claimed = make(map[uint64]bool, len(s.Claimed))
	for id, v := range s.Claimed {
		e.claimed[id] = v
	}
	e.claimedWinners = make(map[uint64]uint64, len(s.ClaimedWinners))
	for id, n := range s.ClaimedWinners {
		e.claimedWinners[id] = n
	}

	return nil
}
