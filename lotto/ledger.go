package lotto

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
)

// TicketLedger owns ticket identity: the mapping from ticket id to
// (game, pick), the per-game index from pick identity to the tickets
// holding it, and the circulating-supply counter fed by the ownership
// ledger's transfer hook. Ticket ids are assigned sequentially starting
// at 1.
type TicketLedger struct {
	pickLength   uint8
	maxBallValue uint8

	ownership TicketOwnership

	nextID  uint64
	tickets map[uint64]TicketRecord
	index   map[uint64]map[PickID][]uint64

	// minted counts every ticket ever created and never decreases.
	// circulating tracks live tickets and is the consolation divisor.
	minted      uint64
	circulating uint64
}

// NewTicketLedger returns a ledger validating picks against the given
// dimensions and minting through the given ownership collaborator.
func NewTicketLedger(pickLength, maxBallValue uint8, ownership TicketOwnership) *TicketLedger {
	return &TicketLedger{
		pickLength:   pickLength,
		maxBallValue: maxBallValue,
		ownership:    ownership,
		nextID:       1,
		tickets:      make(map[uint64]TicketRecord),
		index:        make(map[uint64]map[PickID][]uint64),
	}
}

// ValidateSpecs checks a purchase batch without mutating anything. A single
// invalid ticket rejects the whole batch.
func (l *TicketLedger) ValidateSpecs(tickets []TicketSpec) error {
	for i, t := range tickets {
		if err := ValidatePick(t.Balls, l.pickLength, l.maxBallValue); err != nil {
			return errorf(err, "ticket %v", i)
		}
	}
	return nil
}

// RecordTickets stores a validated batch for the given game and mints
// ownership of each new ticket to its holder. Callers must have run
// ValidateSpecs first; recording is not expected to fail on input.
func (l *TicketLedger) RecordTickets(gameID uint64, tickets []TicketSpec) ([]uint64, error) {
	if err := l.ValidateSpecs(tickets); err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		id := l.nextID
		l.nextID++

		pick := PickIDOf(t.Balls)
		l.tickets[id] = TicketRecord{GameID: gameID, Pick: pick}

		byPick, ok := l.index[gameID]
		if !ok {
			byPick = make(map[PickID][]uint64)
			l.index[gameID] = byPick
		}
		byPick[pick] = append(byPick[pick], id)

		ids = append(ids, id)
	}

	// Mint only after the batch is fully recorded so a half-minted batch
	// cannot be observed by the ownership ledger's hooks. A mint failure
	// unwinds the whole batch; the ledger never retains records for
	// tickets that were not fully created.
	for i, t := range tickets {
		if err := l.ownership.Mint(t.Holder, ids[i]); err != nil {
			l.unwindBatch(gameID, ids, i)
			return nil, err
		}
	}

	return ids, nil
}

// unwindBatch reverses a RecordTickets batch: the first minted tickets are
// burned back, every record and index entry is removed, and the ids are
// released for reuse.
func (l *TicketLedger) unwindBatch(gameID uint64, ids []uint64, minted int) {
	for i := 0; i < minted; i++ {
		if err := l.ownership.Burn(ids[i]); err != nil {
			glog.Errorf("error burning ticket while unwinding batch ticketID=%v err=%v", ids[i], err)
		}
	}
	byPick := l.index[gameID]
	for _, id := range ids {
		rec, ok := l.tickets[id]
		if !ok {
			continue
		}
		delete(l.tickets, id)
		held := byPick[rec.Pick]
		for i, v := range held {
			if v == id {
				held = append(held[:i], held[i+1:]...)
				break
			}
		}
		if len(held) == 0 {
			delete(byPick, rec.Pick)
		} else {
			byPick[rec.Pick] = held
		}
	}
	if len(ids) > 0 {
		l.nextID = ids[0]
	}
}

// Get returns the record for a ticket id.
func (l *TicketLedger) Get(ticketID uint64) (TicketRecord, bool) {
	rec, ok := l.tickets[ticketID]
	return rec, ok
}

// CountWithPick returns how many tickets in a game hold the given pick
// identity. Used both for winner counting and claim eligibility.
func (l *TicketLedger) CountWithPick(gameID uint64, pick PickID) uint64 {
	return uint64(len(l.index[gameID][pick]))
}

// TotalMinted returns the number of tickets ever created.
func (l *TicketLedger) TotalMinted() uint64 {
	return l.minted
}

// Circulating returns the number of live (minted, not burned) tickets.
func (l *TicketLedger) Circulating() uint64 {
	return l.circulating
}

// OnOwnershipTransfer is the hook the ownership ledger calls whenever a
// ticket changes hands. Mint-from-void grows supply, burn-to-void shrinks
// it; holder-to-holder transfers are neutral.
func (l *TicketLedger) OnOwnershipTransfer(from, to ethcommon.Address) {
	zero := ethcommon.Address{}
	if from == zero && to != zero {
		l.minted++
		l.circulating++
	}
	if to == zero && from != zero {
		l.circulating--
	}
}
