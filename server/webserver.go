// Package server exposes the operator HTTP surface for the lottery daemon
// and runs the background draw loop.
package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/luckysum/go-lotto/common"
	"github.com/luckysum/go-lotto/lotto"
	"github.com/luckysum/go-lotto/monitor"
)

// statusCacheTTL bounds how stale GET /status may be; the status endpoint
// is the hot path for frontends polling the jackpot.
const statusCacheTTL = time.Second

// LottoServer serves the operator API over an engine and persists a
// snapshot after every mutating call.
type LottoServer struct {
	engine *lotto.Engine
	db     *common.DB

	statusCache *cache.Cache
}

// NewLottoServer wires a server over an engine. db may be nil to run
// without persistence.
func NewLottoServer(engine *lotto.Engine, db *common.DB) *LottoServer {
	return &LottoServer{
		engine:      engine,
		db:          db,
		statusCache: cache.New(statusCacheTTL, time.Minute),
	}
}

type purchaseReq struct {
	Buyer       string    `json:"buyer"`
	Picks       [][]uint8 `json:"picks"`
	Beneficiary string    `json:"beneficiary,omitempty"`
}

type seedReq struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

type claimReq struct {
	TicketID uint64 `json:"ticketId"`
}

type statusResp struct {
	State            string `json:"state"`
	GameID           uint64 `json:"gameId"`
	TicketsSold      uint64 `json:"ticketsSold"`
	StartedAt        int64  `json:"startedAt"`
	TicketPrice      string `json:"ticketPrice"`
	Jackpot          string `json:"jackpot"`
	UnclaimedPayouts string `json:"unclaimedPayouts"`
	ApocalypseArmed  bool   `json:"apocalypseArmed"`
}

// Handler returns the operator API routes.
func (s *LottoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/purchase", func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		var req purchaseReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		tickets := make([]lotto.TicketSpec, 0, len(req.Picks))
		buyer := ethcommon.HexToAddress(req.Buyer)
		for _, balls := range req.Picks {
			tickets = append(tickets, lotto.TicketSpec{Holder: buyer, Balls: balls})
		}
		var beneficiary *ethcommon.Address
		if req.Beneficiary != "" {
			addr := ethcommon.HexToAddress(req.Beneficiary)
			beneficiary = &addr
		}

		ids, err := s.engine.Purchase(buyer, tickets, beneficiary)
		if err != nil {
			glog.Errorf("error purchasing tickets reqID=%v err=%v", reqID, err)
			writeEngineError(w, err)
			return
		}
		s.persist(reqID)
		respondJSON(w, map[string]interface{}{"ticketIds": ids})
	})

	mux.HandleFunc("/seed", func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		var req seedReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		value, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			http.Error(w, "bad seed value", http.StatusBadRequest)
			return
		}

		if err := s.engine.SeedJackpot(ethcommon.HexToAddress(req.From), value); err != nil {
			glog.Errorf("error seeding jackpot reqID=%v err=%v", reqID, err)
			writeEngineError(w, err)
			return
		}
		s.persist(reqID)
		respondJSON(w, map[string]string{"jackpot": s.engine.Jackpot().String()})
	})

	mux.HandleFunc("/claim", func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		var req claimReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}

		payout, err := s.engine.Claim(req.TicketID)
		if err != nil {
			glog.Errorf("error claiming ticket reqID=%v ticketID=%v err=%v", reqID, req.TicketID, err)
			writeEngineError(w, err)
			return
		}
		s.persist(reqID)
		respondJSON(w, map[string]string{"payout": payout.String()})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if cached, ok := s.statusCache.Get("status"); ok {
			respondJSON(w, cached)
			return
		}
		resp := s.status()
		s.statusCache.SetDefault("status", resp)
		respondJSON(w, resp)
	})

	mux.HandleFunc("/game", func(w http.ResponseWriter, r *http.Request) {
		gameID, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		g, ok := s.engine.GameInfo(gameID)
		if !ok {
			http.Error(w, "no such game", http.StatusNotFound)
			return
		}
		respondJSON(w, map[string]interface{}{
			"gameId":      gameID,
			"ticketsSold": g.TicketsSold,
			"startedAt":   g.StartedAt,
			"winningPick": g.WinningPick.Hex(),
		})
	})

	mux.HandleFunc("/ticket", func(w http.ResponseWriter, r *http.Request) {
		ticketID, err := strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "bad ticket id", http.StatusBadRequest)
			return
		}
		rec, ok := s.engine.TicketInfo(ticketID)
		if !ok {
			http.Error(w, "no such ticket", http.StatusNotFound)
			return
		}
		respondJSON(w, map[string]interface{}{
			"ticketId": ticketID,
			"gameId":   rec.GameID,
			"pick":     rec.Pick.Hex(),
		})
	})

	if monitor.Enabled {
		mux.Handle("/metrics", monitor.Exporter)
	}

	return mux
}

func (s *LottoServer) status() statusResp {
	gameID := s.engine.GameID()
	g, _ := s.engine.GameInfo(gameID)
	return statusResp{
		State:            s.engine.State().String(),
		GameID:           gameID,
		TicketsSold:      g.TicketsSold,
		StartedAt:        g.StartedAt,
		TicketPrice:      s.engine.TicketPrice().String(),
		Jackpot:          s.engine.Jackpot().String(),
		UnclaimedPayouts: s.engine.UnclaimedPayouts().String(),
		ApocalypseArmed:  s.engine.ApocalypseArmed(),
	}
}

// persist saves an engine snapshot after a mutating call. Persistence
// failure is logged, not surfaced: the in-memory engine remains the
// source of truth.
func (s *LottoServer) persist(reqID string) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveSnapshot(s.engine.Snapshot()); err != nil {
		glog.Errorf("error saving snapshot reqID=%v err=%v", reqID, err)
	}
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("error encoding response err=%v", err)
	}
}

// writeEngineError maps engine errors onto HTTP statuses. Malformed input
// and precondition failures are client errors; anything else is a 500.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, lotto.ErrInvalidPickLength),
		errors.Is(err, lotto.ErrUnsortedPick),
		errors.Is(err, lotto.ErrInvalidBallValue),
		errors.Is(err, lotto.ErrNoTicketsSpecified),
		errors.Is(err, lotto.ErrUnknownBeneficiary),
		errors.Is(err, lotto.ErrNonexistentTicket):
		status = http.StatusBadRequest
	case errors.Is(err, lotto.ErrUnexpectedState),
		errors.Is(err, lotto.ErrWaitLonger),
		errors.Is(err, lotto.ErrRateLimited),
		errors.Is(err, lotto.ErrInsufficientJackpotSeed),
		errors.Is(err, lotto.ErrClaimWindowMissed),
		errors.Is(err, lotto.ErrAlreadyClaimed),
		errors.Is(err, lotto.ErrNoWin):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
