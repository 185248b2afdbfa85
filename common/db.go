// Package common holds the sqlite-backed persistence layer shared by the
// lottery daemon's surfaces.
package common

import (
	"database/sql"
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/luckysum/go-lotto/lotto"
)

// DEBUG is the glog verbosity level for chatty DB logging.
const DEBUG = 6

// DB persists engine snapshots so an operator process can restart without
// losing the lottery state machine.
type DB struct {
	dbh *sql.DB

	// prepared statements
	updateKV     *sql.Stmt
	insertGame   *sql.Stmt
	insertTicket *sql.Stmt
	insertBenef  *sql.Stmt
	insertClaim  *sql.Stmt
}

var schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key STRING PRIMARY KEY,
		value STRING,
		updatedAt STRING DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS games (
		id INTEGER PRIMARY KEY,
		ticketsSold INTEGER,
		startedAt INTEGER,
		winningPick STRING
	);
	CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY,
		gameID INTEGER,
		pick STRING,
		claimed INTEGER DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS beneficiaries (
		addr STRING PRIMARY KEY,
		name STRING
	);
	CREATE TABLE IF NOT EXISTS claimedWinners (
		gameID INTEGER PRIMARY KEY,
		count INTEGER
	);
`

// InitDB opens (creating if needed) the sqlite database at dbPath.
func InitDB(dbPath string) (*DB, error) {
	d := DB{}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		glog.Error("Unable to open DB ", dbPath, err)
		return nil, err
	}
	d.dbh = db
	if _, err := db.Exec(schema); err != nil {
		glog.Error("Error initializing schema ", err)
		d.Close()
		return nil, err
	}

	stmts := []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&d.updateKV, "INSERT INTO kv(key, value) VALUES(?1, ?2) ON CONFLICT(key) DO UPDATE SET value=?2, updatedAt=datetime()"},
		{&d.insertGame, "INSERT OR REPLACE INTO games(id, ticketsSold, startedAt, winningPick) VALUES(?, ?, ?, ?)"},
		{&d.insertTicket, "INSERT OR REPLACE INTO tickets(id, gameID, pick, claimed) VALUES(?, ?, ?, ?)"},
		{&d.insertBenef, "INSERT OR REPLACE INTO beneficiaries(addr, name) VALUES(?, ?)"},
		{&d.insertClaim, "INSERT OR REPLACE INTO claimedWinners(gameID, count) VALUES(?, ?)"},
	}
	for _, s := range stmts {
		stmt, err := db.Prepare(s.sql)
		if err != nil {
			glog.Error("Unable to prepare statement ", s.sql, err)
			d.Close()
			return nil, err
		}
		*s.stmt = stmt
	}

	glog.V(DEBUG).Info("Initialized DB")
	return &d, nil
}

// Close releases statements and the underlying handle.
func (db *DB) Close() {
	glog.V(DEBUG).Info("Closing DB")
	for _, stmt := range []*sql.Stmt{db.updateKV, db.insertGame, db.insertTicket, db.insertBenef, db.insertClaim} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if db.dbh != nil {
		db.dbh.Close()
	}
}

// SaveSnapshot writes a full engine snapshot, replacing whatever was
// stored before. One transaction covers the whole write, so a crashed
// save can never leave a half-applied snapshot behind.
func (db *DB) SaveSnapshot(s *lotto.Snapshot) error {
	if db == nil {
		return nil
	}

	tx, err := db.dbh.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	kv := map[string]string{
		"state":            strconv.FormatInt(int64(s.State), 10),
		"gameID":           strconv.FormatUint(s.GameID, 10),
		"apocalypse":       boolStr(s.Apocalypse),
		"lastSeededAt":     strconv.FormatInt(s.LastSeededAt, 10),
		"requestInFlight":  boolStr(s.RequestInFlight),
		"requestID":        strconv.FormatUint(s.RequestID, 10),
		"requestTimestamp": strconv.FormatInt(s.RequestTimestamp, 10),
		"ticketPrice":      s.TicketPrice.String(),
		"jackpot":          s.Jackpot.String(),
		"unclaimedPayouts": s.UnclaimedPayouts.String(),
		"accruedFees":      s.AccruedFees.String(),
		"nextTicketID":     strconv.FormatUint(s.NextTicketID, 10),
		"minted":           strconv.FormatUint(s.Minted, 10),
		"circulating":      strconv.FormatUint(s.Circulating, 10),
	}
	for key, value := range kv {
		if _, err := tx.Stmt(db.updateKV).Exec(key, value); err != nil {
			return err
		}
	}

	for _, table := range []string{"games", "tickets", "beneficiaries", "claimedWinners"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	for id, g := range s.Games {
		if _, err := tx.Stmt(db.insertGame).Exec(id, g.TicketsSold, g.StartedAt, g.WinningPick.Hex()); err != nil {
			return err
		}
	}
	for id, rec := range s.Tickets {
		claimed := 0
		if s.Claimed[id] {
			claimed = 1
		}
		if _, err := tx.Stmt(db.insertTicket).Exec(id, rec.GameID, rec.Pick.Hex(), claimed); err != nil {
			return err
		}
	}
	for addr, name := range s.Beneficiaries {
		if _, err := tx.Stmt(db.insertBenef).Exec(addr.Hex(), name); err != nil {
			return err
		}
	}
	for gameID, count := range s.ClaimedWinners {
		if _, err := tx.Stmt(db.insertClaim).Exec(gameID, count); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSnapshot reads the stored snapshot, or returns (nil, nil) when the
// database is empty.
func (db *DB) LoadSnapshot() (*lotto.Snapshot, error) {
	kv := make(map[string]string)
	rows, err := db.dbh.Query("SELECT key, value FROM kv")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		kv[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(kv) == 0 {
		return nil, nil
	}

	s := &lotto.Snapshot{
		Games:          make(map[uint64]lotto.Game),
		Tickets:        make(map[uint64]lotto.TicketRecord),
		Claimed:        make(map[uint64]bool),
		ClaimedWinners: make(map[uint64]uint64),
		Beneficiaries:  make(map[ethcommon.Address]string),
	}
	s.State = lotto.GameState(parseInt(kv["state"]))
	s.GameID = parseUint(kv["gameID"])
	s.Apocalypse = kv["apocalypse"] == "1"
	s.LastSeededAt = parseInt(kv["lastSeededAt"])
	s.RequestInFlight = kv["requestInFlight"] == "1"
	s.RequestID = parseUint(kv["requestID"])
	s.RequestTimestamp = parseInt(kv["requestTimestamp"])
	s.NextTicketID = parseUint(kv["nextTicketID"])
	s.Minted = parseUint(kv["minted"])
	s.Circulating = parseUint(kv["circulating"])
	for key, dst := range map[string]**big.Int{
		"ticketPrice":      &s.TicketPrice,
		"jackpot":          &s.Jackpot,
		"unclaimedPayouts": &s.UnclaimedPayouts,
		"accruedFees":      &s.AccruedFees,
	} {
		v, ok := new(big.Int).SetString(kv[key], 10)
		if !ok {
			return nil, errors.Errorf("corrupt %v value %q", key, kv[key])
		}
		*dst = v
	}

	gameRows, err := db.dbh.Query("SELECT id, ticketsSold, startedAt, winningPick FROM games")
	if err != nil {
		return nil, err
	}
	defer gameRows.Close()
	for gameRows.Next() {
		var id, ticketsSold uint64
		var startedAt int64
		var winningPick string
		if err := gameRows.Scan(&id, &ticketsSold, &startedAt, &winningPick); err != nil {
			return nil, err
		}
		s.Games[id] = lotto.Game{
			TicketsSold: ticketsSold,
			StartedAt:   startedAt,
			WinningPick: lotto.PickID(ethcommon.HexToHash(winningPick)),
		}
	}
	if err := gameRows.Err(); err != nil {
		return nil, err
	}

	ticketRows, err := db.dbh.Query("SELECT id, gameID, pick, claimed FROM tickets")
	if err != nil {
		return nil, err
	}
	defer ticketRows.Close()
	for ticketRows.Next() {
		var id, gameID uint64
		var pick string
		var claimed int
		if err := ticketRows.Scan(&id, &gameID, &pick, &claimed); err != nil {
			return nil, err
		}
		s.Tickets[id] = lotto.TicketRecord{GameID: gameID, Pick: lotto.PickID(ethcommon.HexToHash(pick))}
		if claimed != 0 {
			s.Claimed[id] = true
		}
	}
	if err := ticketRows.Err(); err != nil {
		return nil, err
	}

	benefRows, err := db.dbh.Query("SELECT addr, name FROM beneficiaries")
	if err != nil {
		return nil, err
	}
	defer benefRows.Close()
	for benefRows.Next() {
		var addr, name string
		if err := benefRows.Scan(&addr, &name); err != nil {
			return nil, err
		}
		s.Beneficiaries[ethcommon.HexToAddress(addr)] = name
	}
	if err := benefRows.Err(); err != nil {
		return nil, err
	}

	claimRows, err := db.dbh.Query("SELECT gameID, count FROM claimedWinners")
	if err != nil {
		return nil, err
	}
	defer claimRows.Close()
	for claimRows.Next() {
		var gameID, count uint64
		if err := claimRows.Scan(&gameID, &count); err != nil {
			return nil, err
		}
		s.ClaimedWinners[gameID] = count
	}
	if err := claimRows.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
