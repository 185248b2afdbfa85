package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/golang/glog"
	"github.com/urfave/cli"

	"github.com/luckysum/go-lotto/common"
	"github.com/luckysum/go-lotto/eth"
	"github.com/luckysum/go-lotto/lotto"
	"github.com/luckysum/go-lotto/monitor"
	"github.com/luckysum/go-lotto/server"
)

const version = "0.1.0"

func main() {
	flag.Set("logtostderr", "true")

	app := cli.NewApp()
	app.Name = "lotto"
	app.Version = version
	app.Usage = "perpetual number-lottery daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "httpAddr", Value: "127.0.0.1:7935", Usage: "address for the operator API"},
		cli.StringFlag{Name: "db", Value: "lotto.db", Usage: "path to the sqlite state database"},
		cli.BoolFlag{Name: "monitor", Usage: "enable prometheus metrics"},
		cli.StringFlag{Name: "owner", Value: "0x0000000000000000000000000000000000000001", Usage: "owner address for the admin surface"},
		cli.UintFlag{Name: "pickLength", Value: 7, Usage: "balls per pick"},
		cli.UintFlag{Name: "maxBallValue", Value: 35, Usage: "largest ball value"},
		cli.StringFlag{Name: "ticketPrice", Value: "1500000000000000000", Usage: "ticket price in smallest token units"},
		cli.DurationFlag{Name: "gamePeriod", Value: 7 * 24 * time.Hour, Usage: "round duration"},
		cli.StringFlag{Name: "seedMin", Value: "1000000000000000000", Usage: "minimum jackpot seed value"},
		cli.DurationFlag{Name: "seedDelay", Value: time.Hour, Usage: "minimum delay between jackpot seeds"},
		cli.Uint64Flag{Name: "communityFeeBps", Value: 1000, Usage: "community fee in basis points"},
		cli.Uint64Flag{Name: "protocolFeeBps", Value: 500, Usage: "protocol fee in basis points"},
		cli.StringFlag{Name: "protocolFeeRecipient", Usage: "protocol fee recipient; empty disables the protocol fee"},
		cli.DurationFlag{Name: "pollInterval", Value: time.Minute, Usage: "draw loop poll interval"},
		cli.StringFlag{Name: "ethUrl", Usage: "Ethereum JSON-RPC endpoint; empty runs the in-memory prize token"},
		cli.StringFlag{Name: "prizeToken", Usage: "prize token contract address, requires -ethUrl"},
		cli.StringFlag{Name: "ethKeyFile", Usage: "hex private key file for the transacting account, requires -ethUrl"},
		cli.StringFlag{Name: "fundAddr", Usage: "local mode: address to credit with prize tokens at startup"},
		cli.StringFlag{Name: "fundAmount", Value: "0", Usage: "local mode: amount credited to -fundAddr"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		glog.Exit(err)
	}
}

func run(c *cli.Context) error {
	if c.Bool("monitor") {
		hostname, _ := os.Hostname()
		monitor.InitCensus(hostname, version)
	}

	ticketPrice, ok := new(big.Int).SetString(c.String("ticketPrice"), 10)
	if !ok {
		return fmt.Errorf("bad ticketPrice %q", c.String("ticketPrice"))
	}
	seedMin, ok := new(big.Int).SetString(c.String("seedMin"), 10)
	if !ok {
		return fmt.Errorf("bad seedMin %q", c.String("seedMin"))
	}

	cfg := lotto.LotteryConfig{
		PickLength:          uint8(c.Uint("pickLength")),
		MaxBallValue:        uint8(c.Uint("maxBallValue")),
		TicketPrice:         ticketPrice,
		GamePeriod:          c.Duration("gamePeriod"),
		SeedJackpotMinValue: seedMin,
		SeedJackpotDelay:    c.Duration("seedDelay"),
		CommunityFeeBps:     c.Uint64("communityFeeBps"),
		ProtocolFeeBps:      c.Uint64("protocolFeeBps"),
	}

	owner := ethcommon.HexToAddress(c.String("owner"))
	self := ethcommon.HexToAddress("0x0000000000000000000000000000000000077077")
	var protocolRecipient ethcommon.Address
	if c.String("protocolFeeRecipient") != "" {
		protocolRecipient = ethcommon.HexToAddress(c.String("protocolFeeRecipient"))
	}

	var token lotto.PrizeToken
	var localToken *lotto.LocalPrizeToken
	if c.String("ethUrl") != "" {
		client, err := ethclient.Dial(c.String("ethUrl"))
		if err != nil {
			return err
		}
		key, err := crypto.LoadECDSA(c.String("ethKeyFile"))
		if err != nil {
			return err
		}
		chainID, err := client.ChainID(context.Background())
		if err != nil {
			return err
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return err
		}
		self = opts.From
		token, err = eth.NewERC20PrizeToken(client, ethcommon.HexToAddress(c.String("prizeToken")), opts)
		if err != nil {
			return err
		}
		glog.Infof("using on-chain prize token addr=%v account=%v", c.String("prizeToken"), self.Hex())
	} else {
		localToken = lotto.NewLocalPrizeToken(ethcommon.HexToAddress("0x0000000000000000000000000000000000077000"), self)
		token = localToken
	}
	ownership := lotto.NewLocalTicketOwnership()
	oracle := lotto.NewLocalRandomnessSource(ethcommon.HexToAddress("0x0000000000000000000000000000000000077001"))

	engine, err := lotto.NewEngine(cfg, owner, self, token, ownership, oracle, protocolRecipient)
	if err != nil {
		return err
	}
	ownership.SetTransferHook(engine.Ledger().OnOwnershipTransfer)

	if c.String("fundAddr") != "" {
		if localToken == nil {
			return fmt.Errorf("-fundAddr only applies to the in-memory prize token")
		}
		amount, ok := new(big.Int).SetString(c.String("fundAmount"), 10)
		if !ok {
			return fmt.Errorf("bad fundAmount %q", c.String("fundAmount"))
		}
		localToken.Issue(ethcommon.HexToAddress(c.String("fundAddr")), amount)
	}

	db, err := common.InitDB(c.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	snapshot, err := db.LoadSnapshot()
	if err != nil {
		return err
	}
	if snapshot != nil {
		if err := engine.Restore(snapshot); err != nil {
			return err
		}
		glog.Infof("restored engine state gameID=%v state=%v", engine.GameID(), engine.State())
	}

	drawLoop := server.NewDrawLoop(engine, oracle, c.Duration("pollInterval"))
	drawLoop.Start()
	defer drawLoop.Stop()

	srv := &http.Server{
		Addr:    c.String("httpAddr"),
		Handler: server.NewLottoServer(engine, db).Handler(),
	}
	go func() {
		glog.Infof("operator API listening on %v", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			glog.Exit(err)
		}
	}()
	defer srv.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	glog.Info("shutting down")

	return nil
}
