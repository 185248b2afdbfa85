package server

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/luckysum/go-lotto/lotto"
)

// DrawLoop drives the time-gated half of the state machine: it calls
// Draw() once each game period has elapsed and escalates to ForceRedraw()
// when the oracle leaves a request stale. With a local randomness source
// configured it also plays the oracle's part and fulfills requests,
// which is how off-chain deployments resolve draws.
type DrawLoop struct {
	engine *lotto.Engine
	oracle *lotto.LocalRandomnessSource

	pollInterval time.Duration
	backoff      *backoff.ExponentialBackOff

	quit chan struct{}
	done chan struct{}
}

// NewDrawLoop returns a loop polling at the given interval. oracle may be
// nil when an external oracle delivers randomness on its own.
func NewDrawLoop(engine *lotto.Engine, oracle *lotto.LocalRandomnessSource, pollInterval time.Duration) *DrawLoop {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // never give up; the engine re-checks gates itself
	return &DrawLoop{
		engine:       engine,
		oracle:       oracle,
		pollInterval: pollInterval,
		backoff:      b,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the loop until Stop is called.
func (dl *DrawLoop) Start() {
	go dl.run()
}

// Stop signals the loop to exit and waits for it.
func (dl *DrawLoop) Stop() {
	close(dl.quit)
	<-dl.done
}

func (dl *DrawLoop) run() {
	defer close(dl.done)

	ticker := time.NewTicker(dl.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := dl.tick(); err != nil {
				wait := dl.backoff.NextBackOff()
				glog.Errorf("draw loop error, backing off for %v err=%v", wait, err)
				select {
				case <-time.After(wait):
				case <-dl.quit:
					return
				}
				continue
			}
			dl.backoff.Reset()
		case <-dl.quit:
			return
		}
	}
}

func (dl *DrawLoop) tick() error {
	switch dl.engine.State() {
	case lotto.Purchase:
		err := dl.engine.Draw()
		switch {
		case err == nil:
			glog.Infof("draw triggered gameID=%v jackpot=%v", dl.engine.GameID(), humanize.BigComma(dl.engine.Jackpot()))
			return nil
		case errors.Is(err, lotto.ErrWaitLonger):
			// Game period not over yet; check again next tick.
			return nil
		case errors.Is(err, lotto.ErrNoTicketsSold):
			// Apocalypse armed with an empty round; nothing to do until
			// someone buys a ticket.
			return nil
		default:
			return err
		}
	case lotto.DrawPending:
		return dl.resolvePending()
	case lotto.Dead:
		return nil
	}
	return nil
}

func (dl *DrawLoop) resolvePending() error {
	reqID, _, ok := dl.engine.RandomnessRequest()
	if !ok {
		return nil
	}

	if dl.oracle != nil {
		// Local mode: the loop is the oracle.
		return dl.oracle.Fulfill(dl.engine, reqID)
	}

	// External oracle: escalate if the request has gone stale. The engine
	// enforces the staleness window itself; ErrWaitLonger just means the
	// oracle still has time.
	err := dl.engine.ForceRedraw()
	if err == nil {
		glog.Warningf("forced redraw of stale randomness request requestID=%v", reqID)
		return nil
	}
	if errors.Is(err, lotto.ErrWaitLonger) {
		return nil
	}
	return err
}
