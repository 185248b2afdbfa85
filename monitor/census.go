package monitor

import (
	"context"
	"math/big"
	"runtime"

	"github.com/golang/glog"

	"contrib.go.opencensus.io/exporter/prometheus"
	rprom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Enabled true if metrics was enabled in command line
var Enabled bool

// Exporter Prometheus exporter that handles `/metrics` endpoint
var Exporter *prometheus.Exporter

type censusMetricsCounter struct {
	nodeID  string
	ctx     context.Context
	kNodeID tag.Key

	mTicketsSold    *stats.Int64Measure
	mDrawsStarted   *stats.Int64Measure
	mDrawsSkipped   *stats.Int64Measure
	mDrawsCompleted *stats.Int64Measure
	mClaimsPaid     *stats.Int64Measure
	mClaimValue     *stats.Float64Measure
	mJackpotSize    *stats.Float64Measure
}

var census censusMetricsCounter

// InitCensus registers the lottery metrics views and stands up the
// Prometheus exporter.
func InitCensus(nodeID, version string) {
	census = censusMetricsCounter{
		nodeID: nodeID,
	}
	var err error
	census.kNodeID, _ = tag.NewKey("node_id")
	census.ctx, err = tag.New(context.Background(), tag.Insert(census.kNodeID, nodeID))
	if err != nil {
		glog.Fatal("Error creating context", err)
	}

	census.mTicketsSold = stats.Int64("tickets_sold_total", "Tickets sold", "tot")
	census.mDrawsStarted = stats.Int64("draws_started_total", "Draws that issued a randomness request", "tot")
	census.mDrawsSkipped = stats.Int64("draws_skipped_total", "Draws skipped because no tickets were sold", "tot")
	census.mDrawsCompleted = stats.Int64("draws_completed_total", "Draws finalized with randomness", "tot")
	census.mClaimsPaid = stats.Int64("claims_paid_total", "Claims paid out", "tot")
	census.mClaimValue = stats.Float64("claim_value_total", "Total value paid out to claimants", "wei")
	census.mJackpotSize = stats.Float64("jackpot_size", "Current jackpot register", "wei")

	glog.Infof("Compiler: %s Arch %s OS %s Go version %s", runtime.Compiler, runtime.GOARCH, runtime.GOOS, runtime.Version())
	glog.Infof("go-lotto version: %s", version)

	baseTags := []tag.Key{census.kNodeID}
	views := []*view.View{
		{
			Name:        "tickets_sold_total",
			Measure:     census.mTicketsSold,
			Description: "Tickets sold",
			TagKeys:     baseTags,
			Aggregation: view.Sum(),
		},
		{
			Name:        "draws_started_total",
			Measure:     census.mDrawsStarted,
			Description: "Draws that issued a randomness request",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "draws_skipped_total",
			Measure:     census.mDrawsSkipped,
			Description: "Draws skipped because no tickets were sold",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "draws_completed_total",
			Measure:     census.mDrawsCompleted,
			Description: "Draws finalized with randomness",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "claims_paid_total",
			Measure:     census.mClaimsPaid,
			Description: "Claims paid out",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "claim_value_total",
			Measure:     census.mClaimValue,
			Description: "Total value paid out to claimants",
			TagKeys:     baseTags,
			Aggregation: view.Sum(),
		},
		{
			Name:        "jackpot_size",
			Measure:     census.mJackpotSize,
			Description: "Current jackpot register",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
	}
	if err := view.Register(views...); err != nil {
		glog.Fatalf("Failed to register views: %v", err)
	}

	registry := rprom.NewRegistry()
	registry.MustRegister(rprom.NewProcessCollector(rprom.ProcessCollectorOpts{}))
	registry.MustRegister(rprom.NewGoCollector())
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "lotto",
		Registry:  registry,
	})
	if err != nil {
		glog.Fatalf("Failed to create the Prometheus stats exporter: %v", err)
	}
	view.RegisterExporter(pe)

	Exporter = pe
	Enabled = true
}

// TicketsSold records n tickets sold.
func TicketsSold(n int) {
	stats.Record(census.ctx, census.mTicketsSold.M(int64(n)))
}

// DrawStarted records a draw that issued a randomness request.
func DrawStarted() {
	stats.Record(census.ctx, census.mDrawsStarted.M(1))
}

// DrawSkipped records a zero-ticket draw that rolled straight over.
func DrawSkipped() {
	stats.Record(census.ctx, census.mDrawsSkipped.M(1))
}

// DrawCompleted records a draw finalized with delivered randomness.
func DrawCompleted() {
	stats.Record(census.ctx, census.mDrawsCompleted.M(1))
}

// ClaimPaid records one payout and its value.
func ClaimPaid(amount *big.Int) {
	value, _ := new(big.Float).SetInt(amount).Float64()
	stats.Record(census.ctx, census.mClaimsPaid.M(1), census.mClaimValue.M(value))
}

// JackpotSize records the current jackpot register.
func JackpotSize(amount *big.Int) {
	value, _ := new(big.Float).SetInt(amount).Float64()
	stats.Record(census.ctx, census.mJackpotSize.M(value))
}
