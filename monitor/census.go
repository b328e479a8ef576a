package monitor

import (
	"context"
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/golang/glog"
	rprom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Enabled is true if metrics were enabled on the command line
var Enabled bool

type censusMetricsCounter struct {
	ctx          context.Context
	kParticipant tag.Key
	kAction      tag.Key
	kErrorCode   tag.Key

	mActionSubmitted *stats.Int64Measure
	mActionConfirmed *stats.Int64Measure
	mActionFailed    *stats.Int64Measure
	mActionTimedOut  *stats.Int64Measure
	mPhase           *stats.Int64Measure

	exporter *prometheus.Exporter
}

var census censusMetricsCounter

// InitCensus sets up the action metrics and the prometheus exporter.
func InitCensus(participant, version string) {
	census = censusMetricsCounter{}
	var err error
	census.kParticipant, _ = tag.NewKey("participant")
	census.kAction, _ = tag.NewKey("action")
	census.kErrorCode, _ = tag.NewKey("error_code")

	census.ctx, err = tag.New(context.Background(), tag.Insert(census.kParticipant, participant))
	if err != nil {
		glog.Fatal("Error creating context", err)
	}

	census.mActionSubmitted = stats.Int64("action_submitted_total", "Mutating actions submitted to the ledger", "tot")
	census.mActionConfirmed = stats.Int64("action_confirmed_total", "Mutating actions confirmed by the ledger", "tot")
	census.mActionFailed = stats.Int64("action_failed_total", "Mutating actions rejected by the ledger", "tot")
	census.mActionTimedOut = stats.Int64("action_timed_out_total", "Mutating actions with an unresolved timeout", "tot")
	census.mPhase = stats.Int64("sale_phase", "Current derived sale phase", "phase")

	glog.Infof("fairlaunch version: %s participant: %s", version, participant)

	baseTags := []tag.Key{census.kParticipant}
	views := []*view.View{
		{
			Name:        "action_submitted_total",
			Measure:     census.mActionSubmitted,
			Description: "Mutating actions submitted to the ledger",
			TagKeys:     append([]tag.Key{census.kAction}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "action_confirmed_total",
			Measure:     census.mActionConfirmed,
			Description: "Mutating actions confirmed by the ledger",
			TagKeys:     append([]tag.Key{census.kAction}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "action_failed_total",
			Measure:     census.mActionFailed,
			Description: "Mutating actions rejected by the ledger",
			TagKeys:     append([]tag.Key{census.kAction, census.kErrorCode}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "action_timed_out_total",
			Measure:     census.mActionTimedOut,
			Description: "Mutating actions with an unresolved timeout",
			TagKeys:     append([]tag.Key{census.kAction}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "sale_phase",
			Measure:     census.mPhase,
			Description: "Current derived sale phase",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
	}

	if err := view.Register(views...); err != nil {
		glog.Fatalf("Error registering views err=%q", err)
	}

	registry := rprom.NewRegistry()
	census.exporter, err = prometheus.NewExporter(prometheus.Options{
		Namespace: "fairlaunch",
		Registry:  registry,
	})
	if err != nil {
		glog.Fatalf("Error creating prometheus exporter err=%q", err)
	}
	view.RegisterExporter(census.exporter)

	Enabled = true
}

// Handler returns the HTTP handler serving the prometheus metrics endpoint
func Handler() http.Handler {
	return census.exporter
}

func actionCtx(action string) context.Context {
	ctx, err := tag.New(census.ctx, tag.Insert(census.kAction, action))
	if err != nil {
		glog.Errorf("Error tagging action context err=%q", err)
		return census.ctx
	}
	return ctx
}

// ActionSubmitted records a mutating action sent to the ledger
func ActionSubmitted(action string) {
	stats.Record(actionCtx(action), census.mActionSubmitted.M(1))
}

// ActionConfirmed records a confirmed mutating action
func ActionConfirmed(action string) {
	stats.Record(actionCtx(action), census.mActionConfirmed.M(1))
}

// ActionFailed records a ledger-rejected mutating action
func ActionFailed(action, code string) {
	ctx, err := tag.New(actionCtx(action), tag.Insert(census.kErrorCode, code))
	if err != nil {
		ctx = census.ctx
	}
	stats.Record(ctx, census.mActionFailed.M(1))
}

// ActionTimedOut records a mutating action with an unresolved timeout
func ActionTimedOut(action string) {
	stats.Record(actionCtx(action), census.mActionTimedOut.M(1))
}

// SetPhase records the current derived sale phase
func SetPhase(phase int64) {
	stats.Record(census.ctx, census.mPhase.M(phase))
}
