// fairlaunch watches a sale for one participant and logs phase and
// eligibility transitions. It is the headless counterpart to fairlaunch_cli:
// point it at a ledger gateway and it keeps a fresh view of the sale,
// optionally exposing metrics.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/peterbourgon/ff/v3"

	"github.com/phantasia-sports/fairlaunch/flaunch"
	"github.com/phantasia-sports/fairlaunch/ledger"
	"github.com/phantasia-sports/fairlaunch/monitor"
)

func main() {
	flag.Set("logtostderr", "true")

	fs := flag.NewFlagSet("fairlaunch", flag.ExitOnError)

	gateway := fs.String("gateway", "http://localhost:8935", "Ledger gateway endpoint")
	saleFlag := fs.String("sale", "", "Sale account to watch")
	participantFlag := fs.String("participant", "", "Participant account")
	pollInterval := fs.Duration("pollInterval", 15*time.Second, "How often to refresh the sale view")
	txTimeout := fs.Duration("txTimeout", 60*time.Second, "How long to wait for transaction confirmations")
	monitorFlag := fs.Bool("monitor", false, "Set to expose metrics")
	monitorAddr := fs.String("monitorAddr", "127.0.0.1:7935", "Address to bind the metrics endpoint to")
	version := fs.Bool("version", false, "Print version and exit")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("FAIRLAUNCH")); err != nil {
		glog.Exitf("Error parsing flags: %v", err)
	}

	if *version {
		glog.Infof("fairlaunch version %v", flaunch.Version)
		return
	}

	if *saleFlag == "" {
		glog.Exit("Missing -sale")
	}
	if *participantFlag == "" {
		glog.Exit("Missing -participant")
	}

	sale, err := flaunch.ParseAccountID(*saleFlag)
	if err != nil {
		glog.Exitf("Could not parse -sale: %v", err)
	}
	participant, err := flaunch.ParseAccountID(*participantFlag)
	if err != nil {
		glog.Exitf("Could not parse -participant: %v", err)
	}

	client := ledger.NewClient(*gateway)
	ctrl := flaunch.NewController(flaunch.ControllerConfig{
		Sale:        sale,
		Participant: participant,
		TxTimeout:   *txTimeout,
	}, client, client, client, flaunch.SystemTimeManager{})
	defer ctrl.Stop()

	if *monitorFlag {
		monitor.InitCensus(participant.String(), flaunch.Version)

		mux := http.NewServeMux()
		mux.Handle("/metrics", monitor.Handler())
		srv := &http.Server{Addr: *monitorAddr, Handler: mux}
		go func() {
			glog.Infof("Metrics listening on %v", *monitorAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				glog.Errorf("Metrics server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := make(chan *flaunch.Snapshot, 8)
	sub := ctrl.Subscribe(sink)
	defer sub.Unsubscribe()

	go watch(sink)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
		<-sigc
		glog.Info("Shutting down")
		cancel()
	}()

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()

	for {
		if _, err := ctrl.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			glog.Errorf("Error refreshing sale view: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// watch logs state transitions between consecutive snapshots.
func watch(sink <-chan *flaunch.Snapshot) {
	var last *flaunch.Snapshot
	for snap := range sink {
		if last == nil || snap.Phase != last.Phase {
			glog.Infof("Sale phase is now %v", snap.Phase)
		}
		if last != nil && snap.Winner && !last.Winner {
			glog.Info("Lottery resolved: ticket won")
		}
		if last != nil && snap.BelowMedian && !last.BelowMedian {
			glog.Infof("Bid fell below the clearing median %v", snap.State.CurrentMedian)
		}
		if snap.SecondaryPredatesSale && (last == nil || !last.SecondaryPredatesSale) {
			glog.Warning("Secondary launch goes live before the lottery completes")
		}
		last = snap
	}
}
