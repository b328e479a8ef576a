package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"gopkg.in/urfave/cli.v1"

	"github.com/phantasia-sports/fairlaunch/flaunch"
	"github.com/phantasia-sports/fairlaunch/ledger"
)

func main() {
	app := cli.NewApp()
	app.Name = "fairlaunch-cli"
	app.Usage = "interact with a fair launch sale"
	app.Version = flaunch.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "gateway",
			Usage: "ledger gateway endpoint",
			Value: "http://localhost:8935",
		},
		cli.StringFlag{
			Name:  "sale",
			Usage: "sale account",
		},
		cli.StringFlag{
			Name:  "participant",
			Usage: "participant account",
		},
		cli.DurationFlag{
			Name:  "txTimeout",
			Usage: "how long to wait for transaction confirmations",
			Value: 60 * time.Second,
		},
	}
	app.Action = func(c *cli.Context) error {
		sale, err := flaunch.ParseAccountID(c.String("sale"))
		if err != nil {
			return fmt.Errorf("could not parse -sale: %v", err)
		}
		participant, err := flaunch.ParseAccountID(c.String("participant"))
		if err != nil {
			return fmt.Errorf("could not parse -participant: %v", err)
		}

		client := ledger.NewClient(c.String("gateway"))
		ctrl := flaunch.NewController(flaunch.ControllerConfig{
			Sale:        sale,
			Participant: participant,
			TxTimeout:   c.Duration("txTimeout"),
		}, client, client, client, flaunch.SystemTimeManager{})
		defer ctrl.Stop()

		w := &wizard{
			ctrl: ctrl,
			in:   bufio.NewReader(os.Stdin),
		}
		w.run()

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		glog.Exit(err)
	}
}
