package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/phantasia-sports/fairlaunch/flaunch"
)

const lamportsPerToken = 1_000_000_000

type wizard struct {
	ctrl *flaunch.Controller
	in   *bufio.Reader
}

func (w *wizard) run() {
	fmt.Println("+------------------+")
	fmt.Println("| FAIR LAUNCH CLI  |")
	fmt.Println("+------------------+")
	fmt.Println("")

	if _, err := w.ctrl.Refresh(context.Background()); err != nil {
		fmt.Printf("Error reaching the gateway: %v\n", err)
	}

	for {
		w.status()
		fmt.Println("")

		choices := w.menu()
		for i, c := range choices {
			fmt.Printf(" %d. %s\n", i+1, c.label)
		}
		fmt.Println(" q. Quit")

		text := w.read()
		if text == "q" {
			return
		}
		i, err := strconv.Atoi(text)
		if err != nil || i < 1 || i > len(choices) {
			fmt.Println("Enter a number from the menu")
			continue
		}

		if err := choices[i-1].do(); err != nil {
			w.report(err)
		}
	}
}

type menuItem struct {
	label string
	do    func() error
}

// menu builds the choice list from the current snapshot's action flags so
// the user is only offered actions the sale state allows.
func (w *wizard) menu() []menuItem {
	items := []menuItem{
		{"Refresh sale view", w.refresh},
	}

	snap := w.ctrl.Snapshot()
	if snap == nil {
		return items
	}

	if snap.Actions.Bid {
		items = append(items, menuItem{"Place or change bid", w.placeBid})
	}
	if snap.Actions.Withdraw {
		items = append(items, menuItem{"Withdraw bid", w.withdraw})
	}
	if snap.Actions.Punch {
		items = append(items, menuItem{"Punch winning ticket", w.punch})
	}
	if snap.Actions.Mint {
		items = append(items, menuItem{"Mint token", w.mint})
	}
	if snap.Actions.AntiRugRefund {
		items = append(items, menuItem{"Claim anti-rug refund", w.antiRugRefund})
	}

	return items
}

func (w *wizard) status() {
	snap := w.ctrl.Snapshot()
	if snap == nil {
		fmt.Println("No sale view yet, refresh first")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"Sale", snap.Sale.String()})
	table.Append([]string{"Participant", snap.Participant.String()})
	table.Append([]string{"Phase", snap.Phase.String()})
	table.Append([]string{"Balance", formatAmount(snap.Balance)})

	if snap.Config != nil {
		table.Append([]string{"Price range", fmt.Sprintf("%s - %s", formatAmount(snap.Config.PriceRangeStart), formatAmount(snap.Config.PriceRangeEnd))})
		table.Append([]string{"Fee", formatAmount(snap.Config.Fee)})
	}
	if snap.State != nil {
		table.Append([]string{"Current median", formatAmount(snap.State.CurrentMedian)})
		table.Append([]string{"Tickets sold", humanize.Comma(int64(snap.State.NumberTicketsSold))})
		table.Append([]string{"Treasury", formatAmount(snap.State.TreasuryBalance)})
		if snap.Config != nil && snap.Config.AntiRug != nil {
			table.Append([]string{"Anti-rug reserve", formatAmount(snap.Config.AntiRug.ReserveLamports(snap.State.TreasuryBalance))})
		}
	}

	if snap.Ticket != nil {
		table.Append([]string{"Your bid", formatAmount(snap.Ticket.Amount)})
		table.Append([]string{"Ticket state", snap.Ticket.State.String()})
		if snap.BelowMedian {
			table.Append([]string{"", "bid is below the clearing median"})
		}
		if snap.Phase >= flaunch.PhasePostLottery {
			table.Append([]string{"Lottery result", lotteryResult(snap)})
		}
	}

	if snap.SecondaryPredatesSale {
		table.Append([]string{"Warning", "secondary launch goes live before the lottery completes"})
	}

	table.Render()
}

func lotteryResult(snap *flaunch.Snapshot) string {
	if snap.Winner {
		return "won"
	}
	return "lost"
}

func (w *wizard) refresh() error {
	_, err := w.ctrl.Refresh(context.Background())
	return err
}

func (w *wizard) placeBid() error {
	snap := w.ctrl.Snapshot()

	suggested := snap.SuggestedBid()
	fmt.Printf("Enter bid amount in tokens (suggested %s)\n", formatAmount(suggested))

	amount := w.readAmount(suggested)
	return w.ctrl.PlaceBid(context.Background(), amount)
}

func (w *wizard) withdraw() error {
	fmt.Println("Withdraw your bid? This forfeits your lottery ticket (y/n)")
	if w.read() != "y" {
		return nil
	}
	return w.ctrl.Withdraw(context.Background())
}

func (w *wizard) punch() error {
	return w.ctrl.Punch(context.Background())
}

func (w *wizard) mint() error {
	return w.ctrl.Mint(context.Background())
}

func (w *wizard) antiRugRefund() error {
	fmt.Println("Burn your token for the reserve refund? This cannot be undone (y/n)")
	if w.read() != "y" {
		return nil
	}
	return w.ctrl.AntiRugRefund(context.Background())
}

func (w *wizard) report(err error) {
	var timeout *flaunch.TimeoutError
	if errors.As(err, &timeout) {
		fmt.Printf("Still waiting on the ledger: %v\n", timeout)
		fmt.Println("The transaction may land later, refresh to check")
		return
	}
	fmt.Printf("Error: %v\n", err)
}

// read reads a single line from stdin, trimming it from spaces.
func (w *wizard) read() string {
	fmt.Printf("> ")
	text, err := w.in.ReadString('\n')
	if err != nil {
		fmt.Printf("Failed to read user input: %v\n", err)
		os.Exit(1)
	}
	return strings.TrimSpace(text)
}

// readAmount reads a token amount with up to 9 decimal places, returning
// the default when the line is empty.
func (w *wizard) readAmount(def uint64) uint64 {
	for {
		text := w.read()
		if text == "" {
			return def
		}
		val, err := strconv.ParseFloat(text, 64)
		if err != nil || val < 0 {
			fmt.Println("Enter a positive number")
			continue
		}
		return uint64(math.Round(val * lamportsPerToken))
	}
}

func formatAmount(lamports uint64) string {
	whole := lamports / lamportsPerToken
	frac := lamports % lamportsPerToken
	if frac == 0 {
		return humanize.Comma(int64(whole))
	}
	return fmt.Sprintf("%s.%s", humanize.Comma(int64(whole)), strings.TrimRight(fmt.Sprintf("%09d", frac), "0"))
}
