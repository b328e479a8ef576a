package flaunch

import "time"

// ActionSet reports which mutating actions were legal at snapshot time.
// Bid is evaluated with the snapshot's suggested bid amount; amount
// specific checks happen again when the action runs.
type ActionSet struct {
	Bid           bool
	Withdraw      bool
	Punch         bool
	Mint          bool
	AntiRugRefund bool
}

// Snapshot is an immutable view of the sale for one participant, assembled
// from a single refresh. The controller replaces it wholesale after every
// refresh and confirmed action so that phase, ticket and balance views can
// never be observed mid-update.
type Snapshot struct {
	Sale        AccountID
	Participant AccountID

	Config    *SaleConfig
	State     *SaleState
	Ticket    *Ticket
	Secondary *SecondaryLaunch
	// LotteryMask is the raw lottery account bytes including header.
	LotteryMask []byte

	// Balance is the participant's spendable balance in base units.
	Balance uint64
	// DirectBalance is the participant's redemption-token balance held
	// outside the lottery path.
	DirectBalance uint64

	Phase                 Phase
	Winner                bool
	BelowMedian           bool
	SecondaryPredatesSale bool
	Actions               ActionSet

	TakenAt time.Time
}

func newSnapshot(sale, participant AccountID, cfg *SaleConfig, state *SaleState, ticket *Ticket, launch *SecondaryLaunch, mask []byte, balance, directBalance uint64, now time.Time) (*Snapshot, error) {
	s := &Snapshot{
		Sale:          sale,
		Participant:   participant,
		Config:        cfg,
		State:         state,
		Ticket:        ticket,
		Secondary:     launch,
		LotteryMask:   mask,
		Balance:       balance,
		DirectBalance: directBalance,
		TakenAt:       now,
	}

	s.Phase = ResolvePhase(cfg, state, launch, now)

	phaseThreeStarted := state != nil && state.PhaseThreeStarted
	winner, err := IsWinner(ticket, mask, phaseThreeStarted, directBalance)
	if err != nil {
		return nil, err
	}
	s.Winner = winner

	s.BelowMedian = BelowMedian(s.Phase, ticket, state)
	s.SecondaryPredatesSale = SecondaryPredatesSale(cfg, launch)

	s.Actions = ActionSet{
		Bid:           CanPlaceOrChangeBid(s.Phase, ticket, s.SuggestedBid(), state),
		Withdraw:      CanWithdraw(s.Phase, ticket, winner),
		Punch:         CanPunch(s.Phase, ticket, winner),
		Mint:          CanMint(s.Phase, ticket, winner, launch, directBalance),
		AntiRugRefund: CanAntiRugRefund(cfg, ticket, now),
	}

	return s, nil
}

// SuggestedBid is the default bid amount for the participant: their
// existing bid if any, else the current median once derived, else the
// bottom of the price range.
func (s *Snapshot) SuggestedBid() uint64 {
	if s.Ticket != nil && s.Ticket.State != TicketWithdrawn {
		return s.Ticket.Amount
	}
	if s.State != nil && s.State.CurrentMedian > 0 {
		return s.State.CurrentMedian
	}
	if s.Config != nil {
		return s.Config.PriceRangeStart
	}
	return 0
}

// InsufficientFundsFor reports whether the participant cannot cover a bid
// of the given amount from this snapshot's balances.
func (s *Snapshot) InsufficientFundsFor(amount uint64) bool {
	return InsufficientFunds(s.Balance, s.Ticket, amount, s.Config)
}
